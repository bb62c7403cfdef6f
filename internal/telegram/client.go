package telegram

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Dhoini/paywall-bot/internal/service"
	"github.com/Dhoini/paywall-bot/pkg/logger"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// BotAPI методы Bot API, которые использует адаптер
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// ClientConfig параметры канала
type ClientConfig struct {
	ChannelID   int64
	ChannelLink string
	AdminIDs    []int64
	// LinkTTL через сколько удалить сообщение со ссылкой на канал, 0 не удалять
	LinkTTL time.Duration
}

// Client доставляет сообщения и управляет участниками канала
type Client struct {
	bot BotAPI
	cfg ClientConfig
	log *logger.Logger

	mu     sync.Mutex
	timers map[*time.Timer]struct{}
}

var _ service.Messenger = (*Client)(nil)

// NewClient создает новый клиент
func NewClient(bot BotAPI, cfg ClientConfig, log *logger.Logger) *Client {
	return &Client{
		bot:    bot,
		cfg:    cfg,
		log:    log,
		timers: make(map[*time.Timer]struct{}),
	}
}

// NewBotAPI подключается к Bot API и направляет его журнал в log
func NewBotAPI(token string, log *logger.Logger) (*tgbotapi.BotAPI, error) {
	if err := tgbotapi.SetLogger(log); err != nil {
		return nil, fmt.Errorf("failed to set telegram logger: %w", err)
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to telegram: %w", err)
	}
	log.Infow("Authorized on Telegram", "bot", bot.Self.UserName)
	return bot, nil
}

// IsAdmin пользователь является оператором
func (c *Client) IsAdmin(userID int64) bool {
	for _, id := range c.cfg.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func urlKeyboard(buttons []service.Button) *tgbotapi.InlineKeyboardMarkup {
	if len(buttons) == 0 {
		return nil
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, b := range buttons {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL)))
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &kb
}

// NotifyUser отправляет сообщение с кнопками-ссылками
func (c *Client) NotifyUser(ctx context.Context, userID int64, text string, buttons ...service.Button) error {
	msg := tgbotapi.NewMessage(userID, text)
	if kb := urlKeyboard(buttons); kb != nil {
		msg.ReplyMarkup = kb
	}
	if _, err := c.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send message to %d: %w", userID, err)
	}
	return nil
}

// SendAccessLink отправляет ссылку на канал и удаляет сообщение через LinkTTL
func (c *Client) SendAccessLink(ctx context.Context, userID int64, text string) error {
	msg := tgbotapi.NewMessage(userID, text)
	if c.cfg.ChannelLink != "" {
		msg.ReplyMarkup = urlKeyboard([]service.Button{{Text: channelButtonText, URL: c.cfg.ChannelLink}})
	}
	sent, err := c.bot.Send(msg)
	if err != nil {
		return fmt.Errorf("failed to send channel link to %d: %w", userID, err)
	}
	if c.cfg.LinkTTL > 0 {
		c.scheduleDelete(userID, sent.MessageID, c.cfg.LinkTTL)
	}
	return nil
}

func (c *Client) scheduleDelete(chatID int64, messageID int, after time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var timer *time.Timer
	timer = time.AfterFunc(after, func() {
		c.mu.Lock()
		delete(c.timers, timer)
		c.mu.Unlock()

		if _, err := c.bot.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
			c.log.Warnw("Failed to delete channel link message", "chatID", chatID, "messageID", messageID, "error", err)
		}
	})
	c.timers[timer] = struct{}{}
}

// NotifyOperators отправляет сообщение всем операторам
func (c *Client) NotifyOperators(ctx context.Context, text string) error {
	var errs []error
	for _, id := range c.cfg.AdminIDs {
		if _, err := c.bot.Send(tgbotapi.NewMessage(id, text)); err != nil {
			errs = append(errs, fmt.Errorf("operator %d: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// Revoke удаляет пользователя из канала. Бан сразу снимается, чтобы
// после оплаты пользователь мог вернуться.
func (c *Client) Revoke(ctx context.Context, userID int64) error {
	member := tgbotapi.ChatMemberConfig{ChatID: c.cfg.ChannelID, UserID: userID}

	if _, err := c.bot.Request(tgbotapi.BanChatMemberConfig{ChatMemberConfig: member}); err != nil {
		return fmt.Errorf("failed to ban %d: %w", userID, err)
	}
	if _, err := c.bot.Request(tgbotapi.UnbanChatMemberConfig{ChatMemberConfig: member, OnlyIfBanned: true}); err != nil {
		return fmt.Errorf("failed to unban %d: %w", userID, err)
	}
	return nil
}

// ApproveJoin одобряет заявку на вступление в канал
func (c *Client) ApproveJoin(ctx context.Context, userID int64) error {
	req := tgbotapi.ApproveChatJoinRequestConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: c.cfg.ChannelID},
		UserID:     userID,
	}
	if _, err := c.bot.Request(req); err != nil {
		return fmt.Errorf("failed to approve join request of %d: %w", userID, err)
	}
	return nil
}

// DeclineJoin отклоняет заявку на вступление в канал
func (c *Client) DeclineJoin(ctx context.Context, userID int64) error {
	req := tgbotapi.DeclineChatJoinRequest{
		ChatConfig: tgbotapi.ChatConfig{ChatID: c.cfg.ChannelID},
		UserID:     userID,
	}
	if _, err := c.bot.Request(req); err != nil {
		return fmt.Errorf("failed to decline join request of %d: %w", userID, err)
	}
	return nil
}

// Close отменяет отложенные удаления сообщений
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for t := range c.timers {
		t.Stop()
	}
	c.timers = make(map[*time.Timer]struct{})
}
