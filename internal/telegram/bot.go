package telegram

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/Dhoini/paywall-bot/internal/domain"
	"github.com/Dhoini/paywall-bot/internal/scheduler"
	"github.com/Dhoini/paywall-bot/internal/service"
	"github.com/Dhoini/paywall-bot/pkg/logger"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// UpdateSource источник обновлений (long polling)
type UpdateSource interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// JobRunner ручной запуск задач планировщика
type JobRunner interface {
	RunNow(name string) error
}

// Bot обрабатывает команды пользователей, операторов и заявки в канал
type Bot struct {
	client   *Client
	subs     service.SubscriptionService
	payments service.PaymentService
	jobs     JobRunner
	testMode bool
	loc      *time.Location
	now      func() time.Time
	log      *logger.Logger
}

// BotDeps сервисы, которые использует бот
type BotDeps struct {
	Subscriptions service.SubscriptionService
	Payments      service.PaymentService
	Jobs          JobRunner
}

// NewBot создает обработчик обновлений
func NewBot(client *Client, deps BotDeps, testMode bool, loc *time.Location, log *logger.Logger) *Bot {
	if loc == nil {
		loc = time.UTC
	}
	return &Bot{
		client:   client,
		subs:     deps.Subscriptions,
		payments: deps.Payments,
		jobs:     deps.Jobs,
		testMode: testMode,
		loc:      loc,
		now:      time.Now,
		log:      log,
	}
}

// Run читает обновления до отмены ctx
func (b *Bot) Run(ctx context.Context, source UpdateSource) {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 60
	cfg.AllowedUpdates = []string{"message", "callback_query", "chat_join_request"}
	updates := source.GetUpdatesChan(cfg)

	b.log.Info("Telegram update loop started")
	for {
		select {
		case <-ctx.Done():
			source.StopReceivingUpdates()
			b.log.Info("Telegram update loop stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate обрабатывает одно обновление. Ошибки логируются.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.ChatJoinRequest != nil:
		b.handleJoinRequest(ctx, update.ChatJoinRequest)
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.From != nil:
		if update.Message.IsCommand() {
			b.handleCommand(ctx, update.Message)
			return
		}
		b.handleText(ctx, update.Message)
	}
}

func displayName(u *tgbotapi.User) string {
	if u == nil {
		return ""
	}
	if u.UserName != "" {
		return u.UserName
	}
	return u.FirstName
}

func (b *Bot) handleJoinRequest(ctx context.Context, req *tgbotapi.ChatJoinRequest) {
	userID := req.From.ID
	active, err := b.subs.IsActive(ctx, userID)
	if err != nil {
		b.log.Errorw("Failed to check subscription for join request", "userID", userID, "error", err)
		return
	}

	if active {
		if err := b.client.ApproveJoin(ctx, userID); err != nil {
			b.log.Errorw("Failed to approve join request", "userID", userID, "error", err)
			return
		}
		b.log.Infow("Join request approved", "userID", userID)
		return
	}

	if err := b.client.DeclineJoin(ctx, userID); err != nil {
		b.log.Errorw("Failed to decline join request", "userID", userID, "error", err)
	}
	b.log.Infow("Join request declined, no active subscription", "userID", userID)
	b.sendPaymentOffer(ctx, userID, displayName(&req.From), joinDeclinedText)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	switch msg.Command() {
	case "start":
		b.handleStart(ctx, msg)
	case "pay", "subscribe":
		b.sendPaymentOffer(ctx, userID, displayName(msg.From), paymentText)
	case "account", "check":
		b.sendAccount(ctx, userID)
	case "help":
		b.sendHelp(ctx, userID)
	case "cancel", "unsubscribe":
		b.cancel(ctx, userID)
	case "stats":
		b.adminOnly(ctx, userID, func() { b.sendStats(ctx, userID) })
	case "check_subs":
		b.adminOnly(ctx, userID, func() { b.checkSubscriptions(ctx, userID) })
	case "confirm_payment":
		b.adminOnly(ctx, userID, func() { b.confirmPayment(ctx, userID, msg.CommandArguments()) })
	default:
		b.reply(ctx, userID, unknownCommandText)
	}
}

func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	if _, err := b.client.bot.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
		b.log.Debugw("Failed to answer callback", "error", err)
	}
	userID := cq.From.ID
	switch cq.Data {
	case callbackPay:
		b.sendPaymentOffer(ctx, userID, displayName(cq.From), paymentText)
	case callbackAccount:
		b.sendAccount(ctx, userID)
	case callbackCancel:
		b.cancel(ctx, userID)
	default:
		b.log.Debugw("Unknown callback", "data", cq.Data, "userID", userID)
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	summary, err := b.subs.Summary(ctx, userID)
	if err == nil && summary.Active && summary.ExpiresAt.After(b.now()) {
		b.send(ctx, userID, service.SummaryText(summary, b.now(), b.loc), b.accountKeyboard(summary))
		return
	}
	if err != nil && !errors.Is(err, domain.ErrSubscriptionNotFound) {
		b.log.Errorw("Failed to load subscription", "userID", userID, "error", err)
	}

	if err := b.subs.RecordState(ctx, userID, displayName(msg.From), service.StateStart); err != nil {
		b.log.Warnw("Failed to record funnel state", "userID", userID, "error", err)
	}
	b.send(ctx, userID, welcomeText, callbackKeyboard(
		[2]string{subscribeText, callbackPay},
		[2]string{accountButtonText, callbackAccount},
	))
}

// handleText свободный текст сохраняется как вопрос
func (b *Bot) handleText(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	if strings.TrimSpace(msg.Text) == "" {
		return
	}
	if err := b.subs.SaveQuestion(ctx, userID, msg.Text); err != nil {
		b.log.Errorw("Failed to save question", "userID", userID, "error", err)
		b.reply(ctx, userID, internalErrorText)
		return
	}
	if err := b.subs.RecordState(ctx, userID, displayName(msg.From), service.StateQuestion); err != nil {
		b.log.Warnw("Failed to record funnel state", "userID", userID, "error", err)
	}
	b.send(ctx, userID, questionSavedText, callbackKeyboard([2]string{subscribeText, callbackPay}))
}

func (b *Bot) sendPaymentOffer(ctx context.Context, userID int64, username, text string) {
	if err := b.subs.RecordState(ctx, userID, username, service.StatePayment); err != nil {
		b.log.Warnw("Failed to record funnel state", "userID", userID, "error", err)
	}
	link, err := b.subs.PaymentLink(ctx, userID)
	if err != nil {
		b.log.Errorw("Failed to create payment link", "userID", userID, "error", err)
		b.reply(ctx, userID, paymentErrorText)
		return
	}
	if err := b.client.NotifyUser(ctx, userID, text, service.Button{Text: payButtonText, URL: link}); err != nil {
		b.log.Warnw("Failed to send payment link", "userID", userID, "error", err)
	}
}

func (b *Bot) sendAccount(ctx context.Context, userID int64) {
	summary, err := b.subs.Summary(ctx, userID)
	if errors.Is(err, domain.ErrSubscriptionNotFound) {
		b.send(ctx, userID, accountHeader+noSubText, callbackKeyboard([2]string{subscribeText, callbackPay}))
		return
	}
	if err != nil {
		b.log.Errorw("Failed to load subscription", "userID", userID, "error", err)
		b.reply(ctx, userID, internalErrorText)
		return
	}
	b.send(ctx, userID, accountHeader+service.SummaryText(summary, b.now(), b.loc), b.accountKeyboard(summary))
}

func (b *Bot) cancel(ctx context.Context, userID int64) {
	res, err := b.subs.RequestCancel(ctx, userID)
	if errors.Is(err, domain.ErrSubscriptionNotFound) {
		b.send(ctx, userID, noSubText, callbackKeyboard([2]string{subscribeText, callbackPay}))
		return
	}
	if err != nil {
		b.log.Errorw("Failed to cancel auto-renewal", "userID", userID, "error", err)
		b.reply(ctx, userID, internalErrorText)
		return
	}
	b.send(ctx, userID, service.CancelText(res.Subscription, res.AlreadyCancelled, b.loc),
		callbackKeyboard([2]string{accountButtonText, callbackAccount}))
}

func (b *Bot) adminOnly(ctx context.Context, userID int64, fn func()) {
	if !b.client.IsAdmin(userID) {
		b.log.Warnw("Operator command from non-operator", "userID", userID)
		b.reply(ctx, userID, adminOnlyText)
		return
	}
	fn()
}

func (b *Bot) sendStats(ctx context.Context, userID int64) {
	st, err := b.subs.Stats(ctx)
	if err != nil {
		b.log.Errorw("Failed to load statistics", "error", err)
		b.reply(ctx, userID, internalErrorText)
		return
	}
	b.reply(ctx, userID, service.StatsText(st, b.testMode))
}

func (b *Bot) sendHelp(ctx context.Context, userID int64) {
	text := helpText
	if b.client.IsAdmin(userID) {
		text += "\n\n" + adminHelpText
	}
	b.reply(ctx, userID, text)
}

// checkSubscriptions ручной запуск обхода истекающих подписок через планировщик,
// чтобы не пересекаться с плановым запуском. Итог обхода приходит операторам отдельным сообщением.
func (b *Bot) checkSubscriptions(ctx context.Context, userID int64) {
	b.reply(ctx, userID, checkStartedText)
	err := b.jobs.RunNow(scheduler.JobExpiry)
	switch {
	case errors.Is(err, scheduler.ErrJobBusy):
		b.reply(ctx, userID, checkBusyText)
	case err != nil:
		b.log.Errorw("Manual expiry check failed", "error", err)
		b.reply(ctx, userID, internalErrorText)
	default:
		b.reply(ctx, userID, checkDoneText)
	}
}

func (b *Bot) confirmPayment(ctx context.Context, operatorID int64, args string) {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		b.reply(ctx, operatorID, confirmUsageText)
		return
	}
	userID, err1 := strconv.ParseInt(fields[0], 10, 64)
	invID, err2 := strconv.ParseInt(fields[1], 10, 64)
	if err1 != nil || err2 != nil {
		b.reply(ctx, operatorID, confirmUsageText)
		return
	}

	res, err := b.payments.ConfirmManual(ctx, userID, invID, operatorID)
	if errors.Is(err, domain.ErrInvalidInput) {
		b.reply(ctx, operatorID, confirmUsageText)
		return
	}
	if err != nil {
		b.log.Errorw("Manual confirmation failed", "userID", userID, "invID", invID, "error", err)
		b.reply(ctx, operatorID, internalErrorText)
		return
	}
	b.reply(ctx, operatorID, service.ManualConfirmText(userID, invID, res, b.loc))
}

func (b *Bot) accountKeyboard(s domain.SubscriptionSummary) *tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	if b.client.cfg.ChannelLink != "" {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL(channelButtonText, b.client.cfg.ChannelLink)))
	}
	if s.CancelRequested || !s.ExpiresAt.After(b.now()) {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(subscribeText, callbackPay)))
	} else {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(cancelButtonText, callbackCancel)))
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &kb
}

func callbackKeyboard(buttons ...[2]string) *tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, btn := range buttons {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(btn[0], btn[1])))
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &kb
}

func (b *Bot) send(ctx context.Context, chatID int64, text string, kb *tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	if kb != nil {
		msg.ReplyMarkup = kb
	}
	if _, err := b.client.bot.Send(msg); err != nil {
		b.log.Warnw("Failed to send message", "chatID", chatID, "error", err)
	}
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	b.send(ctx, chatID, text, nil)
}
