package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Dhoini/paywall-bot/internal/domain"
	"github.com/Dhoini/paywall-bot/internal/kafka"
	"github.com/Dhoini/paywall-bot/internal/repository"
	"github.com/Dhoini/paywall-bot/internal/robokassa"
	"github.com/Dhoini/paywall-bot/pkg/logger"
)

// Состояния воронки
const (
	StateStart    = domain.StateStart
	StateWant     = domain.StateWant
	StatePayment  = domain.StatePayment
	StatePaid     = domain.StatePaid
	StateQuestion = domain.StateQuestion
)

// CancelResult итог отказа от автопродления
type CancelResult struct {
	Subscription domain.Subscription
	// AlreadyCancelled отказ уже был оформлен ранее
	AlreadyCancelled bool
}

// SubscriptionService интерфейс сервиса для работы с подписками пользователя
type SubscriptionService interface {
	IsActive(ctx context.Context, userID int64) (bool, error)
	Summary(ctx context.Context, userID int64) (domain.SubscriptionSummary, error)
	RequestCancel(ctx context.Context, userID int64) (CancelResult, error)
	// PaymentLink ссылка на первичный платеж с разрешенными рекуррентными списаниями
	PaymentLink(ctx context.Context, userID int64) (string, error)
	RecordState(ctx context.Context, userID int64, username, state string) error
	SaveQuestion(ctx context.Context, userID int64, text string) error
	Payments(ctx context.Context, userID int64) ([]domain.Payment, error)
	Stats(ctx context.Context) (domain.Stats, error)
}

type subscriptionService struct {
	subs     repository.SubscriptionRepository
	payments repository.PaymentRepository
	users    repository.UserRepository
	stats    repository.StatsRepository
	links    LinkBuilder
	invoices InvoiceSource
	events   kafka.Publisher
	opts     Options
	now      func() time.Time
	log      *logger.Logger
}

// SubscriptionDeps хранилища, с которыми работает SubscriptionService
type SubscriptionDeps struct {
	Subscriptions repository.SubscriptionRepository
	Payments      repository.PaymentRepository
	Users         repository.UserRepository
	Stats         repository.StatsRepository
}

// NewSubscriptionService создает новый сервис для работы с подписками
func NewSubscriptionService(
	deps SubscriptionDeps,
	links LinkBuilder,
	invoices InvoiceSource,
	events kafka.Publisher,
	opts Options,
	now func() time.Time,
	log *logger.Logger,
) SubscriptionService {
	if now == nil {
		now = time.Now
	}
	return &subscriptionService{
		subs:     deps.Subscriptions,
		payments: deps.Payments,
		users:    deps.Users,
		stats:    deps.Stats,
		links:    links,
		invoices: invoices,
		events:   events,
		opts:     opts,
		now:      now,
		log:      log,
	}
}

// IsActive у пользователя есть действующий доступ
func (s *subscriptionService) IsActive(ctx context.Context, userID int64) (bool, error) {
	sub, err := s.subs.GetActive(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get subscription for user %d: %w", userID, err)
	}
	return sub.IsActiveAt(s.now()), nil
}

// Summary возвращает краткое описание подписки или domain.ErrSubscriptionNotFound
func (s *subscriptionService) Summary(ctx context.Context, userID int64) (domain.SubscriptionSummary, error) {
	sub, err := s.subs.GetActive(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.SubscriptionSummary{}, domain.ErrSubscriptionNotFound
	}
	if err != nil {
		return domain.SubscriptionSummary{}, fmt.Errorf("failed to get subscription for user %d: %w", userID, err)
	}
	return sub.Summary(s.now()), nil
}

// RequestCancel отключает автопродление. Срок доступа не меняется.
func (s *subscriptionService) RequestCancel(ctx context.Context, userID int64) (CancelResult, error) {
	current, err := s.subs.GetActive(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return CancelResult{}, domain.ErrSubscriptionNotFound
	}
	if err != nil {
		return CancelResult{}, fmt.Errorf("failed to get subscription for user %d: %w", userID, err)
	}
	if current.CancelRequested {
		return CancelResult{Subscription: current, AlreadyCancelled: true}, nil
	}

	now := s.now().UTC()
	sub, err := s.subs.RequestCancel(ctx, userID, now)
	if errors.Is(err, repository.ErrNotFound) {
		return CancelResult{}, domain.ErrSubscriptionNotFound
	}
	if err != nil {
		return CancelResult{}, fmt.Errorf("failed to cancel subscription for user %d: %w", userID, err)
	}

	s.log.Infow("Auto-renewal cancelled", "userID", userID, "expiresAt", sub.ExpiresAt)

	event := domain.NewSubscriptionEvent(domain.EventSubscriptionCancelRequested, userID, now)
	event.ExpiresAt = sub.ExpiresAt
	if err := s.events.Publish(ctx, event); err != nil {
		s.log.Warnw("Failed to publish subscription event", "type", event.Type, "userID", userID, "error", err)
	}
	return CancelResult{Subscription: sub}, nil
}

// PaymentLink создает ссылку на оплату с новым номером счета
func (s *subscriptionService) PaymentLink(ctx context.Context, userID int64) (string, error) {
	if userID <= 0 {
		return "", fmt.Errorf("user id must be positive: %w", domain.ErrInvalidInput)
	}
	invID := s.invoices.Next()
	link := s.links.Build(robokassa.LinkRequest{
		InvID:       invID,
		Amount:      s.opts.Price,
		Description: s.opts.Description,
		UserID:      userID,
		Recurring:   true,
	})
	s.log.Infow("Payment link issued", "userID", userID, "invID", invID)
	return link, nil
}

// RecordState сохраняет шаг воронки пользователя
func (s *subscriptionService) RecordState(ctx context.Context, userID int64, username, state string) error {
	if username == "" {
		username = domain.PlaceholderUsername(userID)
	}
	now := s.now().UTC()
	err := s.users.Upsert(ctx, domain.User{
		UserID:    userID,
		Username:  username,
		State:     state,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return fmt.Errorf("failed to record state for user %d: %w", userID, err)
	}
	return nil
}

// SaveQuestion сохраняет вопрос пользователя
func (s *subscriptionService) SaveQuestion(ctx context.Context, userID int64, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("empty question: %w", domain.ErrInvalidInput)
	}
	err := s.users.SaveQuestion(ctx, domain.Question{
		UserID:    userID,
		Text:      text,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to save question for user %d: %w", userID, err)
	}
	return nil
}

// Payments журнал платежей пользователя
func (s *subscriptionService) Payments(ctx context.Context, userID int64) ([]domain.Payment, error) {
	payments, err := s.payments.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments for user %d: %w", userID, err)
	}
	return payments, nil
}

// Stats сводная статистика
func (s *subscriptionService) Stats(ctx context.Context) (domain.Stats, error) {
	st, err := s.stats.Stats(ctx, s.now().UTC())
	if err != nil {
		return domain.Stats{}, fmt.Errorf("failed to load statistics: %w", err)
	}
	return st, nil
}
