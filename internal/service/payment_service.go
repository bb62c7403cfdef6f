package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Dhoini/paywall-bot/internal/domain"
	"github.com/Dhoini/paywall-bot/internal/kafka"
	"github.com/Dhoini/paywall-bot/internal/metrics"
	"github.com/Dhoini/paywall-bot/internal/repository"
	"github.com/Dhoini/paywall-bot/internal/robokassa"
	"github.com/Dhoini/paywall-bot/pkg/logger"
)

// ConfirmResult итог подтверждения платежа
type ConfirmResult struct {
	// Duplicate платеж уже был в журнале, состояние не менялось
	Duplicate    bool
	Subscription domain.Subscription
}

// PaymentService интерфейс сервиса подтверждения платежей
type PaymentService interface {
	// Confirm применяет проверенное уведомление ResultURL
	Confirm(ctx context.Context, p robokassa.ConfirmedPayment) (ConfirmResult, error)
	// ConfirmManual подтверждает оплату вручную (команда оператора)
	ConfirmManual(ctx context.Context, userID, invID, operatorID int64) (ConfirmResult, error)
}

type paymentService struct {
	subs      repository.SubscriptionRepository
	payments  repository.PaymentRepository
	messenger Messenger
	events    kafka.Publisher
	metrics   metrics.PaymentMetrics
	opts      Options
	now       func() time.Time
	log       *logger.Logger
}

// NewPaymentService создает новый сервис подтверждения платежей
func NewPaymentService(
	subs repository.SubscriptionRepository,
	payments repository.PaymentRepository,
	messenger Messenger,
	events kafka.Publisher,
	m metrics.PaymentMetrics,
	opts Options,
	now func() time.Time,
	log *logger.Logger,
) PaymentService {
	if now == nil {
		now = time.Now
	}
	return &paymentService{
		subs:      subs,
		payments:  payments,
		messenger: messenger,
		events:    events,
		metrics:   m,
		opts:      opts,
		now:       now,
		log:       log,
	}
}

// Confirm записывает платеж и продлевает подписку. Повтор InvId не меняет состояние.
func (s *paymentService) Confirm(ctx context.Context, p robokassa.ConfirmedPayment) (ConfirmResult, error) {
	return s.confirm(ctx, p.UserID, p.InvID, p.Amount, p.Raw)
}

// ConfirmManual подтверждает оплату от имени оператора на сумму тарифа
func (s *paymentService) ConfirmManual(ctx context.Context, userID, invID, operatorID int64) (ConfirmResult, error) {
	if userID <= 0 || invID <= 0 {
		return ConfirmResult{}, fmt.Errorf("user id and invoice id must be positive: %w", domain.ErrInvalidInput)
	}
	raw := map[string]string{
		"source":   "manual",
		"operator": strconv.FormatInt(operatorID, 10),
	}
	s.log.Infow("Manual payment confirmation", "userID", userID, "invID", invID, "operatorID", operatorID)
	return s.confirm(ctx, userID, invID, s.opts.Price, raw)
}

func (s *paymentService) confirm(ctx context.Context, userID, invID int64, amount float64, raw map[string]string) (ConfirmResult, error) {
	exists, err := s.payments.Exists(ctx, invID)
	if err != nil {
		return ConfirmResult{}, fmt.Errorf("failed to check payment %d: %w", invID, err)
	}
	if exists {
		s.log.Infow("Payment already processed", "userID", userID, "invID", invID)
		return ConfirmResult{Duplicate: true}, nil
	}

	now := s.now().UTC()
	payment := domain.NewPayment(userID, invID, amount, s.opts.Currency, raw, now)

	sub, err := s.subs.ConfirmPayment(ctx, payment, func(current *domain.Subscription) domain.Subscription {
		return domain.ApplyPayment(current, userID, invID, now, s.opts.Period)
	})
	if errors.Is(err, repository.ErrDuplicate) {
		s.log.Infow("Concurrent duplicate payment ignored", "userID", userID, "invID", invID)
		return ConfirmResult{Duplicate: true}, nil
	}
	if err != nil {
		return ConfirmResult{}, fmt.Errorf("failed to confirm payment %d: %w", invID, err)
	}

	s.log.Infow("Payment confirmed",
		"userID", userID,
		"invID", invID,
		"amount", amount,
		"expiresAt", sub.ExpiresAt,
		"anchor", sub.AnchorInvID,
	)
	s.metrics.ObservePaymentAmount(amount, payment.Currency)

	// после коммита: ошибки доставки только логируются
	if err := s.messenger.SendAccessLink(ctx, userID, accessGrantedText(sub.ExpiresAt, s.opts.location())); err != nil {
		s.log.Warnw("Failed to notify user about payment", "userID", userID, "error", err)
	}

	event := domain.NewSubscriptionEvent(domain.EventSubscriptionRenewed, userID, now)
	event.InvID = invID
	event.Amount = amount
	event.ExpiresAt = sub.ExpiresAt
	if err := s.events.Publish(ctx, event); err != nil {
		s.log.Warnw("Failed to publish subscription event", "type", event.Type, "userID", userID, "error", err)
	}

	return ConfirmResult{Subscription: sub}, nil
}
