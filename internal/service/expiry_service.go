package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Dhoini/paywall-bot/internal/domain"
	"github.com/Dhoini/paywall-bot/internal/kafka"
	"github.com/Dhoini/paywall-bot/internal/metrics"
	"github.com/Dhoini/paywall-bot/internal/repository"
	"github.com/Dhoini/paywall-bot/internal/robokassa"
	"github.com/Dhoini/paywall-bot/pkg/logger"
)

// warnDaysLeft за сколько полных суток предупреждать об автосписании
const warnDaysLeft = 3

// ExpiryReport итог обхода истекающих подписок
type ExpiryReport struct {
	Warned  int
	Revoked int
	Failed  int
}

// IsZero в обходе ничего не произошло
func (r ExpiryReport) IsZero() bool {
	return r.Warned == 0 && r.Revoked == 0 && r.Failed == 0
}

// ExpiryService интерфейс обхода истекающих подписок
type ExpiryService interface {
	Run(ctx context.Context) (ExpiryReport, error)
}

type expiryService struct {
	subs      repository.SubscriptionRepository
	links     LinkBuilder
	invoices  InvoiceSource
	messenger Messenger
	events    kafka.Publisher
	metrics   metrics.PaymentMetrics
	opts      Options
	now       func() time.Time
	log       *logger.Logger
}

// NewExpiryService создает сервис обхода истекающих подписок
func NewExpiryService(
	subs repository.SubscriptionRepository,
	links LinkBuilder,
	invoices InvoiceSource,
	messenger Messenger,
	events kafka.Publisher,
	m metrics.PaymentMetrics,
	opts Options,
	now func() time.Time,
	log *logger.Logger,
) ExpiryService {
	if now == nil {
		now = time.Now
	}
	return &expiryService{
		subs:      subs,
		links:     links,
		invoices:  invoices,
		messenger: messenger,
		events:    events,
		metrics:   m,
		opts:      opts,
		now:       now,
		log:       log,
	}
}

type expiryOutcome int

const (
	expiryNone expiryOutcome = iota
	expiryWarned
	expiryRevoked
	expiryFailed
)

// Run удаляет из канала пользователей с истекшей подпиской и предупреждает
// тех, у кого до автосписания осталось три дня
func (s *expiryService) Run(ctx context.Context) (ExpiryReport, error) {
	now := s.now().UTC()
	var report ExpiryReport

	active, err := s.subs.ListActive(ctx)
	if err != nil {
		err = fmt.Errorf("failed to list active subscriptions: %w", err)
		s.log.Errorw("Expiry sweep failed", "error", err)
		if nerr := s.messenger.NotifyOperators(ctx, expirySweepFailedText(err)); nerr != nil {
			s.log.Warnw("Failed to alert operators", "error", nerr)
		}
		return report, err
	}

	for _, sub := range active {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		switch s.checkOne(ctx, sub, now) {
		case expiryWarned:
			report.Warned++
		case expiryRevoked:
			report.Revoked++
		case expiryFailed:
			report.Failed++
		case expiryNone:
		}
	}

	s.log.Infow("Expiry sweep finished", "warned", report.Warned, "revoked", report.Revoked, "failed", report.Failed)
	if !report.IsZero() {
		if err := s.messenger.NotifyOperators(ctx, expiryReportText(report)); err != nil {
			s.log.Warnw("Failed to send expiry report to operators", "error", err)
		}
	}
	return report, nil
}

func (s *expiryService) checkOne(ctx context.Context, sub domain.Subscription, now time.Time) expiryOutcome {
	if sub.IsExpiredAt(now) {
		return s.revoke(ctx, sub, now)
	}
	if !sub.CancelRequested && sub.DaysLeft(now) == warnDaysLeft {
		return s.warn(ctx, sub)
	}
	return expiryNone
}

func (s *expiryService) warn(ctx context.Context, sub domain.Subscription) expiryOutcome {
	text := expiryWarningText(s.opts.Price, s.opts.Currency, sub.ExpiresAt, s.opts.location())
	if err := s.messenger.NotifyUser(ctx, sub.UserID, text); err != nil {
		s.log.Warnw("Failed to send expiry warning", "userID", sub.UserID, "error", err)
		s.metrics.IncExpiry(metrics.ResultFailed)
		return expiryFailed
	}
	s.log.Infow("Expiry warning sent", "userID", sub.UserID, "expiresAt", sub.ExpiresAt)
	s.metrics.IncExpiry(metrics.ResultWarned)
	return expiryWarned
}

// revoke сначала условно снимает active (строка, продленная оплатой после выборки,
// не меняется), и только потом удаляет пользователя из канала.
// Если удалить не удалось, строка уже неактивна: операторы получают алерт для ручного kick-user.
func (s *expiryService) revoke(ctx context.Context, sub domain.Subscription, now time.Time) expiryOutcome {
	userID := sub.UserID
	deactivated, err := s.subs.DeactivateExpired(ctx, userID, now)
	if err != nil {
		s.log.Errorw("Failed to deactivate subscription", "userID", userID, "error", err)
		s.metrics.IncExpiry(metrics.ResultFailed)
		return expiryFailed
	}
	if !deactivated {
		// продлили между выборкой и проверкой
		return expiryNone
	}

	if err := s.messenger.Revoke(ctx, userID); err != nil {
		s.log.Errorw("Failed to remove user from channel", "userID", userID, "error", err)
		s.metrics.IncExpiry(metrics.ResultFailed)
		if nerr := s.messenger.NotifyOperators(ctx, revokeFailedText(userID, err)); nerr != nil {
			s.log.Warnw("Failed to alert operators", "error", nerr)
		}
		return expiryFailed
	}

	s.log.Infow("User removed from channel, subscription expired", "userID", userID, "expiresAt", sub.ExpiresAt)
	s.metrics.IncExpiry(metrics.ResultRevoked)

	link := s.links.Build(robokassa.LinkRequest{
		InvID:       s.invoices.Next(),
		Amount:      s.opts.Price,
		Description: s.opts.Description,
		UserID:      userID,
		Recurring:   true,
	})
	if err := s.messenger.NotifyUser(ctx, userID, expiredText(), Button{Text: renewButtonText, URL: link}); err != nil {
		s.log.Warnw("Failed to notify user about expiry", "userID", userID, "error", err)
	}

	event := domain.NewSubscriptionEvent(domain.EventSubscriptionExpired, userID, now)
	event.ExpiresAt = sub.ExpiresAt
	if err := s.events.Publish(ctx, event); err != nil {
		s.log.Warnw("Failed to publish subscription event", "type", event.Type, "userID", userID, "error", err)
	}
	return expiryRevoked
}
