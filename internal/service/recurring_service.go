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

// retryInterval через сколько повторить списание, если подтверждение не пришло
const retryInterval = 24 * time.Hour

// RecurringReport итог обхода рекуррентных списаний
type RecurringReport struct {
	Due       int
	Submitted int
	Failed    int
	Skipped   int
}

// RecurringService интерфейс обхода рекуррентных списаний
type RecurringService interface {
	Run(ctx context.Context) (RecurringReport, error)
}

type recurringService struct {
	subs      repository.SubscriptionRepository
	charger   Charger
	links     LinkBuilder
	invoices  InvoiceSource
	messenger Messenger
	events    kafka.Publisher
	metrics   metrics.PaymentMetrics
	opts      Options
	now       func() time.Time
	log       *logger.Logger
}

// NewRecurringService создает сервис рекуррентных списаний
func NewRecurringService(
	subs repository.SubscriptionRepository,
	charger Charger,
	links LinkBuilder,
	invoices InvoiceSource,
	messenger Messenger,
	events kafka.Publisher,
	m metrics.PaymentMetrics,
	opts Options,
	now func() time.Time,
	log *logger.Logger,
) RecurringService {
	if now == nil {
		now = time.Now
	}
	return &recurringService{
		subs:      subs,
		charger:   charger,
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

type chargeOutcome int

const (
	chargeSubmitted chargeOutcome = iota
	chargeFailed
	chargeSkipped
)

// Run отправляет списания по всем подпискам, у которых подошел next_charge_at.
// Продление происходит только после уведомления ResultURL.
func (s *recurringService) Run(ctx context.Context) (RecurringReport, error) {
	now := s.now().UTC()
	var report RecurringReport

	due, err := s.subs.ListDueForCharge(ctx, now)
	if err != nil {
		return report, fmt.Errorf("failed to list subscriptions due for charge: %w", err)
	}
	report.Due = len(due)

	for _, sub := range due {
		if ctx.Err() != nil {
			s.log.Warnw("Recurring sweep interrupted", "processed", report.Submitted+report.Failed+report.Skipped, "due", report.Due)
			return report, ctx.Err()
		}
		switch s.chargeOne(ctx, sub, now) {
		case chargeSubmitted:
			report.Submitted++
		case chargeFailed:
			report.Failed++
		case chargeSkipped:
			report.Skipped++
		}
	}

	s.log.Infow("Recurring sweep finished",
		"due", report.Due,
		"submitted", report.Submitted,
		"failed", report.Failed,
		"skipped", report.Skipped,
	)
	return report, nil
}

func (s *recurringService) chargeOne(ctx context.Context, sub domain.Subscription, now time.Time) chargeOutcome {
	if !sub.DueForCharge(now) {
		s.metrics.IncRecurring(metrics.ResultSkipped)
		return chargeSkipped
	}

	invID := s.invoices.Next()
	claimed, err := s.subs.ClaimCharge(ctx, repository.ChargeClaim{
		UserID:               sub.UserID,
		SubscriptionID:       sub.ID,
		ObservedNextChargeAt: *sub.NextChargeAt,
		NextChargeAt:         now.Add(retryInterval),
		Pending: domain.Pending{
			InvID:     invID,
			Amount:    s.opts.Price,
			CreatedAt: now,
		},
	})
	if err != nil {
		s.log.Errorw("Failed to claim recurring charge", "userID", sub.UserID, "error", err)
		s.metrics.IncRecurring(metrics.ResultFailed)
		return chargeFailed
	}
	if !claimed {
		s.log.Infow("Subscription changed since listing, charge skipped", "userID", sub.UserID)
		s.metrics.IncRecurring(metrics.ResultSkipped)
		return chargeSkipped
	}

	err = s.charger.Charge(ctx, robokassa.ChargeRequest{
		UserID:        sub.UserID,
		InvID:         invID,
		PreviousInvID: sub.AnchorInvID,
		Amount:        s.opts.Price,
		Description:   s.opts.Description,
	})
	if err != nil {
		s.handleChargeFailure(ctx, sub, invID, now, err)
		return chargeFailed
	}

	s.log.Infow("Recurring charge submitted", "userID", sub.UserID, "invID", invID, "anchor", sub.AnchorInvID)
	s.metrics.IncRecurring(metrics.ResultSubmitted)
	s.publish(ctx, domain.EventChargeSubmitted, sub, invID, now)
	return chargeSubmitted
}

// handleChargeFailure снимает резерв и предлагает оплатить вручную.
// next_charge_at остается сдвинутым на сутки.
func (s *recurringService) handleChargeFailure(ctx context.Context, sub domain.Subscription, invID int64, now time.Time, chargeErr error) {
	s.log.Warnw("Recurring charge failed", "userID", sub.UserID, "invID", invID, "error", chargeErr)
	s.metrics.IncRecurring(metrics.ResultFailed)

	if released, err := s.subs.ReleaseCharge(ctx, sub.UserID, invID); err != nil {
		s.log.Errorw("Failed to release pending charge", "userID", sub.UserID, "invID", invID, "error", err)
	} else if !released {
		s.log.Infow("Pending charge already replaced", "userID", sub.UserID, "invID", invID)
	}

	link := s.links.Build(robokassa.LinkRequest{
		InvID:       s.invoices.Next(),
		Amount:      s.opts.Price,
		Description: s.opts.Description,
		UserID:      sub.UserID,
		Recurring:   true,
	})
	if err := s.messenger.NotifyUser(ctx, sub.UserID, chargeFailedText(), Button{Text: payButtonText, URL: link}); err != nil {
		s.log.Warnw("Failed to notify user about failed charge", "userID", sub.UserID, "error", err)
	}
	if err := s.messenger.NotifyOperators(ctx, chargeFailedOperatorText(sub.UserID, chargeErr)); err != nil {
		s.log.Warnw("Failed to alert operators", "userID", sub.UserID, "error", err)
	}

	s.publish(ctx, domain.EventChargeFailed, sub, invID, now)
}

func (s *recurringService) publish(ctx context.Context, t domain.EventType, sub domain.Subscription, invID int64, now time.Time) {
	event := domain.NewSubscriptionEvent(t, sub.UserID, now)
	event.InvID = invID
	event.Amount = s.opts.Price
	event.ExpiresAt = sub.ExpiresAt
	if err := s.events.Publish(ctx, event); err != nil {
		s.log.Warnw("Failed to publish subscription event", "type", t, "userID", sub.UserID, "error", err)
	}
}
