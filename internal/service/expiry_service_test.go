package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Dhoini/paywall-bot/internal/domain"
	"github.com/Dhoini/paywall-bot/internal/metrics"
	"github.com/Dhoini/paywall-bot/internal/repository"
	"github.com/Dhoini/paywall-bot/pkg/logger"
)

func newExpiryService(subs repository.SubscriptionRepository, m *fakeMessenger, events *recordingPublisher, now time.Time) ExpiryService {
	return NewExpiryService(subs, fakeLinks{}, &seqInvoices{}, m, events, metrics.Nop{}, testOptions(), fixedClock(now), logger.NewNop())
}

func TestExpiry_RevokesExpiredOnce(t *testing.T) {
	store := repository.NewInMemoryStore()
	messenger := &fakeMessenger{}
	events := &recordingPublisher{}
	ctx := context.Background()

	store.Save(domain.Subscription{UserID: 555, ExpiresAt: testNow.Add(-24 * time.Hour), Active: true})

	svc := newExpiryService(store, messenger, events, testNow)
	report, err := svc.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report != (ExpiryReport{Revoked: 1}) {
		t.Fatalf("report = %+v", report)
	}
	if len(messenger.revoked) != 1 || messenger.revoked[0] != 555 {
		t.Fatalf("revoked = %v", messenger.revoked)
	}
	if _, err := store.GetActive(ctx, 555); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("subscription still active: %v", err)
	}
	if len(messenger.messages) != 1 || messenger.messages[0].Buttons[0].Text != renewButtonText {
		t.Fatalf("renew prompt not sent: %+v", messenger.messages)
	}
	if len(messenger.operators) != 1 || !strings.Contains(messenger.operators[0], "удалено: 1") {
		t.Fatalf("operator report = %v", messenger.operators)
	}
	if got := events.types(); len(got) != 1 || got[0] != domain.EventSubscriptionExpired {
		t.Fatalf("events = %v", got)
	}

	report, err = svc.Run(ctx)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if !report.IsZero() || len(messenger.revoked) != 1 || len(messenger.operators) != 1 {
		t.Fatalf("second run must be a no-op: %+v revoked=%v", report, messenger.revoked)
	}
}

func TestExpiry_Warnings(t *testing.T) {
	tests := []struct {
		name      string
		expiresIn time.Duration
		cancelled bool
		warned    bool
	}{
		{name: "three days left", expiresIn: 3*24*time.Hour + 2*time.Hour, warned: true},
		{name: "exactly three days", expiresIn: 3 * 24 * time.Hour, warned: true},
		{name: "cancelled", expiresIn: 3*24*time.Hour + time.Hour, cancelled: true},
		{name: "two days left", expiresIn: 2*24*time.Hour + 23*time.Hour},
		{name: "four days left", expiresIn: 4 * 24 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := repository.NewInMemoryStore()
			messenger := &fakeMessenger{}
			store.Save(domain.Subscription{
				UserID:          1,
				ExpiresAt:       testNow.Add(tt.expiresIn),
				Active:          true,
				CancelRequested: tt.cancelled,
			})

			report, err := newExpiryService(store, messenger, &recordingPublisher{}, testNow).Run(context.Background())
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if got := report.Warned == 1; got != tt.warned {
				t.Fatalf("warned = %v, want %v", got, tt.warned)
			}
			if tt.warned && !strings.Contains(messenger.messages[0].Text, "через 3 дня") {
				t.Fatalf("warning text = %q", messenger.messages[0].Text)
			}
			if len(messenger.revoked) != 0 {
				t.Fatalf("unexpected revoke: %v", messenger.revoked)
			}
		})
	}
}

func TestExpiry_RevokeFailureAlertsOperators(t *testing.T) {
	store := repository.NewInMemoryStore()
	messenger := &fakeMessenger{revokeErr: errors.New("not enough rights")}
	ctx := context.Background()

	store.Save(domain.Subscription{UserID: 8, ExpiresAt: testNow.Add(-time.Hour), Active: true})

	report, err := newExpiryService(store, messenger, &recordingPublisher{}, testNow).Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report != (ExpiryReport{Failed: 1}) {
		t.Fatalf("report = %+v", report)
	}
	if _, err := store.GetActive(ctx, 8); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expired subscription must be deactivated: %v", err)
	}
	if len(messenger.operators) != 2 || !strings.Contains(messenger.operators[0], "user=8") || !strings.Contains(messenger.operators[0], "kick-user") {
		t.Fatalf("operator alerts = %v", messenger.operators)
	}
	if len(messenger.messages) != 0 {
		t.Fatalf("user must not get the renew prompt while still in the channel: %+v", messenger.messages)
	}
}

// staleListStore отдает выборку, сделанную до оплаты
type staleListStore struct {
	*repository.InMemoryStore
	snapshot []domain.Subscription
}

func (s staleListStore) ListActive(context.Context) ([]domain.Subscription, error) {
	return s.snapshot, nil
}

func TestExpiry_PaymentAfterListingIsNotRevoked(t *testing.T) {
	store := repository.NewInMemoryStore()
	messenger := &fakeMessenger{}
	ctx := context.Background()

	stale := store.Save(domain.Subscription{UserID: 9, ExpiresAt: testNow.Add(-time.Hour), Active: true})
	renewed := stale
	renewed.ExpiresAt = testNow.Add(30 * 24 * time.Hour)
	store.Save(renewed)

	subs := staleListStore{InMemoryStore: store, snapshot: []domain.Subscription{stale}}
	report, err := newExpiryService(subs, messenger, &recordingPublisher{}, testNow).Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !report.IsZero() || len(messenger.revoked) != 0 {
		t.Fatalf("renewed user must keep access: report=%+v revoked=%v", report, messenger.revoked)
	}
	if sub, err := store.GetActive(ctx, 9); err != nil || !sub.ExpiresAt.Equal(renewed.ExpiresAt) {
		t.Fatalf("subscription = %+v, %v", sub, err)
	}
}

type failingListStore struct {
	*repository.InMemoryStore
}

func (failingListStore) ListActive(context.Context) ([]domain.Subscription, error) {
	return nil, errors.New("connection reset")
}

func TestExpiry_ListingFailureAlertsOperators(t *testing.T) {
	messenger := &fakeMessenger{}
	svc := newExpiryService(failingListStore{repository.NewInMemoryStore()}, messenger, &recordingPublisher{}, testNow)

	if _, err := svc.Run(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if len(messenger.operators) != 1 || !strings.Contains(messenger.operators[0], "connection reset") {
		t.Fatalf("operators = %v", messenger.operators)
	}
}
