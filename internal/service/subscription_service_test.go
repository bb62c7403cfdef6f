package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Dhoini/paywall-bot/internal/domain"
	"github.com/Dhoini/paywall-bot/internal/repository"
	"github.com/Dhoini/paywall-bot/pkg/logger"
)

func newSubscriptionFixture(now time.Time) (*repository.InMemoryStore, *recordingPublisher, SubscriptionService) {
	store := repository.NewInMemoryStore()
	events := &recordingPublisher{}
	deps := SubscriptionDeps{Subscriptions: store, Payments: store, Users: store, Stats: store}
	svc := NewSubscriptionService(deps, fakeLinks{}, &seqInvoices{next: 100}, events, testOptions(), fixedClock(now), logger.NewNop())
	return store, events, svc
}

func TestIsActive(t *testing.T) {
	store, _, svc := newSubscriptionFixture(testNow)
	ctx := context.Background()

	store.Save(domain.Subscription{UserID: 1, ExpiresAt: testNow.Add(time.Hour), Active: true})
	store.Save(domain.Subscription{UserID: 2, ExpiresAt: testNow.Add(-time.Hour), Active: true})

	tests := []struct {
		userID int64
		want   bool
	}{
		{userID: 1, want: true},
		{userID: 2, want: false},
		{userID: 3, want: false},
	}
	for _, tt := range tests {
		got, err := svc.IsActive(ctx, tt.userID)
		if err != nil {
			t.Fatalf("IsActive(%d): %v", tt.userID, err)
		}
		if got != tt.want {
			t.Errorf("IsActive(%d) = %v, want %v", tt.userID, got, tt.want)
		}
	}
}

func TestRequestCancel_KeepsAccessAndIsIdempotent(t *testing.T) {
	store, events, svc := newSubscriptionFixture(testNow)
	ctx := context.Background()

	expires := testNow.Add(10 * 24 * time.Hour)
	store.Save(domain.Subscription{UserID: 5, ExpiresAt: expires, Active: true, AnchorInvID: 1, NextChargeAt: timePtr(expires)})

	res, err := svc.RequestCancel(ctx, 5)
	if err != nil {
		t.Fatalf("RequestCancel: %v", err)
	}
	if res.AlreadyCancelled || !res.Subscription.CancelRequested {
		t.Fatalf("unexpected result: %+v", res)
	}
	if !res.Subscription.ExpiresAt.Equal(expires) {
		t.Fatalf("cancel shortened access: %v", res.Subscription.ExpiresAt)
	}

	again, err := svc.RequestCancel(ctx, 5)
	if err != nil || !again.AlreadyCancelled {
		t.Fatalf("second cancel: %+v, %v", again, err)
	}
	if got := events.types(); len(got) != 1 || got[0] != domain.EventSubscriptionCancelRequested {
		t.Fatalf("events = %v", got)
	}
	if text := CancelText(again.Subscription, again.AlreadyCancelled, time.UTC); !strings.Contains(text, "20.03.2025") {
		t.Fatalf("cancel text must show the end date: %q", text)
	}

	summary, err := svc.Summary(ctx, 5)
	if err != nil || !summary.CancelRequested || !summary.Active {
		t.Fatalf("summary = %+v, %v", summary, err)
	}

	if _, err := svc.RequestCancel(ctx, 404); !errors.Is(err, domain.ErrSubscriptionNotFound) {
		t.Fatalf("expected ErrSubscriptionNotFound, got %v", err)
	}
}

func TestPaymentLink(t *testing.T) {
	_, _, svc := newSubscriptionFixture(testNow)

	link, err := svc.PaymentLink(context.Background(), 77)
	if err != nil {
		t.Fatalf("PaymentLink: %v", err)
	}
	if !strings.Contains(link, "InvId=101") || !strings.Contains(link, "user=77") || !strings.Contains(link, "recurring=true") {
		t.Fatalf("link = %s", link)
	}
	if _, err := svc.PaymentLink(context.Background(), 0); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestRecordStateAndQuestions(t *testing.T) {
	store, _, svc := newSubscriptionFixture(testNow)
	ctx := context.Background()

	if err := svc.RecordState(ctx, 11, "", StateWant); err != nil {
		t.Fatalf("RecordState: %v", err)
	}
	u, ok := store.User(11)
	if !ok || u.Username != "user_11" || u.State != StateWant {
		t.Fatalf("user = %+v", u)
	}

	if err := svc.SaveQuestion(ctx, 11, "  "); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if err := svc.SaveQuestion(ctx, 11, "Можно ли без первоначального взноса?"); err != nil {
		t.Fatalf("SaveQuestion: %v", err)
	}
	if qs := store.Questions(11); len(qs) != 1 {
		t.Fatalf("questions = %+v", qs)
	}

	st, err := svc.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.TotalUsers != 1 || st.Funnel[StateWant] != 1 {
		t.Fatalf("stats = %+v", st)
	}
	if text := StatsText(st, true); !strings.Contains(text, "тестовый") {
		t.Fatalf("stats text = %q", text)
	}
}
