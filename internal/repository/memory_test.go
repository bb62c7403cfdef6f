package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Dhoini/paywall-bot/internal/domain"
)

var testNow = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

const testPeriod = 30 * 24 * time.Hour

func confirm(t *testing.T, r *InMemoryStore, userID, invID int64) (domain.Subscription, error) {
	t.Helper()
	p := domain.NewPayment(userID, invID, 20000, "", map[string]string{"InvId": "x"}, testNow)
	return r.ConfirmPayment(context.Background(), p, func(cur *domain.Subscription) domain.Subscription {
		return domain.ApplyPayment(cur, userID, invID, testNow, testPeriod)
	})
}

func TestInMemoryStore_ConfirmPaymentIsIdempotent(t *testing.T) {
	r := NewInMemoryStore()
	ctx := context.Background()

	first, err := confirm(t, r, 1, 100)
	if err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	if _, err := confirm(t, r, 1, 100); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("replay: expected ErrDuplicate, got %v", err)
	}

	got, err := r.GetActive(ctx, 1)
	if err != nil {
		t.Fatalf("GetActive: %v", err)
	}
	if !got.ExpiresAt.Equal(first.ExpiresAt) {
		t.Fatalf("replay changed expires_at: %v -> %v", first.ExpiresAt, got.ExpiresAt)
	}
	payments, _ := r.ListByUser(ctx, 1)
	if len(payments) != 1 {
		t.Fatalf("expected exactly one ledger row, got %d", len(payments))
	}
	if u, ok := r.User(1); !ok || u.Username != "user_1" {
		t.Fatalf("expected placeholder user row, got %+v", u)
	}
}

func TestInMemoryStore_SingleActiveRowPerUser(t *testing.T) {
	r := NewInMemoryStore()
	ctx := context.Background()

	old := r.Save(domain.Subscription{UserID: 1, Active: true, ExpiresAt: testNow.Add(-time.Hour)})
	if ok, _ := r.DeactivateExpired(ctx, 1, testNow); !ok {
		t.Fatalf("expected expired row to be deactivated")
	}

	sub, err := confirm(t, r, 1, 200)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if sub.ID == old.ID {
		t.Fatalf("payment after expiry should open a new row")
	}

	active, _ := r.ListActive(ctx)
	if len(active) != 1 || active[0].ID != sub.ID {
		t.Fatalf("expected one active row %d, got %+v", sub.ID, active)
	}
}

func TestInMemoryStore_ClaimCharge(t *testing.T) {
	r := NewInMemoryStore()
	ctx := context.Background()

	due := testNow.Add(-time.Minute)
	sub := r.Save(domain.Subscription{UserID: 1, Active: true, ExpiresAt: testNow, AnchorInvID: 10, NextChargeAt: &due})

	claim := ChargeClaim{
		UserID:               1,
		SubscriptionID:       sub.ID,
		ObservedNextChargeAt: due,
		NextChargeAt:         testNow.Add(24 * time.Hour),
		Pending:              domain.Pending{InvID: 11, Amount: 20000, CreatedAt: testNow},
	}
	ok, err := r.ClaimCharge(ctx, claim)
	if err != nil || !ok {
		t.Fatalf("first claim: ok=%v err=%v", ok, err)
	}
	if ok, _ := r.ClaimCharge(ctx, claim); ok {
		t.Fatalf("second claim on a moved row must lose")
	}

	got, _ := r.GetActive(ctx, 1)
	if got.PendingInvID() != 11 {
		t.Fatalf("pending = %d, want 11", got.PendingInvID())
	}

	if ok, _ := r.ReleaseCharge(ctx, 1, 99); ok {
		t.Fatalf("release of a foreign invoice must be a no-op")
	}
	if ok, _ := r.ReleaseCharge(ctx, 1, 11); !ok {
		t.Fatalf("expected release of invoice 11")
	}
	got, _ = r.GetActive(ctx, 1)
	if _, ok := got.Pending.(domain.NoPending); !ok {
		t.Fatalf("pending not cleared: %#v", got.Pending)
	}
}

func TestInMemoryStore_RequestCancelKeepsExpiry(t *testing.T) {
	r := NewInMemoryStore()
	ctx := context.Background()

	sub, _ := confirm(t, r, 5, 1)
	first, err := r.RequestCancel(ctx, 5, testNow)
	if err != nil {
		t.Fatalf("RequestCancel: %v", err)
	}
	second, _ := r.RequestCancel(ctx, 5, testNow.Add(time.Hour))

	if !first.ExpiresAt.Equal(sub.ExpiresAt) {
		t.Fatalf("cancel changed expires_at")
	}
	if !second.CancelRequestedAt.Equal(testNow) {
		t.Fatalf("repeated cancel must keep the first timestamp, got %v", second.CancelRequestedAt)
	}
	if due, _ := r.ListDueForCharge(ctx, sub.ExpiresAt.Add(time.Hour)); len(due) != 0 {
		t.Fatalf("cancelled subscription must not be due for charge")
	}
	if _, err := r.RequestCancel(ctx, 6, testNow); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInMemoryStore_DeactivateExpiredIsConditional(t *testing.T) {
	r := NewInMemoryStore()
	ctx := context.Background()

	r.Save(domain.Subscription{UserID: 1, Active: true, ExpiresAt: testNow.Add(time.Hour)})
	if ok, _ := r.DeactivateExpired(ctx, 1, testNow); ok {
		t.Fatalf("unexpired subscription must stay active")
	}
	if ok, _ := r.DeactivateExpired(ctx, 1, testNow.Add(2*time.Hour)); !ok {
		t.Fatalf("expected deactivation")
	}
	if ok, _ := r.DeactivateExpired(ctx, 1, testNow.Add(2*time.Hour)); ok {
		t.Fatalf("second deactivation must be a no-op")
	}
}

func TestInMemoryStore_Stats(t *testing.T) {
	r := NewInMemoryStore()
	ctx := context.Background()

	r.Upsert(ctx, domain.User{UserID: 1, Username: "a", State: "start"})
	r.Upsert(ctx, domain.User{UserID: 2, Username: "b", State: "start"})
	r.Upsert(ctx, domain.User{UserID: 3, Username: "c", State: "paid"})
	confirm(t, r, 1, 1)
	r.Save(domain.Subscription{UserID: 2, Active: true, ExpiresAt: testNow.Add(-time.Hour)})

	st, err := r.Stats(ctx, testNow)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.TotalUsers != 3 || st.ActiveSubscriptions != 1 || st.ExpiredActive != 1 || st.TotalPayments != 1 {
		t.Fatalf("unexpected stats: %+v", st)
	}
	// подтвержденная оплата переводит пользователя 1 в paid
	if st.Funnel["start"] != 1 || st.Funnel["paid"] != 2 {
		t.Fatalf("unexpected funnel: %+v", st.Funnel)
	}
}
