package domain

import (
	"errors"
	"testing"
	"time"
)

const period = 30 * 24 * time.Hour

var now = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func TestApplyPayment_NoSubscription(t *testing.T) {
	got := ApplyPayment(nil, 42, 1001, now, period)

	if !got.Active {
		t.Fatalf("expected active subscription")
	}
	if want := now.Add(period); !got.ExpiresAt.Equal(want) {
		t.Fatalf("expires_at = %v, want %v", got.ExpiresAt, want)
	}
	if got.AnchorInvID != 1001 {
		t.Fatalf("anchor = %d, want 1001", got.AnchorInvID)
	}
	if got.NextChargeAt == nil || !got.NextChargeAt.Equal(got.ExpiresAt) {
		t.Fatalf("next_charge_at = %v, want %v", got.NextChargeAt, got.ExpiresAt)
	}
	if _, ok := got.Pending.(NoPending); !ok {
		t.Fatalf("expected no pending charge, got %#v", got.Pending)
	}
}

func TestApplyPayment_ExtendsFromCurrentExpiry(t *testing.T) {
	current := &Subscription{
		ID:          7,
		UserID:      42,
		Active:      true,
		ExpiresAt:   now.Add(5 * 24 * time.Hour),
		AnchorInvID: 500,
		Pending:     NoPending{},
	}

	got := ApplyPayment(current, 42, 1002, now, period)

	if got.ID != 7 {
		t.Fatalf("expected in-place update of row 7, got id %d", got.ID)
	}
	if want := current.ExpiresAt.Add(period); !got.ExpiresAt.Equal(want) {
		t.Fatalf("expires_at = %v, want %v", got.ExpiresAt, want)
	}
	if got.AnchorInvID != 500 {
		t.Fatalf("anchor must not change, got %d", got.AnchorInvID)
	}
}

func TestApplyPayment_ExpiredButActiveRowExtendsFromNow(t *testing.T) {
	current := &Subscription{ID: 3, UserID: 42, Active: true, ExpiresAt: now.Add(-time.Hour), AnchorInvID: 9}

	got := ApplyPayment(current, 42, 10, now, period)

	if want := now.Add(period); !got.ExpiresAt.Equal(want) {
		t.Fatalf("expires_at = %v, want %v", got.ExpiresAt, want)
	}
	if got.ID != 3 || got.AnchorInvID != 9 {
		t.Fatalf("expected same row and anchor, got id=%d anchor=%d", got.ID, got.AnchorInvID)
	}
}

func TestApplyPayment_InactiveRowStartsNewSubscription(t *testing.T) {
	current := &Subscription{ID: 3, UserID: 42, Active: false, ExpiresAt: now.Add(-48 * time.Hour), AnchorInvID: 9}

	got := ApplyPayment(current, 42, 77, now, period)

	if got.ID != 0 {
		t.Fatalf("expected a new row, got id %d", got.ID)
	}
	if got.AnchorInvID != 77 {
		t.Fatalf("anchor = %d, want 77", got.AnchorInvID)
	}
}

func TestApplyPayment_PendingMatchClearsPendingKeepsCancel(t *testing.T) {
	cancelledAt := now.Add(-time.Hour)
	current := &Subscription{
		ID:                1,
		UserID:            42,
		Active:            true,
		ExpiresAt:         now.Add(time.Hour),
		AnchorInvID:       100,
		CancelRequested:   true,
		CancelRequestedAt: &cancelledAt,
		Pending:           Pending{InvID: 200, Amount: 20000, CreatedAt: now.Add(-time.Minute)},
	}

	got := ApplyPayment(current, 42, 200, now, period)

	if _, ok := got.Pending.(NoPending); !ok {
		t.Fatalf("pending should be cleared, got %#v", got.Pending)
	}
	if !got.CancelRequested {
		t.Fatalf("cancel flag must survive a pending confirmation")
	}
}

func TestApplyPayment_StandalonePaymentClearsCancel(t *testing.T) {
	cancelledAt := now.Add(-time.Hour)
	current := &Subscription{
		ID:                1,
		UserID:            42,
		Active:            true,
		ExpiresAt:         now.Add(time.Hour),
		AnchorInvID:       100,
		CancelRequested:   true,
		CancelRequestedAt: &cancelledAt,
		Pending:           Pending{InvID: 200},
	}

	got := ApplyPayment(current, 42, 300, now, period)

	if got.CancelRequested || got.CancelRequestedAt != nil {
		t.Fatalf("standalone payment should re-enable autopay")
	}
	if got.PendingInvID() != 200 {
		t.Fatalf("unrelated pending charge must stay, got %d", got.PendingInvID())
	}
}

func TestApplyPayment_Monotonic(t *testing.T) {
	current := ApplyPayment(nil, 1, 1, now, period)
	current.ID = 1
	for inv := int64(2); inv < 6; inv++ {
		next := ApplyPayment(&current, 1, inv, now, period)
		if !next.ExpiresAt.After(current.ExpiresAt) {
			t.Fatalf("expires_at did not increase: %v -> %v", current.ExpiresAt, next.ExpiresAt)
		}
		current = next
	}
}

func TestDaysLeft(t *testing.T) {
	tests := []struct {
		name    string
		expires time.Time
		want    int
	}{
		{"exactly three days", now.Add(72 * time.Hour), 3},
		{"three and a half days", now.Add(84 * time.Hour), 3},
		{"just under three days", now.Add(72*time.Hour - time.Second), 2},
		{"one hour ago", now.Add(-time.Hour), -1},
		{"exactly one day ago", now.Add(-24 * time.Hour), -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Subscription{ExpiresAt: tt.expires}
			if got := s.DaysLeft(now); got != tt.want {
				t.Fatalf("DaysLeft() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDueForCharge(t *testing.T) {
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	tests := []struct {
		name string
		sub  Subscription
		want bool
	}{
		{"due", Subscription{Active: true, AnchorInvID: 1, NextChargeAt: &past}, true},
		{"not yet", Subscription{Active: true, AnchorInvID: 1, NextChargeAt: &future}, false},
		{"cancelled", Subscription{Active: true, AnchorInvID: 1, NextChargeAt: &past, CancelRequested: true}, false},
		{"no anchor", Subscription{Active: true, NextChargeAt: &past}, false},
		{"inactive", Subscription{AnchorInvID: 1, NextChargeAt: &past}, false},
		{"no schedule", Subscription{Active: true, AnchorInvID: 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.sub.DueForCharge(now); got != tt.want {
				t.Fatalf("DueForCharge() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidationErrorsIsInvalidInput(t *testing.T) {
	var errs ValidationErrors
	errs.Add("OutSum", "required")
	if !errors.Is(errs, ErrInvalidInput) {
		t.Fatalf("expected ValidationErrors to match ErrInvalidInput")
	}
}
