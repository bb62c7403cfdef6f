package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Dhoini/paywall-bot/internal/domain"
	"github.com/Dhoini/paywall-bot/internal/metrics"
	"github.com/Dhoini/paywall-bot/internal/repository"
	"github.com/Dhoini/paywall-bot/internal/robokassa"
	"github.com/Dhoini/paywall-bot/pkg/logger"
)

type paymentFixture struct {
	store     *repository.InMemoryStore
	messenger *fakeMessenger
	events    *recordingPublisher
	svc       PaymentService
}

func newPaymentFixture(now time.Time) *paymentFixture {
	f := &paymentFixture{
		store:     repository.NewInMemoryStore(),
		messenger: &fakeMessenger{},
		events:    &recordingPublisher{},
	}
	f.svc = NewPaymentService(f.store, f.store, f.messenger, f.events, metrics.Nop{}, testOptions(), fixedClock(now), logger.NewNop())
	return f
}

func confirmed(userID, invID int64) robokassa.ConfirmedPayment {
	return robokassa.ConfirmedPayment{
		UserID:   userID,
		InvID:    invID,
		RawInvID: "1001",
		Amount:   20000,
		Raw:      map[string]string{"OutSum": "20000.000000", "InvId": "1001"},
	}
}

func TestConfirm_CreatesSubscription(t *testing.T) {
	f := newPaymentFixture(testNow)
	ctx := context.Background()

	res, err := f.svc.Confirm(ctx, confirmed(555, 1001))
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if res.Duplicate {
		t.Fatalf("first confirmation reported as duplicate")
	}

	sub, err := f.store.GetActive(ctx, 555)
	if err != nil {
		t.Fatalf("GetActive: %v", err)
	}
	if want := testNow.Add(30 * 24 * time.Hour); !sub.ExpiresAt.Equal(want) {
		t.Fatalf("ExpiresAt = %v, want %v", sub.ExpiresAt, want)
	}
	if sub.AnchorInvID != 1001 || sub.NextChargeAt == nil || !sub.NextChargeAt.Equal(sub.ExpiresAt) {
		t.Fatalf("unexpected recurring fields: anchor=%d next=%v", sub.AnchorInvID, sub.NextChargeAt)
	}

	payments, _ := f.store.ListByUser(ctx, 555)
	if len(payments) != 1 || payments[0].InvID != 1001 || payments[0].Currency != "KZT" {
		t.Fatalf("unexpected ledger: %+v", payments)
	}
	if u, ok := f.store.User(555); !ok || u.Username != "user_555" {
		t.Fatalf("placeholder user not created: %+v", u)
	}
	if len(f.messenger.links) != 1 || f.messenger.links[0].UserID != 555 {
		t.Fatalf("access link not sent: %+v", f.messenger.links)
	}
	if got := f.events.types(); len(got) != 1 || got[0] != domain.EventSubscriptionRenewed {
		t.Fatalf("events = %v", got)
	}
}

func TestConfirm_MarksUserPaid(t *testing.T) {
	f := newPaymentFixture(testNow)
	ctx := context.Background()

	if err := f.store.Upsert(ctx, domain.User{UserID: 555, Username: "aigerim", State: StatePayment}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := f.svc.Confirm(ctx, confirmed(555, 1001)); err != nil {
			t.Fatalf("Confirm #%d: %v", i+1, err)
		}
	}

	st, err := f.store.Stats(ctx, testNow)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Funnel[StatePaid] != 1 || st.Funnel[StatePayment] != 0 {
		t.Fatalf("funnel = %v", st.Funnel)
	}
	if u, _ := f.store.User(555); u.Username != "aigerim" {
		t.Fatalf("username overwritten: %+v", u)
	}
}

func TestConfirm_ReplayIsNoop(t *testing.T) {
	f := newPaymentFixture(testNow)
	ctx := context.Background()

	if _, err := f.svc.Confirm(ctx, confirmed(555, 1001)); err != nil {
		t.Fatalf("first Confirm: %v", err)
	}
	first, _ := f.store.GetActive(ctx, 555)

	res, err := f.svc.Confirm(ctx, confirmed(555, 1001))
	if err != nil {
		t.Fatalf("replay Confirm: %v", err)
	}
	if !res.Duplicate {
		t.Fatalf("replay must be reported as duplicate")
	}

	second, _ := f.store.GetActive(ctx, 555)
	if !second.ExpiresAt.Equal(first.ExpiresAt) {
		t.Fatalf("replay moved expiry: %v -> %v", first.ExpiresAt, second.ExpiresAt)
	}
	payments, _ := f.store.ListByUser(ctx, 555)
	if len(payments) != 1 {
		t.Fatalf("replay added ledger rows: %d", len(payments))
	}
	if len(f.messenger.links) != 1 {
		t.Fatalf("replay notified the user again")
	}
}

func TestConfirm_ExtendsFromCurrentExpiry(t *testing.T) {
	f := newPaymentFixture(testNow)
	ctx := context.Background()

	expires := testNow.Add(10 * 24 * time.Hour)
	f.store.Save(domain.Subscription{
		UserID:       7,
		ExpiresAt:    expires,
		Active:       true,
		AnchorInvID:  500,
		NextChargeAt: timePtr(expires),
	})

	res, err := f.svc.Confirm(ctx, confirmed(7, 501))
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if want := expires.Add(30 * 24 * time.Hour); !res.Subscription.ExpiresAt.Equal(want) {
		t.Fatalf("ExpiresAt = %v, want %v", res.Subscription.ExpiresAt, want)
	}
	if res.Subscription.AnchorInvID != 500 {
		t.Fatalf("anchor must not change, got %d", res.Subscription.AnchorInvID)
	}
}

func TestConfirm_DeliveryFailuresDoNotRollBack(t *testing.T) {
	f := newPaymentFixture(testNow)
	f.messenger.notifyErr = errors.New("bot blocked")
	f.events.err = errors.New("broker down")
	ctx := context.Background()

	if _, err := f.svc.Confirm(ctx, confirmed(9, 2001)); err != nil {
		t.Fatalf("Confirm must succeed when delivery fails: %v", err)
	}
	if _, err := f.store.GetActive(ctx, 9); err != nil {
		t.Fatalf("subscription was not committed: %v", err)
	}
}

func TestConfirm_ConcurrentDuplicates(t *testing.T) {
	f := newPaymentFixture(testNow)
	ctx := context.Background()

	const workers = 10
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		applied    int
		duplicates int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.Confirm(ctx, confirmed(42, 3001))
			if err != nil {
				t.Errorf("Confirm: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if res.Duplicate {
				duplicates++
			} else {
				applied++
			}
		}()
	}
	wg.Wait()

	if applied != 1 || duplicates != workers-1 {
		t.Fatalf("applied=%d duplicates=%d", applied, duplicates)
	}
	sub, _ := f.store.GetActive(ctx, 42)
	if want := testNow.Add(30 * 24 * time.Hour); !sub.ExpiresAt.Equal(want) {
		t.Fatalf("ExpiresAt = %v, want %v", sub.ExpiresAt, want)
	}
}

func TestConfirmManual(t *testing.T) {
	f := newPaymentFixture(testNow)
	ctx := context.Background()

	res, err := f.svc.ConfirmManual(ctx, 77, 4001, 1)
	if err != nil {
		t.Fatalf("ConfirmManual: %v", err)
	}
	payments, _ := f.store.ListByUser(ctx, 77)
	if len(payments) != 1 || payments[0].Amount != 20000 {
		t.Fatalf("unexpected ledger: %+v", payments)
	}
	if !strings.Contains(string(payments[0].RawPayload), `"source":"manual"`) {
		t.Fatalf("raw payload = %s", payments[0].RawPayload)
	}
	if text := ManualConfirmText(77, 4001, res, time.UTC); !strings.Contains(text, "#4001") {
		t.Fatalf("operator text = %q", text)
	}

	again, err := f.svc.ConfirmManual(ctx, 77, 4001, 1)
	if err != nil || !again.Duplicate {
		t.Fatalf("manual replay: %+v, %v", again, err)
	}

	if _, err := f.svc.ConfirmManual(ctx, 0, 4002, 1); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
