package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Dhoini/paywall-bot/internal/domain"
)

// InMemoryStore реализация всех хранилищ в памяти (тесты, локальный запуск)
type InMemoryStore struct {
	mu sync.Mutex

	lastSubID     int64
	lastPaymentID int64

	subscriptions map[int64]domain.Subscription
	payments      map[int64]domain.Payment
	users         map[int64]domain.User
	questions     []domain.Question
}

// NewInMemoryStore создает пустое хранилище в памяти
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		subscriptions: make(map[int64]domain.Subscription),
		payments:      make(map[int64]domain.Payment),
		users:         make(map[int64]domain.User),
	}
}

var (
	_ SubscriptionRepository = (*InMemoryStore)(nil)
	_ PaymentRepository      = (*InMemoryStore)(nil)
	_ UserRepository         = (*InMemoryStore)(nil)
	_ StatsRepository        = (*InMemoryStore)(nil)
)

// Save вставляет или перезаписывает подписку как есть. ID 0 означает новую запись.
func (r *InMemoryStore) Save(sub domain.Subscription) domain.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saveLocked(sub)
}

func (r *InMemoryStore) saveLocked(sub domain.Subscription) domain.Subscription {
	if sub.ID == 0 {
		r.lastSubID++
		sub.ID = r.lastSubID
	}
	if sub.Pending == nil {
		sub.Pending = domain.NoPending{}
	}
	r.subscriptions[sub.ID] = sub
	return sub
}

// activeLocked активная запись пользователя; вызывающий держит мьютекс
func (r *InMemoryStore) activeLocked(userID int64) (domain.Subscription, bool) {
	var (
		found domain.Subscription
		ok    bool
	)
	for _, s := range r.subscriptions {
		if s.UserID == userID && s.Active && (!ok || s.ID > found.ID) {
			found, ok = s, true
		}
	}
	return found, ok
}

// GetActive возвращает активную подписку пользователя
func (r *InMemoryStore) GetActive(ctx context.Context, userID int64) (domain.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.activeLocked(userID)
	if !ok {
		return domain.Subscription{}, ErrNotFound
	}
	return s, nil
}

// ListActive возвращает все активные подписки
func (r *InMemoryStore) ListActive(ctx context.Context) ([]domain.Subscription, error) {
	return r.filter(func(s domain.Subscription) bool { return s.Active }), nil
}

// ListDueForCharge возвращает подписки, которые пора списывать
func (r *InMemoryStore) ListDueForCharge(ctx context.Context, now time.Time) ([]domain.Subscription, error) {
	return r.filter(func(s domain.Subscription) bool { return s.DueForCharge(now) }), nil
}

func (r *InMemoryStore) filter(keep func(domain.Subscription) bool) []domain.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.Subscription, 0)
	for _, s := range r.subscriptions {
		if keep(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// ConfirmPayment записывает платеж и применяет apply к подписке
func (r *InMemoryStore) ConfirmPayment(ctx context.Context, payment domain.Payment, apply ApplyFunc) (domain.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.payments[payment.InvID]; exists {
		return domain.Subscription{}, ErrDuplicate
	}

	var current *domain.Subscription
	if s, ok := r.activeLocked(payment.UserID); ok {
		current = &s
	}

	next := apply(current)
	if current == nil || next.ID != current.ID {
		for id, s := range r.subscriptions {
			if s.UserID == payment.UserID && s.Active {
				s.Active = false
				r.subscriptions[id] = s
			}
		}
		next.ID = 0
	}
	next = r.saveLocked(next)

	r.lastPaymentID++
	payment.ID = r.lastPaymentID
	r.payments[payment.InvID] = payment

	user, ok := r.users[payment.UserID]
	if !ok {
		user = domain.User{
			UserID:    payment.UserID,
			Username:  domain.PlaceholderUsername(payment.UserID),
			CreatedAt: payment.CreatedAt,
		}
	}
	user.State = domain.StatePaid
	user.UpdatedAt = payment.CreatedAt
	r.users[payment.UserID] = user

	return next, nil
}

// ClaimCharge резервирует списание, если next_charge_at не менялся
func (r *InMemoryStore) ClaimCharge(ctx context.Context, claim ChargeClaim) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.subscriptions[claim.SubscriptionID]
	if !ok || !s.Active || s.UserID != claim.UserID || s.CancelRequested || s.NextChargeAt == nil {
		return false, nil
	}
	if !s.NextChargeAt.Equal(claim.ObservedNextChargeAt) {
		return false, nil
	}

	next := claim.NextChargeAt
	s.NextChargeAt = &next
	s.Pending = claim.Pending
	s.UpdatedAt = time.Now().UTC()
	r.subscriptions[s.ID] = s
	return true, nil
}

// ReleaseCharge снимает ожидающее списание invID
func (r *InMemoryStore) ReleaseCharge(ctx context.Context, userID, invID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.activeLocked(userID)
	if !ok || s.PendingInvID() != invID {
		return false, nil
	}
	s.Pending = domain.NoPending{}
	s.UpdatedAt = time.Now().UTC()
	r.subscriptions[s.ID] = s
	return true, nil
}

// RequestCancel отмечает отказ от автопродления
func (r *InMemoryStore) RequestCancel(ctx context.Context, userID int64, at time.Time) (domain.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.activeLocked(userID)
	if !ok {
		return domain.Subscription{}, ErrNotFound
	}
	if !s.CancelRequested {
		at = at.UTC()
		s.CancelRequested = true
		s.CancelRequestedAt = &at
		s.UpdatedAt = at
		r.subscriptions[s.ID] = s
	}
	return s, nil
}

// DeactivateExpired снимает active с истекшей подписки
func (r *InMemoryStore) DeactivateExpired(ctx context.Context, userID int64, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.activeLocked(userID)
	if !ok || !s.ExpiresAt.Before(now) {
		return false, nil
	}
	s.Active = false
	s.UpdatedAt = now.UTC()
	r.subscriptions[s.ID] = s
	return true, nil
}

// Exists проверяет наличие платежа
func (r *InMemoryStore) Exists(ctx context.Context, invID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.payments[invID]
	return ok, nil
}

// ListByUser платежи пользователя, новые первыми
func (r *InMemoryStore) ListByUser(ctx context.Context, userID int64) ([]domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.Payment, 0)
	for _, p := range r.payments {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// Upsert создает или обновляет пользователя
func (r *InMemoryStore) Upsert(ctx context.Context, user domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := r.users[user.UserID]; ok {
		user.CreatedAt = existing.CreatedAt
	} else if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	r.users[user.UserID] = user
	return nil
}

// SaveQuestion сохраняет вопрос
func (r *InMemoryStore) SaveQuestion(ctx context.Context, q domain.Question) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now().UTC()
	}
	r.questions = append(r.questions, q)
	return nil
}

// User возвращает пользователя
func (r *InMemoryStore) User(userID int64) (domain.User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	return u, ok
}

// Questions возвращает вопросы пользователя
func (r *InMemoryStore) Questions(userID int64) []domain.Question {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.Question
	for _, q := range r.questions {
		if q.UserID == userID {
			out = append(out, q)
		}
	}
	return out
}

// Stats сводная статистика
func (r *InMemoryStore) Stats(ctx context.Context, now time.Time) (domain.Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := domain.Stats{
		TotalUsers:    int64(len(r.users)),
		TotalPayments: int64(len(r.payments)),
		Funnel:        make(map[string]int64),
	}
	for _, s := range r.subscriptions {
		switch {
		case s.IsActiveAt(now):
			st.ActiveSubscriptions++
		case s.Active:
			st.ExpiredActive++
		}
	}
	for _, u := range r.users {
		if u.State != "" {
			st.Funnel[u.State]++
		}
	}
	return st, nil
}
