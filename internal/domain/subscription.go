package domain

import (
	"time"
)

// PendingCharge состояние незавершенного рекуррентного списания.
// Реализации: NoPending и Pending.
type PendingCharge interface {
	isPendingCharge()
}

// NoPending списание не ожидается
type NoPending struct{}

// Pending отправленное в шлюз списание, еще не подтвержденное уведомлением
type Pending struct {
	InvID     int64     `json:"inv_id"`
	Amount    float64   `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

func (NoPending) isPendingCharge() {}
func (Pending) isPendingCharge()   {}

// Subscription окно доступа пользователя к каналу
type Subscription struct {
	ID                int64         `json:"id"`
	UserID            int64         `json:"user_id"`
	ExpiresAt         time.Time     `json:"expires_at"`
	Active            bool          `json:"active"`
	CancelRequested   bool          `json:"cancel_requested"`
	CancelRequestedAt *time.Time    `json:"cancel_requested_at,omitempty"`
	AnchorInvID       int64         `json:"anchor_inv_id,omitempty"`
	NextChargeAt      *time.Time    `json:"next_charge_at,omitempty"`
	Pending           PendingCharge `json:"-"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// IsActiveAt доступ открыт в момент now
func (s Subscription) IsActiveAt(now time.Time) bool {
	return s.Active && s.ExpiresAt.After(now)
}

// IsExpiredAt подписка активна в хранилище, но срок уже истек
func (s Subscription) IsExpiredAt(now time.Time) bool {
	return s.Active && s.ExpiresAt.Before(now)
}

// HasAnchor у подписки есть первичный счет для рекуррентных списаний
func (s Subscription) HasAnchor() bool {
	return s.AnchorInvID > 0
}

// PendingInvID номер ожидающего счета, 0 если его нет
func (s Subscription) PendingInvID() int64 {
	if p, ok := s.Pending.(Pending); ok {
		return p.InvID
	}
	return 0
}

// DueForCharge подписку пора списывать рекуррентно
func (s Subscription) DueForCharge(now time.Time) bool {
	if !s.Active || s.CancelRequested || !s.HasAnchor() || s.NextChargeAt == nil {
		return false
	}
	return !s.NextChargeAt.After(now)
}

// DaysLeft полные сутки до окончания (округление вниз)
func (s Subscription) DaysLeft(now time.Time) int {
	d := s.ExpiresAt.Sub(now)
	days := int(d / (24 * time.Hour))
	if d < 0 && d%(24*time.Hour) != 0 {
		days--
	}
	return days
}

// ExtensionBase момент, от которого отсчитывается продление.
// Для действующей подписки это ее окончание, иначе now.
func ExtensionBase(current *Subscription, now time.Time) time.Time {
	if current != nil && current.Active && current.ExpiresAt.After(now) {
		return current.ExpiresAt
	}
	return now
}

// ApplyPayment возвращает состояние подписки после подтвержденного платежа invID.
// current может быть nil (подписки нет). Если current активна, результат
// обновляет ту же запись (ID сохраняется), иначе это новая запись с ID 0.
func ApplyPayment(current *Subscription, userID, invID int64, now time.Time, period time.Duration) Subscription {
	now = now.UTC()
	expires := ExtensionBase(current, now).UTC().Add(period)
	next := expires

	if current == nil || !current.Active {
		return Subscription{
			UserID:       userID,
			ExpiresAt:    expires,
			Active:       true,
			AnchorInvID:  invID,
			NextChargeAt: &next,
			Pending:      NoPending{},
			CreatedAt:    now,
			UpdatedAt:    now,
		}
	}

	updated := *current
	updated.ExpiresAt = expires
	updated.NextChargeAt = &next
	updated.UpdatedAt = now
	if !updated.HasAnchor() {
		updated.AnchorInvID = invID
	}
	if updated.Pending == nil {
		updated.Pending = NoPending{}
	}

	switch p := updated.Pending.(type) {
	case Pending:
		if p.InvID == invID {
			updated.Pending = NoPending{}
			return updated
		}
	case NoPending:
	}

	// самостоятельная оплата по ссылке снова включает автоплатеж
	updated.CancelRequested = false
	updated.CancelRequestedAt = nil
	return updated
}

// SubscriptionSummary то, что видит пользователь в личном кабинете
type SubscriptionSummary struct {
	UserID          int64      `json:"user_id"`
	Active          bool       `json:"active"`
	ExpiresAt       time.Time  `json:"expires_at"`
	CancelRequested bool       `json:"cancel_requested"`
	NextChargeAt    *time.Time `json:"next_charge_at,omitempty"`
}

// Summary краткое представление подписки
func (s Subscription) Summary(now time.Time) SubscriptionSummary {
	return SubscriptionSummary{
		UserID:          s.UserID,
		Active:          s.IsActiveAt(now),
		ExpiresAt:       s.ExpiresAt,
		CancelRequested: s.CancelRequested,
		NextChargeAt:    s.NextChargeAt,
	}
}
