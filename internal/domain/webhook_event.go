package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType тип события жизненного цикла подписки
type EventType string

const (
	EventSubscriptionRenewed         EventType = "subscription.renewed"
	EventSubscriptionCancelRequested EventType = "subscription.cancel_requested"
	EventSubscriptionExpired         EventType = "subscription.expired"
	EventChargeSubmitted             EventType = "charge.submitted"
	EventChargeFailed                EventType = "charge.failed"
)

// SubscriptionEvent событие для внешних потребителей
type SubscriptionEvent struct {
	ID         uuid.UUID `json:"id"`
	Type       EventType `json:"type"`
	UserID     int64     `json:"user_id"`
	InvID      int64     `json:"inv_id,omitempty"`
	Amount     float64   `json:"amount,omitempty"`
	ExpiresAt  time.Time `json:"expires_at,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewSubscriptionEvent создает событие с новым идентификатором
func NewSubscriptionEvent(t EventType, userID int64, now time.Time) SubscriptionEvent {
	return SubscriptionEvent{
		ID:         uuid.New(),
		Type:       t,
		UserID:     userID,
		OccurredAt: now.UTC(),
	}
}
