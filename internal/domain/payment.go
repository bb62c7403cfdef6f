package domain

import (
	"encoding/json"
	"time"
)

// PaymentStatus статус платежа в журнале
type PaymentStatus string

const (
	PaymentStatusPaid PaymentStatus = "paid"
)

// DefaultCurrency валюта платежей по умолчанию
const DefaultCurrency = "KZT"

// Payment запись журнала платежей. Неизменяема после записи,
// InvID уникален и служит ключом идемпотентности.
type Payment struct {
	ID         int64           `json:"id"`
	UserID     int64           `json:"user_id"`
	InvID      int64           `json:"inv_id"`
	Amount     float64         `json:"amount"`
	Currency   string          `json:"currency"`
	Status     PaymentStatus   `json:"status"`
	RawPayload json.RawMessage `json:"raw_payload,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// NewPayment создает запись об оплаченном счете
func NewPayment(userID, invID int64, amount float64, currency string, raw map[string]string, now time.Time) Payment {
	if currency == "" {
		currency = DefaultCurrency
	}
	var payload json.RawMessage
	if raw != nil {
		if b, err := json.Marshal(raw); err == nil {
			payload = b
		}
	}
	return Payment{
		UserID:     userID,
		InvID:      invID,
		Amount:     amount,
		Currency:   currency,
		Status:     PaymentStatusPaid,
		RawPayload: payload,
		CreatedAt:  now.UTC(),
	}
}
