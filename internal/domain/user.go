package domain

import (
	"fmt"
	"time"
)

// Состояния воронки
const (
	StateStart    = "start"
	StateWant     = "want"
	StatePayment  = "payment"
	StatePaid     = "paid"
	StateQuestion = "question_answered"
)

// User участник воронки
type User struct {
	UserID    int64     `json:"user_id" db:"user_id"`
	Username  string    `json:"username" db:"username"`
	State     string    `json:"state" db:"state"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Question вопрос пользователя, заданный в чате
type Question struct {
	UserID    int64     `json:"user_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Stats сводка для операторов
type Stats struct {
	TotalUsers          int64            `json:"total_users"`
	ActiveSubscriptions int64            `json:"active_subscriptions"`
	ExpiredActive       int64            `json:"expired_active"`
	TotalPayments       int64            `json:"total_payments"`
	Funnel              map[string]int64 `json:"funnel"`
}

// PlaceholderUsername имя для пользователя, впервые встреченного в уведомлении об оплате
func PlaceholderUsername(userID int64) string {
	return fmt.Sprintf("user_%d", userID)
}
