package repository

import (
	"context"
	"time"

	"github.com/Dhoini/paywall-bot/internal/domain"
)

// ApplyFunc вычисляет новое состояние подписки по текущей активной (или nil).
// Вызывается внутри транзакции, пока строка пользователя заблокирована.
type ApplyFunc func(current *domain.Subscription) domain.Subscription

// ChargeClaim условное резервирование рекуррентного списания
type ChargeClaim struct {
	UserID         int64
	SubscriptionID int64
	// ObservedNextChargeAt значение next_charge_at, прочитанное при выборке.
	// Если строка изменилась, резервирование не выполняется.
	ObservedNextChargeAt time.Time
	NextChargeAt         time.Time
	Pending              domain.Pending
}

// SubscriptionRepository хранилище подписок
type SubscriptionRepository interface {
	// GetActive возвращает активную запись пользователя или ErrNotFound
	GetActive(ctx context.Context, userID int64) (domain.Subscription, error)
	ListActive(ctx context.Context) ([]domain.Subscription, error)
	ListDueForCharge(ctx context.Context, now time.Time) ([]domain.Subscription, error)

	// ConfirmPayment атомарно записывает платеж в журнал и применяет apply к подписке.
	// Повтор InvID возвращает ErrDuplicate без изменений.
	ConfirmPayment(ctx context.Context, payment domain.Payment, apply ApplyFunc) (domain.Subscription, error)

	ClaimCharge(ctx context.Context, claim ChargeClaim) (bool, error)
	// ReleaseCharge снимает ожидающее списание, только если оно все еще invID
	ReleaseCharge(ctx context.Context, userID, invID int64) (bool, error)
	RequestCancel(ctx context.Context, userID int64, at time.Time) (domain.Subscription, error)
	// DeactivateExpired снимает active, только если срок истек к моменту now
	DeactivateExpired(ctx context.Context, userID int64, now time.Time) (bool, error)
}

// PaymentRepository журнал платежей (только чтение, запись идет через ConfirmPayment)
type PaymentRepository interface {
	Exists(ctx context.Context, invID int64) (bool, error)
	ListByUser(ctx context.Context, userID int64) ([]domain.Payment, error)
}

// UserRepository пользователи воронки и их вопросы
type UserRepository interface {
	Upsert(ctx context.Context, user domain.User) error
	SaveQuestion(ctx context.Context, q domain.Question) error
}

// StatsRepository сводная статистика
type StatsRepository interface {
	Stats(ctx context.Context, now time.Time) (domain.Stats, error)
}
