package service

import (
	"context"
	"time"

	"github.com/Dhoini/paywall-bot/internal/robokassa"
)

// Button кнопка со ссылкой под сообщением пользователю
type Button struct {
	Text string
	URL  string
}

// Messenger доставка сообщений и управление доступом к каналу
type Messenger interface {
	NotifyUser(ctx context.Context, userID int64, text string, buttons ...Button) error
	// SendAccessLink отправляет ссылку на канал. Сообщение удаляется через заданное время.
	SendAccessLink(ctx context.Context, userID int64, text string) error
	NotifyOperators(ctx context.Context, text string) error
	// Revoke удаляет пользователя из канала (ban + unban)
	Revoke(ctx context.Context, userID int64) error
}

// Charger отправляет рекуррентные списания в платежный шлюз
type Charger interface {
	Charge(ctx context.Context, r robokassa.ChargeRequest) error
}

// LinkBuilder подписывает ссылки на оплату
type LinkBuilder interface {
	Build(r robokassa.LinkRequest) string
}

// InvoiceSource выдает новые номера счетов
type InvoiceSource interface {
	Next() int64
}

// Options параметры тарифа
type Options struct {
	Price       float64
	Currency    string
	Description string
	Period      time.Duration
	// Location часовой пояс для дат в сообщениях
	Location *time.Location
}

func (o Options) location() *time.Location {
	if o.Location == nil {
		return time.UTC
	}
	return o.Location
}
