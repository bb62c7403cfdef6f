package kafka

import (
	"context"
	"strconv"

	"github.com/Dhoini/paywall-bot/internal/domain"
)

// DefaultTopicPrefix префикс топиков по умолчанию
const DefaultTopicPrefix = "paywall"

// Типы событий, для которых создаются топики
var EventTypes = []domain.EventType{
	domain.EventSubscriptionRenewed,
	domain.EventSubscriptionCancelRequested,
	domain.EventSubscriptionExpired,
	domain.EventChargeSubmitted,
	domain.EventChargeFailed,
}

// Publisher публикует события жизненного цикла подписки
type Publisher interface {
	Publish(ctx context.Context, event domain.SubscriptionEvent) error
	Close() error
}

// Topic имя топика для типа события: "<prefix>.<type>"
func Topic(prefix string, t domain.EventType) string {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return prefix + "." + string(t)
}

// MessageKey ключ партиционирования: события одного пользователя идут в одну партицию
func MessageKey(event domain.SubscriptionEvent) []byte {
	return []byte(strconv.FormatInt(event.UserID, 10))
}

// NoopPublisher используется, когда Kafka не настроена
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, domain.SubscriptionEvent) error { return nil }
func (NoopPublisher) Close() error                                            { return nil }
