package producer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Dhoini/paywall-bot/internal/domain"
	"github.com/Dhoini/paywall-bot/internal/kafka"
	"github.com/Dhoini/paywall-bot/pkg/logger"
	"github.com/IBM/sarama"
)

type saramaPublisher struct {
	producer sarama.SyncProducer
	prefix   string
	log      *logger.Logger
}

// NewSaramaPublisher создает публикатор событий на базе sarama.SyncProducer
func NewSaramaPublisher(brokers []string, prefix string, log *logger.Logger) (kafka.Publisher, error) {
	syncProducer, err := sarama.NewSyncProducer(brokers, kafka.NewSaramaConfig(kafka.NewProducerConfig()))
	if err != nil {
		return nil, fmt.Errorf("failed to create sarama producer: %w", err)
	}
	log.Infow("Kafka producer initialized", "client", "sarama", "brokers", brokers)
	return NewPublisher(syncProducer, prefix, log), nil
}

// NewPublisher оборачивает готовый SyncProducer
func NewPublisher(p sarama.SyncProducer, prefix string, log *logger.Logger) kafka.Publisher {
	return &saramaPublisher{
		producer: p,
		prefix:   prefix,
		log:      log,
	}
}

// Publish публикует событие подписки в Kafka
func (p *saramaPublisher) Publish(ctx context.Context, event domain.SubscriptionEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal subscription event: %w", err)
	}

	topic := kafka.Topic(p.prefix, event.Type)
	message := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.ByteEncoder(kafka.MessageKey(event)),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(event.Type)},
			{Key: []byte("event_id"), Value: []byte(event.ID.String())},
		},
		Timestamp: event.OccurredAt,
	}

	partition, offset, err := p.producer.SendMessage(message)
	if err != nil {
		return fmt.Errorf("failed to publish subscription event: %w", err)
	}

	p.log.Debug("Published subscription event to topic %s: partition=%d offset=%d", topic, partition, offset)
	return nil
}

// Close закрывает продюсер
func (p *saramaPublisher) Close() error {
	return p.producer.Close()
}
