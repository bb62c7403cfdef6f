package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/paywall-bot/internal/domain"
	"github.com/Dhoini/paywall-bot/pkg/logger"
	kafkaGo "github.com/segmentio/kafka-go"
)

// kafkaProducer реализует Publisher, используя segmentio/kafka-go.
type kafkaProducer struct {
	writer *kafkaGo.Writer
	prefix string
	log    *logger.Logger
}

// NewKafkaProducer создает и настраивает новый продюсер Kafka.
func NewKafkaProducer(brokers []string, prefix string, log *logger.Logger) (Publisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are not configured")
	}

	// Топик задается в каждом сообщении
	writer := &kafkaGo.Writer{
		Addr:         kafkaGo.TCP(brokers...),
		Balancer:     &kafkaGo.Hash{},
		RequiredAcks: kafkaGo.RequireOne,
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}

	log.Infow("Kafka producer initialized", "client", "kafka-go", "brokers", brokers)
	return &kafkaProducer{
		writer: writer,
		prefix: prefix,
		log:    log,
	}, nil
}

// Publish сериализует событие в JSON и отправляет в топик его типа.
func (k *kafkaProducer) Publish(ctx context.Context, event domain.SubscriptionEvent) error {
	topic := Topic(k.prefix, event.Type)

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("kafka: failed to marshal event: %w", err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	err = k.writer.WriteMessages(writeCtx, kafkaGo.Message{
		Topic: topic,
		Key:   MessageKey(event),
		Value: value,
		Time:  event.OccurredAt,
		Headers: []kafkaGo.Header{
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "event_id", Value: []byte(event.ID.String())},
		},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("kafka: write timeout: %w", err)
		}
		return fmt.Errorf("kafka: failed to write message: %w", err)
	}

	k.log.Debugw("Published event to Kafka", "topic", topic, "userID", event.UserID, "eventID", event.ID)
	return nil
}

// Close закрывает соединение Kafka Writer.
func (k *kafkaProducer) Close() error {
	if err := k.writer.Close(); err != nil {
		return fmt.Errorf("kafka: failed to close writer: %w", err)
	}
	k.log.Infow("Kafka producer writer closed")
	return nil
}
