package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/Dhoini/paywall-bot/pkg/logger"
	kafkaGo "github.com/segmentio/kafka-go"
)

// RequiredTopics конфигурации топиков для всех типов событий
func RequiredTopics(prefix string) []kafkaGo.TopicConfig {
	topics := make([]kafkaGo.TopicConfig, 0, len(EventTypes))
	for _, t := range EventTypes {
		topics = append(topics, kafkaGo.TopicConfig{
			Topic:             Topic(prefix, t),
			NumPartitions:     3,
			ReplicationFactor: 1,
		})
	}
	return topics
}

// EnsureKafkaTopics проверяет и создает необходимые топики Kafka.
func EnsureKafkaTopics(ctx context.Context, brokers []string, prefix string, log *logger.Logger) error {
	if len(brokers) == 0 || strings.TrimSpace(brokers[0]) == "" {
		return errors.New("kafka broker address is empty")
	}
	broker := strings.TrimSpace(brokers[0])
	if _, _, err := net.SplitHostPort(broker); err != nil {
		return fmt.Errorf("invalid broker address %s: %w", broker, err)
	}

	connCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	conn, err := kafkaGo.DialContext(connCtx, "tcp", broker)
	if err != nil {
		return fmt.Errorf("kafka connection failed: %w", err)
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions()
	if err != nil {
		return fmt.Errorf("kafka read partitions failed: %w", err)
	}
	existing := make(map[string]bool, len(partitions))
	for _, p := range partitions {
		existing[p.Topic] = true
	}

	var toCreate []kafkaGo.TopicConfig
	for _, tc := range RequiredTopics(prefix) {
		if !existing[tc.Topic] {
			toCreate = append(toCreate, tc)
		}
	}
	if len(toCreate) == 0 {
		log.Infow("All required Kafka topics already exist")
		return nil
	}

	// топики создаются через контроллер кластера
	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("kafka controller lookup failed: %w", err)
	}
	ctrlConn, err := kafkaGo.DialContext(connCtx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("kafka controller connection failed: %w", err)
	}
	defer ctrlConn.Close()

	if err := ctrlConn.CreateTopics(toCreate...); err != nil && !errors.Is(err, kafkaGo.TopicAlreadyExists) {
		return fmt.Errorf("kafka create topics failed: %w", err)
	}
	log.Infow("Kafka topics created", "count", len(toCreate))
	return nil
}
