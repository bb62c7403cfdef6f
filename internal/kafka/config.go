package kafka

import (
	"time"

	"github.com/IBM/sarama"
)

// ProducerConfig конфигурация для продюсера sarama
type ProducerConfig struct {
	ClientID         string
	MaxMessageBytes  int
	Compression      sarama.CompressionCodec
	RequiredAcks     sarama.RequiredAcks
	FlushMaxMessages int
	Timeout          time.Duration
}

// NewProducerConfig создает конфигурацию продюсера по умолчанию
func NewProducerConfig() ProducerConfig {
	return ProducerConfig{
		ClientID:         "paywall-bot",
		MaxMessageBytes:  1000000,
		Compression:      sarama.CompressionSnappy,
		RequiredAcks:     sarama.WaitForAll,
		FlushMaxMessages: 100,
		Timeout:          10 * time.Second,
	}
}

// NewSaramaConfig создает новую конфигурацию Sarama
func NewSaramaConfig(cfg ProducerConfig) *sarama.Config {
	saramaConfig := sarama.NewConfig()

	saramaConfig.Version = sarama.V3_3_0_0
	saramaConfig.ClientID = cfg.ClientID

	saramaConfig.Producer.MaxMessageBytes = cfg.MaxMessageBytes
	saramaConfig.Producer.Compression = cfg.Compression
	saramaConfig.Producer.RequiredAcks = cfg.RequiredAcks
	saramaConfig.Producer.Flush.MaxMessages = cfg.FlushMaxMessages
	saramaConfig.Producer.Timeout = cfg.Timeout
	saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner
	// SyncProducer требует оба флага
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true

	return saramaConfig
}
