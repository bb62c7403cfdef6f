package producer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Dhoini/paywall-bot/internal/domain"
	"github.com/Dhoini/paywall-bot/pkg/logger"
	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
)

func TestSaramaPublisher_Publish(t *testing.T) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	mock := mocks.NewSyncProducer(t, cfg)

	var sent domain.SubscriptionEvent
	mock.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		return json.Unmarshal(val, &sent)
	})

	pub := NewPublisher(mock, "test", logger.NewNop())
	event := domain.NewSubscriptionEvent(domain.EventSubscriptionRenewed, 42, time.Now())
	event.InvID = 1001

	if err := pub.Publish(context.Background(), event); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if sent.UserID != 42 || sent.InvID != 1001 || sent.Type != domain.EventSubscriptionRenewed {
		t.Fatalf("unexpected payload: %+v", sent)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
