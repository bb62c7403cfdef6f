package kafka

import (
	"testing"

	"github.com/Dhoini/paywall-bot/internal/domain"
)

func TestTopicNaming(t *testing.T) {
	if got := Topic("", domain.EventSubscriptionRenewed); got != "paywall.subscription.renewed" {
		t.Fatalf("Topic() = %s", got)
	}
	if got := Topic("stage", domain.EventChargeFailed); got != "stage.charge.failed" {
		t.Fatalf("Topic() = %s", got)
	}

	topics := RequiredTopics("x")
	if len(topics) != len(EventTypes) {
		t.Fatalf("expected a topic per event type, got %d", len(topics))
	}
}
