package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPaymentMetrics_Webhooks(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewPaymentMetrics(registry)

	m.IncWebhook(OutcomeConfirmed)
	m.IncWebhook(OutcomeConfirmed)
	m.IncWebhook(OutcomeBadSignature)

	expected := `
# HELP paywall_webhook_notifications_total Payment notifications by processing outcome
# TYPE paywall_webhook_notifications_total counter
paywall_webhook_notifications_total{outcome="bad_signature"} 1
paywall_webhook_notifications_total{outcome="confirmed"} 2
`
	if err := testutil.GatherAndCompare(registry, strings.NewReader(expected), "paywall_webhook_notifications_total"); err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}
}

func TestNewRegistry_HasRuntimeCollectors(t *testing.T) {
	families, err := NewRegistry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() == "go_goroutines" {
			return
		}
	}
	t.Fatalf("go_goroutines not exported")
}
