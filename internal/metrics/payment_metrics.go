package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Исходы обработки уведомления об оплате
const (
	OutcomeConfirmed    = "confirmed"
	OutcomeDuplicate    = "duplicate"
	OutcomeBadRequest   = "bad_request"
	OutcomeBadSignature = "bad_signature"
	OutcomeError        = "error"
)

// Результаты фоновых обходов
const (
	ResultSubmitted = "submitted"
	ResultFailed    = "failed"
	ResultSkipped   = "skipped"
	ResultWarned    = "warned"
	ResultRevoked   = "revoked"
)

// PaymentMetrics интерфейс для метрик платежей и фоновых обходов
type PaymentMetrics interface {
	IncWebhook(outcome string)
	ObservePaymentAmount(amount float64, currency string)
	IncRecurring(result string)
	IncExpiry(result string)
}

type paymentMetrics struct {
	webhooks       *prometheus.CounterVec
	paymentsAmount *prometheus.HistogramVec
	recurring      *prometheus.CounterVec
	expiry         *prometheus.CounterVec
}

// NewPaymentMetrics создает новые метрики платежей
func NewPaymentMetrics(registry prometheus.Registerer) PaymentMetrics {
	factory := promauto.With(registry)

	return &paymentMetrics{
		webhooks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paywall_webhook_notifications_total",
				Help: "Payment notifications by processing outcome",
			},
			[]string{"outcome"},
		),
		paymentsAmount: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "paywall_payment_amount",
				Help:    "Confirmed payment amounts distribution",
				Buckets: prometheus.ExponentialBuckets(1000, 4, 6),
			},
			[]string{"currency"},
		),
		recurring: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paywall_recurring_charges_total",
				Help: "Recurring charge attempts by result",
			},
			[]string{"result"},
		),
		expiry: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paywall_expiry_actions_total",
				Help: "Expiry sweep actions by result",
			},
			[]string{"result"},
		),
	}
}

// IncWebhook увеличивает счетчик уведомлений
func (m *paymentMetrics) IncWebhook(outcome string) {
	m.webhooks.WithLabelValues(outcome).Inc()
}

// ObservePaymentAmount записывает сумму подтвержденного платежа
func (m *paymentMetrics) ObservePaymentAmount(amount float64, currency string) {
	m.paymentsAmount.WithLabelValues(currency).Observe(amount)
}

// IncRecurring увеличивает счетчик рекуррентных списаний
func (m *paymentMetrics) IncRecurring(result string) {
	m.recurring.WithLabelValues(result).Inc()
}

// IncExpiry увеличивает счетчик действий обхода истечений
func (m *paymentMetrics) IncExpiry(result string) {
	m.expiry.WithLabelValues(result).Inc()
}

// Nop метрики, которые никуда не пишутся
type Nop struct{}

func (Nop) IncWebhook(string)                    {}
func (Nop) ObservePaymentAmount(float64, string) {}
func (Nop) IncRecurring(string)                  {}
func (Nop) IncExpiry(string)                     {}
