package handlers

import (
	"errors"
	"net/http"

	"github.com/Dhoini/paywall-bot/internal/metrics"
	"github.com/Dhoini/paywall-bot/internal/robokassa"
	"github.com/Dhoini/paywall-bot/internal/service"
	"github.com/Dhoini/paywall-bot/pkg/logger"
	"github.com/Dhoini/paywall-bot/pkg/res"
	"github.com/gin-gonic/gin"
)

// SignatureVerifier проверяет подпись уведомления ResultURL
type SignatureVerifier interface {
	Verify(outSum, invID, signature, userID string) bool
}

// WebhookHandler обработчик уведомлений об оплате
type WebhookHandler struct {
	verifier SignatureVerifier
	payments service.PaymentService
	metrics  metrics.PaymentMetrics
	log      *logger.Logger
}

// NewWebhookHandler создает новый обработчик уведомлений
func NewWebhookHandler(verifier SignatureVerifier, payments service.PaymentService, m metrics.PaymentMetrics, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		verifier: verifier,
		payments: payments,
		metrics:  m,
		log:      log,
	}
}

// HandleResult принимает уведомление ResultURL. Успешный ответ OK<InvId>,
// при любой ошибке проверки 400 с причиной в теле.
func (h *WebhookHandler) HandleResult(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		h.reject(c, "bad form", metrics.OutcomeBadRequest)
		return
	}

	n := robokassa.NotificationFromForm(c.Request.PostForm)
	if err := n.Validate(); err != nil {
		var missing *robokassa.MissingFieldsError
		switch {
		case errors.As(err, &missing):
			h.reject(c, missing.Error(), metrics.OutcomeBadRequest)
		case errors.Is(err, robokassa.ErrBadInterface):
			h.log.Warnw("Unexpected Shp_interface", "value", n.Interface)
			h.reject(c, "bad Shp_interface", metrics.OutcomeBadRequest)
		default:
			h.reject(c, err.Error(), metrics.OutcomeBadRequest)
		}
		return
	}

	payment, err := n.Parse()
	if err != nil {
		h.reject(c, err.Error(), metrics.OutcomeBadRequest)
		return
	}

	if !h.verifier.Verify(n.OutSum, n.InvID, n.SignatureValue, n.UserID) {
		h.log.Warnw("Invalid payment signature",
			"invID", n.InvID,
			"userID", n.UserID,
			"clientIP", c.ClientIP(),
		)
		h.reject(c, "bad signature", metrics.OutcomeBadSignature)
		return
	}

	result, err := h.payments.Confirm(c.Request.Context(), payment)
	if err != nil {
		h.log.Errorw("Failed to confirm payment", "invID", payment.InvID, "userID", payment.UserID, "error", err)
		h.metrics.IncWebhook(metrics.OutcomeError)
		res.TextResponse(c.Writer, "internal error", http.StatusInternalServerError)
		return
	}

	if result.Duplicate {
		h.metrics.IncWebhook(metrics.OutcomeDuplicate)
	} else {
		h.metrics.IncWebhook(metrics.OutcomeConfirmed)
	}
	res.TextResponse(c.Writer, "OK"+payment.RawInvID, http.StatusOK)
}

func (h *WebhookHandler) reject(c *gin.Context, reason, outcome string) {
	h.metrics.IncWebhook(outcome)
	h.log.Warnw("Payment notification rejected", "reason", reason, "clientIP", c.ClientIP())
	res.TextResponse(c.Writer, reason, http.StatusBadRequest)
}
