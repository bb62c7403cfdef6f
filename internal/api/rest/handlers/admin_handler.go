package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Dhoini/paywall-bot/internal/domain"
	"github.com/Dhoini/paywall-bot/internal/service"
	"github.com/Dhoini/paywall-bot/pkg/logger"
	"github.com/Dhoini/paywall-bot/pkg/res"
	"github.com/gin-gonic/gin"
)

// AdminHandler операторский API
type AdminHandler struct {
	subs service.SubscriptionService
	now  func() time.Time
	log  *logger.Logger
}

// NewAdminHandler создает новый операторский обработчик
func NewAdminHandler(subs service.SubscriptionService, log *logger.Logger) *AdminHandler {
	return &AdminHandler{subs: subs, now: time.Now, log: log}
}

// SubscriptionResponse подписка пользователя и его платежи
type SubscriptionResponse struct {
	Subscription *domain.SubscriptionSummary `json:"subscription"`
	Payments     []domain.Payment            `json:"payments"`
}

// GetStats возвращает сводную статистику
func (h *AdminHandler) GetStats(c *gin.Context) {
	st, err := h.subs.Stats(c.Request.Context())
	if err != nil {
		h.log.Errorw("Failed to load statistics", "error", err)
		res.JsonErrorResponse(c.Writer, res.ErrorResponse{Error: "failed to load statistics"}, http.StatusInternalServerError, h.log)
		return
	}
	res.JsonResponse(c.Writer, st, http.StatusOK)
}

// GetSubscription возвращает подписку пользователя и журнал его платежей
func (h *AdminHandler) GetSubscription(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	var resp SubscriptionResponse
	summary, err := h.subs.Summary(ctx, userID)
	switch {
	case errors.Is(err, domain.ErrSubscriptionNotFound):
	case err != nil:
		h.log.Errorw("Failed to load subscription", "userID", userID, "error", err)
		res.JsonErrorResponse(c.Writer, res.ErrorResponse{Error: "failed to load subscription"}, http.StatusInternalServerError, h.log)
		return
	default:
		resp.Subscription = &summary
	}

	payments, err := h.subs.Payments(ctx, userID)
	if err != nil {
		h.log.Errorw("Failed to load payments", "userID", userID, "error", err)
		res.JsonErrorResponse(c.Writer, res.ErrorResponse{Error: "failed to load payments"}, http.StatusInternalServerError, h.log)
		return
	}
	resp.Payments = payments

	if resp.Subscription == nil && len(payments) == 0 {
		res.JsonErrorResponse(c.Writer, res.ErrorResponse{Error: "user not found"}, http.StatusNotFound, h.log)
		return
	}
	res.JsonResponse(c.Writer, resp, http.StatusOK)
}

// CancelSubscription отключает автопродление от имени оператора
func (h *AdminHandler) CancelSubscription(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	result, err := h.subs.RequestCancel(c.Request.Context(), userID)
	if errors.Is(err, domain.ErrSubscriptionNotFound) {
		res.JsonErrorResponse(c.Writer, res.ErrorResponse{Error: "no active subscription"}, http.StatusNotFound, h.log)
		return
	}
	if err != nil {
		h.log.Errorw("Failed to cancel subscription", "userID", userID, "error", err)
		res.JsonErrorResponse(c.Writer, res.ErrorResponse{Error: "failed to cancel subscription"}, http.StatusInternalServerError, h.log)
		return
	}

	operator, _ := c.Get("userID")
	h.log.Infow("Auto-renewal cancelled by operator", "userID", userID, "operator", operator)
	res.JsonResponse(c.Writer, gin.H{
		"subscription":      result.Subscription.Summary(h.now()),
		"already_cancelled": result.AlreadyCancelled,
	}, http.StatusOK)
}

func (h *AdminHandler) userID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil || id <= 0 {
		res.JsonErrorResponse(c.Writer, res.ErrorResponse{
			Error:     "invalid user id",
			ErrorCode: http.StatusBadRequest,
		}, http.StatusBadRequest, h.log)
		return 0, false
	}
	return id, true
}
