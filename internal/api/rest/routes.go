package rest

import (
	"github.com/Dhoini/paywall-bot/internal/api/rest/handlers"
	"github.com/Dhoini/paywall-bot/internal/api/rest/middleware"
	"github.com/Dhoini/paywall-bot/internal/metrics"
	"github.com/Dhoini/paywall-bot/internal/service"
	"github.com/Dhoini/paywall-bot/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterDeps зависимости HTTP-маршрутов
type RouterDeps struct {
	Verifier      handlers.SignatureVerifier
	Payments      service.PaymentService
	Subscriptions service.SubscriptionService
	Metrics       metrics.PaymentMetrics
	Registry      *prometheus.Registry
	// JWTSecret секрет операторского API, пустой отключает /api/v1/admin
	JWTSecret string
}

// SetupRouter настраивает маршрутизатор Gin с маршрутами и middleware
func SetupRouter(deps RouterDeps, log *logger.Logger) *gin.Engine {
	r := gin.New()

	r.Use(middleware.LoggerMiddleware(log))
	r.Use(gin.Recovery())

	r.GET("/health", handlers.HealthCheck)

	if deps.Registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})))
	}

	// ResultURL Robokassa
	webhookHandler := handlers.NewWebhookHandler(deps.Verifier, deps.Payments, deps.Metrics, log)
	r.POST("/payment/result", webhookHandler.HandleResult)
	r.POST("/robokassa/result", webhookHandler.HandleResult)

	if deps.JWTSecret == "" {
		log.Info("Admin API disabled: ADMIN_JWT_SECRET is empty")
		return r
	}

	auth := middleware.NewJWTMiddleware(log, &middleware.DefaultTokenValidator{Secret: []byte(deps.JWTSecret)})
	adminHandler := handlers.NewAdminHandler(deps.Subscriptions, log)

	v1 := r.Group("/api/v1")
	admin := v1.Group("/admin", auth.RequireAuth(middleware.ScopeAdmin))
	{
		admin.GET("/stats", adminHandler.GetStats)
		admin.GET("/subscriptions/:user_id", adminHandler.GetSubscription)
		admin.POST("/subscriptions/:user_id/cancel", adminHandler.CancelSubscription)
	}
	return r
}
