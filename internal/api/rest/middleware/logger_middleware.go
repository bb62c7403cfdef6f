package middleware

import (
	"time"

	"github.com/Dhoini/paywall-bot/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDHeader заголовок с идентификатором запроса
const RequestIDHeader = "X-Request-ID"

// LoggerMiddleware создает middleware для логирования запросов
func LoggerMiddleware(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(RequestIDHeader, requestID)

		c.Next()

		latency := time.Since(startTime)
		statusCode := c.Writer.Status()
		fields := []interface{}{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", statusCode,
			"latency", latency.String(),
			"clientIP", c.ClientIP(),
			"requestID", requestID,
		}

		// Уровень зависит от кода статуса
		switch {
		case statusCode >= 500:
			log.Errorw("HTTP request", fields...)
		case statusCode >= 400:
			log.Warnw("HTTP request", fields...)
		default:
			log.Infow("HTTP request", fields...)
		}
	}
}
