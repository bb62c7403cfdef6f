package handlers

import (
	"net/http"

	"github.com/Dhoini/paywall-bot/pkg/res"
	"github.com/gin-gonic/gin"
)

// HealthCheck обработчик для проверки работоспособности сервиса
func HealthCheck(c *gin.Context) {
	res.TextResponse(c.Writer, "ok", http.StatusOK)
}
