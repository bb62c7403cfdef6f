package res

import (
	"encoding/json"
	"net/http"

	"github.com/Dhoini/paywall-bot/pkg/logger"
)

// ErrorResponse представляет формат JSON-ответа для ошибок.
type ErrorResponse struct {
	Error     string `json:"error"`
	ErrorCode int    `json:"error_code,omitempty"`
	Details   any    `json:"details,omitempty"`
}

// JsonResponse отправляет JSON-ответ с заданным статусом.
func JsonResponse(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// JsonErrorResponse отправляет JSON ответ ошибки и пишет его в лог.
func JsonErrorResponse(w http.ResponseWriter, errResponse ErrorResponse, status int, log *logger.Logger) {
	JsonResponse(w, errResponse, status)
	log.Warnw("Error response", "status", status, "error", errResponse.Error)
}

// TextResponse отправляет text/plain ответ.
func TextResponse(w http.ResponseWriter, body string, status int) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(body))
}
