package domain

import (
	"errors"
	"fmt"
)

// Application errors
var (
	// ErrInvalidInput неверные входные данные
	ErrInvalidInput = errors.New("invalid input data")

	// ErrExternalServiceUnavailable внешний сервис недоступен
	ErrExternalServiceUnavailable = errors.New("external service unavailable")

	// ErrSubscriptionNotFound у пользователя нет активной подписки
	ErrSubscriptionNotFound = errors.New("subscription not found")
)

// ValidationError представляет ошибку валидации
type ValidationError struct {
	Field   string
	Message string
}

// ValidationErrors представляет набор ошибок валидации
type ValidationErrors []ValidationError

// Error реализует интерфейс error
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}

	if len(e) == 1 {
		return fmt.Sprintf("validation failed: %s - %s", e[0].Field, e[0].Message)
	}

	return fmt.Sprintf("validation failed: %d errors", len(e))
}

// Add добавляет ошибку валидации
func (e *ValidationErrors) Add(field, message string) {
	*e = append(*e, ValidationError{Field: field, Message: message})
}

// HasErrors проверяет наличие ошибок
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Is позволяет сравнивать с ErrInvalidInput
func (e ValidationErrors) Is(target error) bool {
	return target == ErrInvalidInput
}

// ExternalServiceError представляет ошибку внешнего сервиса
type ExternalServiceError struct {
	Service     string
	Code        string
	Message     string
	StatusCode  int
	OriginalErr error
}

// Error реализует интерфейс error
func (e *ExternalServiceError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("%s service error [%s]: %s: %v", e.Service, e.Code, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("%s service error [%s]: %s", e.Service, e.Code, e.Message)
}

// Unwrap возвращает оригинальную ошибку
func (e *ExternalServiceError) Unwrap() error {
	return e.OriginalErr
}

// Is позволяет сравнивать с ErrExternalServiceUnavailable
func (e *ExternalServiceError) Is(target error) bool {
	return target == ErrExternalServiceUnavailable
}

// NewExternalServiceError создает новую ошибку внешнего сервиса
func NewExternalServiceError(service, code, message string, statusCode int, err error) *ExternalServiceError {
	return &ExternalServiceError{
		Service:     service,
		Code:        code,
		Message:     message,
		StatusCode:  statusCode,
		OriginalErr: err,
	}
}
