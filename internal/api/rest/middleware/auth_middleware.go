package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Dhoini/paywall-bot/pkg/logger"
	"github.com/Dhoini/paywall-bot/pkg/res"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// ContextKey тип для ключей контекста во избежание коллизий.
type ContextKey string

const (
	// ContextUserIDKey ключ для хранения идентификатора оператора (claim sub)
	ContextUserIDKey ContextKey = "userID"
	authHeaderPrefix            = "Bearer "

	// ScopeAdmin доступ к операторскому API
	ScopeAdmin = "admin"
)

type TokenValidator interface {
	Validate(tokenString string) (*TokenClaims, error)
}

type TokenClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

type JWTMiddleware struct {
	log       *logger.Logger
	validator TokenValidator
}

func NewJWTMiddleware(log *logger.Logger, validator TokenValidator) *JWTMiddleware {
	return &JWTMiddleware{
		log:       log,
		validator: validator,
	}
}

func (m *JWTMiddleware) RequireAuth(requiredScopes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, authHeaderPrefix) {
			m.handleAuthError(c, "Missing authorization token")
			return
		}

		tokenString := strings.TrimPrefix(authHeader, authHeaderPrefix)
		claims, err := m.validator.Validate(tokenString)
		if err != nil {
			m.handleAuthError(c, fmt.Sprintf("Token validation failed: %v", err))
			return
		}

		if !m.hasRequiredScope(claims.Scope, requiredScopes) {
			m.handleAuthError(c, "Insufficient token permissions")
			return
		}

		if claims.Subject == "" {
			m.handleAuthError(c, "Subject (sub) missing in token")
			return
		}

		c.Set(string(ContextUserIDKey), claims.Subject)
		m.log.Debugw("Operator authenticated", "subject", claims.Subject, "path", c.Request.URL.Path)
		c.Next()
	}
}

func (m *JWTMiddleware) hasRequiredScope(tokenScope string, requiredScopes []string) bool {
	if len(requiredScopes) == 0 {
		return true
	}
	granted := strings.Fields(tokenScope)
	for _, scope := range requiredScopes {
		for _, g := range granted {
			if g == scope {
				return true
			}
		}
	}
	return false
}

func (m *JWTMiddleware) handleAuthError(c *gin.Context, message string) {
	m.log.Warnw("HTTP authentication failed", "path", c.Request.URL.Path, "error", message)
	res.JsonResponse(c.Writer, res.ErrorResponse{
		Error:     message,
		ErrorCode: http.StatusUnauthorized,
	}, http.StatusUnauthorized)
	c.Abort()
}

// DefaultTokenValidator проверяет HS256-токены общим секретом
type DefaultTokenValidator struct {
	Secret []byte
}

func (v *DefaultTokenValidator) Validate(tokenString string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.Secret, nil
	})

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, errors.New("malformed token")
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, errors.New("invalid token signature")
		case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, errors.New("token expired")
		default:
			return nil, fmt.Errorf("invalid token: %w", err)
		}
	}

	if claims, ok := token.Claims.(*TokenClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token claims")
}
