package auth

import (
	"context"
	"net/http"

	"github.com/xela07ax/agent-pulse/internal/domain"
	"go.uber.org/zap"
)

// TokenValidator — интерфейс проверки токенов операторов
type TokenValidator interface {
	VerifyToken(tokenStr string) (*domain.CustomClaims, error)
}

type ctxKey string

const operatorIDKey ctxKey = "operator_id"

// OperatorID достает идентификатор оператора из контекста запроса.
// Пустая строка означает анонимный (открытый) режим.
func OperatorID(ctx context.Context) string {
	if id, ok := ctx.Value(operatorIDKey).(string); ok {
		return id
	}
	return ""
}

// NewIdentityMiddleware кладет в контекст личность оператора.
//
// Если валидатор настроен (v != nil) — токен обязателен и проверяется строго.
// Если авторизация не настроена (локальный запуск) — доверяем заголовку
// X-Author-ID, чтобы темы всё равно имели владельца.
func NewIdentityMiddleware(v TokenValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				ctx := context.WithValue(r.Context(), operatorIDKey, r.Header.Get("X-Author-ID"))
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := v.VerifyToken(authHeader)
			if err != nil {
				logger.Warn("auth failure", zap.Error(err))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), operatorIDKey, claims.OperatorID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
