package jwtmiddleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	security "github.com/linemk/eshop/internal/jwt-new"
)

type contextKey string

const UserIDKey contextKey = "userID"

// NewJWTMiddleware требует валидный токен в заголовке Authorization.
func NewJWTMiddleware(secret string) func(http.Handler) http.Handler {
	return newMiddleware(secret, true)
}

// NewOptionalJWTMiddleware пропускает анонимные запросы.
// Если заголовок есть, токен обязан быть валидным.
func NewOptionalJWTMiddleware(secret string) func(http.Handler) http.Handler {
	return newMiddleware(secret, false)
}

func newMiddleware(secret string, required bool) func(http.Handler) http.Handler {
	if secret == "" {
		panic("jwt secret is not set")
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Извлекаем токен из заголовка Authorization (формат: "Bearer <token>")
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				if required {
					unauthorized(w, "missing token")
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				unauthorized(w, "invalid token format")
				return
			}

			userID, err := security.ParseUserID(parts[1], secret)
			if err != nil {
				unauthorized(w, "invalid token")
				return
			}

			// Устанавливаем userID в контекст запроса
			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg, "reason": "unauthorized"})
}

// FromContext извлекает userID из контекста.
func FromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(UserIDKey).(int64)
	return id, ok
}
