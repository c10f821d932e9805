// Package middlewarectx содержит HTTP middleware сервиса.
//
// JWTMiddleware проверяет токен доступа из заголовка Authorization и в случае
// успеха добавляет в контекст идентификатор, email и тариф пользователя.
// RateLimitMiddleware ограничивает частоту запросов к отдельным маршрутам.
package middlewarectx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/ocr-gateway/internal/http/response"
	"github.com/magabrotheeeer/ocr-gateway/internal/lib/sl"
	"github.com/magabrotheeeer/ocr-gateway/internal/models"
	credential "github.com/magabrotheeeer/ocr-gateway/internal/services/credential"
)

// Key тип для ключей контекста HTTP-запроса.
type Key string

const (
	// UserUID — ключ для идентификатора пользователя в контексте
	UserUID Key = "user_uid"
	// Email — ключ для email пользователя в контексте
	Email Key = "email"
	// Plan — ключ для тарифа пользователя в контексте
	Plan Key = "plan"
)

// Validator описывает проверку токена доступа.
type Validator interface {
	Validate(token string) (*credential.Claims, error)
}

// BearerToken достаёт токен из заголовка Authorization.
func BearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	return token, token != ""
}

// JWTMiddleware возвращает HTTP middleware, который проверяет JWT в заголовке Authorization.
func JWTMiddleware(validator Validator, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.JWTMiddleware"

			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			tokenStr, ok := BearerToken(r)
			if !ok {
				log.Info("missing or invalid authorization header")
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("missing or invalid authorization header"))
				return
			}

			claims, err := validator.Validate(tokenStr)
			if err != nil {
				msg := "invalid token"
				if errors.Is(err, credential.ErrExpired) {
					msg = "token expired"
				}
				log.Info("token rejected", sl.Err(err))
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error(msg))
				return
			}

			ctx := context.WithValue(r.Context(), UserUID, claims.UserUID)
			ctx = context.WithValue(ctx, Email, claims.Email)
			ctx = context.WithValue(ctx, Plan, claims.Plan)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserFromContext возвращает данные пользователя, добавленные JWTMiddleware.
func UserFromContext(ctx context.Context) (userUID, email string, plan models.Plan, ok bool) {
	userUID, ok = ctx.Value(UserUID).(string)
	if !ok || userUID == "" {
		return "", "", "", false
	}
	email, _ = ctx.Value(Email).(string)
	plan, _ = ctx.Value(Plan).(models.Plan)
	return userUID, email, plan, true
}
