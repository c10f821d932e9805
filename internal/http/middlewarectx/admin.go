package middlewarectx

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/ocr-gateway/internal/http/response"
)

// AdminTokenHeader заголовок со служебным токеном
const AdminTokenHeader = "X-Admin-Token"

// TokenMatcher сравнивает значение с хешем за постоянное время.
type TokenMatcher interface {
	Equal(value, hash string) bool
}

// AdminMiddleware пропускает только запросы с верным служебным токеном.
// В памяти хранится только хеш токена.
func AdminMiddleware(matcher TokenMatcher, tokenHash string, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(AdminTokenHeader)
			if token == "" || !matcher.Equal(token, tokenHash) {
				log.Warn("admin token rejected",
					slog.String("path", r.URL.Path),
					slog.String("request_id", middleware.GetReqID(r.Context())),
				)
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, response.Error("forbidden"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
