// Package verify реализует HTTP-обработчик перехода по ссылке из письма.
package verify

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/ocr-gateway/internal/lib/sl"
	session "github.com/magabrotheeeer/ocr-gateway/internal/services/session"
)

const (
	pageOK       = `<!DOCTYPE html><html><head><meta charset="utf-8"><title>Вход выполнен</title></head><body><h1>Вход подтверждён</h1><p>Вернитесь в расширение, оно завершит вход автоматически.</p></body></html>`
	pageExpired  = `<!DOCTYPE html><html><head><meta charset="utf-8"><title>Ссылка устарела</title></head><body><h1>Ссылка устарела</h1><p>Запросите новую ссылку в расширении.</p></body></html>`
	pageNotFound = `<!DOCTYPE html><html><head><meta charset="utf-8"><title>Ссылка недействительна</title></head><body><h1>Ссылка недействительна</h1><p>Запросите новую ссылку в расширении.</p></body></html>`
	pageError    = `<!DOCTYPE html><html><head><meta charset="utf-8"><title>Ошибка</title></head><body><h1>Не удалось подтвердить вход</h1><p>Попробуйте ещё раз позже.</p></body></html>`
)

// Verifier подтверждает сессию.
type Verifier interface {
	Verify(ctx context.Context, sessionID, verifyToken string) (session.VerifyOutcome, error)
}

// Handler обрабатывает переход по ссылке.
type Handler struct {
	log      *slog.Logger
	verifier Verifier
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, verifier Verifier) *Handler {
	return &Handler{
		log:      log,
		verifier: verifier,
	}
}

// ServeHTTP godoc
// @Summary Подтверждение входа
// @Description Переводит сессию в подтверждённое состояние. Возвращает HTML-страницу.
// @Tags Auth
// @Produce  html
// @Param session query string true "Идентификатор сессии"
// @Param token query string true "Токен подтверждения"
// @Success 200 {string} string "Вход подтверждён"
// @Failure 404 {string} string "Ссылка недействительна"
// @Failure 410 {string} string "Ссылка устарела"
// @Failure 504 {string} string "Хранилище не ответило вовремя"
// @Router /auth/verify [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.verify"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	sessionID := r.URL.Query().Get("session")
	token := r.URL.Query().Get("token")

	outcome, err := h.verifier.Verify(r.Context(), sessionID, token)
	if errors.Is(err, context.DeadlineExceeded) {
		log.Error("storage timeout", sl.Err(err))
		render.Status(r, http.StatusGatewayTimeout)
		render.HTML(w, r, pageError)
		return
	}
	if err != nil {
		log.Error("failed to verify session", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.HTML(w, r, pageError)
		return
	}

	log.Info("verification handled", slog.String("outcome", outcome.String()))
	switch outcome {
	case session.VerifyOK:
		render.HTML(w, r, pageOK)
	case session.VerifyExpired:
		render.Status(r, http.StatusGone)
		render.HTML(w, r, pageExpired)
	default:
		render.Status(r, http.StatusNotFound)
		render.HTML(w, r, pageNotFound)
	}
}
