// Package refresh реализует обновление токена доступа.
package refresh

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/ocr-gateway/internal/http/middlewarectx"
	"github.com/magabrotheeeer/ocr-gateway/internal/http/response"
	"github.com/magabrotheeeer/ocr-gateway/internal/lib/sl"
	credential "github.com/magabrotheeeer/ocr-gateway/internal/services/credential"
)

// Refresher обновляет токен.
type Refresher interface {
	Refresh(ctx context.Context, token string) (credential.Credential, error)
}

// Handler обрабатывает обновление токена.
type Handler struct {
	log       *slog.Logger
	refresher Refresher
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, refresher Refresher) *Handler {
	return &Handler{
		log:       log,
		refresher: refresher,
	}
}

// ServeHTTP godoc
// @Summary Обновление токена доступа
// @Description Выпускает новый токен с актуальным тарифом пользователя.
// @Tags Auth
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=credential.Credential}
// @Failure 401 {object} response.ErrorResponse "Токен недействителен или истёк"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка"
// @Failure 504 {object} response.ErrorResponse "Хранилище не ответило вовремя"
// @Router /auth/refresh [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.refresh"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	token, ok := middlewarectx.BearerToken(r)
	if !ok {
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("missing or invalid authorization header"))
		return
	}

	cred, err := h.refresher.Refresh(r.Context(), token)
	switch {
	case errors.Is(err, credential.ErrExpired):
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("token expired"))
		return
	case errors.Is(err, credential.ErrInvalid):
		log.Info("refresh rejected", sl.Err(err))
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("invalid token"))
		return
	case errors.Is(err, context.DeadlineExceeded):
		log.Error("storage timeout", sl.Err(err))
		render.Status(r, http.StatusGatewayTimeout)
		render.JSON(w, r, response.Error("storage timeout"))
		return
	case err != nil:
		log.Error("failed to refresh credential", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	log.Info("credential refreshed")
	render.JSON(w, r, response.OKWithData(cred))
}
