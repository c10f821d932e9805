// Package poll реализует HTTP-обработчик опроса сессии входа.
//
// Пока сессия не подтверждена, возвращается 202. После подтверждения первый
// опрос потребляет сессию и получает токен доступа, последующие получают 404.
package poll

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/ocr-gateway/internal/http/response"
	"github.com/magabrotheeeer/ocr-gateway/internal/lib/sl"
	"github.com/magabrotheeeer/ocr-gateway/internal/models"
	credential "github.com/magabrotheeeer/ocr-gateway/internal/services/credential"
	session "github.com/magabrotheeeer/ocr-gateway/internal/services/session"
)

// Poller опрашивает сессию.
type Poller interface {
	Poll(ctx context.Context, sessionID string) (session.PollResult, error)
}

// Issuer выпускает токен доступа.
type Issuer interface {
	Issue(user *models.User, flow credential.Flow) (credential.Credential, error)
}

// Response — токен доступа и пользователь.
type Response struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

// Handler обрабатывает опрос сессии.
type Handler struct {
	log    *slog.Logger
	poller Poller
	issuer Issuer
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, poller Poller, issuer Issuer) *Handler {
	return &Handler{
		log:    log,
		poller: poller,
		issuer: issuer,
	}
}

// ServeHTTP godoc
// @Summary Опрос сессии входа
// @Description Возвращает токен доступа, если сессия подтверждена. Сессия одноразовая.
// @Tags Auth
// @Produce  json
// @Param session query string true "Идентификатор сессии"
// @Success 200 {object} response.Response{data=Response}
// @Success 202 {object} response.Response "Ожидает подтверждения"
// @Failure 404 {object} response.ErrorResponse "Сессия не найдена или истекла"
// @Failure 504 {object} response.ErrorResponse "Хранилище не ответило вовремя"
// @Router /auth/poll [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.poll"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	result, err := h.poller.Poll(r.Context(), r.URL.Query().Get("session"))
	if errors.Is(err, context.DeadlineExceeded) {
		log.Error("storage timeout", sl.Err(err))
		render.Status(r, http.StatusGatewayTimeout)
		render.JSON(w, r, response.Error("storage timeout"))
		return
	}
	if err != nil {
		log.Error("failed to poll session", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	switch result.Status {
	case session.PollPending:
		render.Status(r, http.StatusAccepted)
		render.JSON(w, r, response.OKWithData(map[string]string{"status": result.Status.String()}))
		return
	case session.PollNotFoundOrExpired:
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, response.Error("session not found or expired"))
		return
	}

	// Сессия уже удалена. Issue для пользователя из хранилища не обращается
	// к внешним ресурсам и ошибается только на пустом UID.
	cred, err := h.issuer.Issue(result.User, credential.FlowMagicLink)
	if err != nil {
		log.Error("failed to issue credential", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	log.Info("credential issued", slog.String("user_uid", result.User.UUID))
	render.JSON(w, r, response.OKWithData(Response{
		Token:     cred.Token,
		ExpiresAt: cred.ExpiresAt,
		User:      result.User,
	}))
}
