// Package startlogin реализует HTTP-обработчик запроса ссылки для входа.
//
// Обработчик проверяет email, ограничивает частоту запросов на один адрес,
// создаёт сессию и отправляет ссылку. Клиенту возвращается только
// идентификатор сессии для опроса, токен подтверждения уходит в письмо.
package startlogin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/ocr-gateway/internal/http/response"
	"github.com/magabrotheeeer/ocr-gateway/internal/lib/sl"
	"github.com/magabrotheeeer/ocr-gateway/internal/models"
	session "github.com/magabrotheeeer/ocr-gateway/internal/services/session"
)

// Request — входные данные запроса ссылки. Формат email проверяет models.ValidEmail.
type Request struct {
	Email string `json:"email" validate:"required"`
}

// Response — данные для опроса состояния сессии.
type Response struct {
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Handler обрабатывает запросы ссылки для входа.
type Handler struct {
	log      *slog.Logger
	sessions Sessions
	notifier Notifier
	throttle Throttle
	validate *validator.Validate
}

// New создает новый экземпляр Handler. throttle может быть nil.
func New(log *slog.Logger, sessions Sessions, notifier Notifier, throttle Throttle) *Handler {
	return &Handler{
		log:      log,
		sessions: sessions,
		notifier: notifier,
		throttle: throttle,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Запрос ссылки для входа
// @Description Создаёт сессию входа и отправляет ссылку подтверждения на email.
// @Tags Auth
// @Accept  json
// @Produce  json
// @Param request body Request true "Email пользователя"
// @Success 200 {object} response.Response{data=Response}
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 422 {object} response.ErrorResponse "Некорректный email"
// @Failure 429 {object} response.ErrorResponse "Слишком много запросов"
// @Failure 503 {object} response.ErrorResponse "Ссылку не удалось отправить"
// @Failure 504 {object} response.ErrorResponse "Хранилище не ответило вовремя"
// @Router /auth/magic-link [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.startlogin"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	log = log.With(sl.Email(req.Email))

	if err := h.validate.Struct(req); err != nil {
		log.Info("validation failed", sl.Err(err))
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}
	if !models.ValidEmail(req.Email) {
		log.Info("invalid email")
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.Error("invalid email"))
		return
	}

	if h.throttle != nil && !h.throttle.Allow(r.Context(), req.Email) {
		log.Warn("magic link throttled")
		render.Status(r, http.StatusTooManyRequests)
		render.JSON(w, r, response.Error("too many login attempts, try again later"))
		return
	}

	ticket, err := h.sessions.StartLogin(r.Context(), req.Email)
	if errors.Is(err, session.ErrInvalidEmail) {
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.Error("invalid email"))
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		log.Error("storage timeout", sl.Err(err))
		render.Status(r, http.StatusGatewayTimeout)
		render.JSON(w, r, response.Error("storage timeout"))
		return
	}
	if err != nil {
		log.Error("failed to start login", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	if err := h.notifier.SendMagicLink(r.Context(), ticket.User.Email, ticket.SessionID, ticket.VerifyToken, ticket.ExpiresAt); err != nil {
		log.Error("failed to send magic link", sl.Err(err))
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, response.Error("failed to send login link"))
		return
	}

	log.Info("login started")
	render.JSON(w, r, response.OKWithData(Response{
		SessionID: ticket.SessionID,
		ExpiresAt: ticket.ExpiresAt,
	}))
}
