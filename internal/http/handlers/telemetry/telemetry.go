// Package telemetry реализует приём отчётов об ошибках от расширения браузера.
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/ocr-gateway/internal/http/response"
	"github.com/magabrotheeeer/ocr-gateway/internal/lib/sl"
	"github.com/magabrotheeeer/ocr-gateway/internal/models"
	telemetry "github.com/magabrotheeeer/ocr-gateway/internal/services/telemetry"
)

const maxBodyBytes = 64 << 10

// Request — отчёт об ошибке.
type Request struct {
	Source  string `json:"source" validate:"max=64"`
	Message string `json:"message" validate:"required"`
	Stack   string `json:"stack"`
	UserUID string `json:"user_uid" validate:"max=64"`
}

// Recorder сохраняет отчёт.
type Recorder interface {
	Record(ctx context.Context, report models.ErrorReport) (int64, error)
}

// Handler обрабатывает отчёты об ошибках.
type Handler struct {
	log      *slog.Logger
	recorder Recorder
	validate *validator.Validate
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, recorder Recorder) *Handler {
	return &Handler{
		log:      log,
		recorder: recorder,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Отчёт об ошибке клиента
// @Tags Telemetry
// @Accept  json
// @Produce  json
// @Param request body Request true "Отчёт"
// @Success 202 {object} response.Response
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 429 {object} response.ErrorResponse "Слишком много запросов"
// @Failure 504 {object} response.ErrorResponse "Хранилище не ответило вовремя"
// @Router /telemetry/errors [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.telemetry"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		log.Info("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	_, err := h.recorder.Record(r.Context(), models.ErrorReport{
		UserUID:   req.UserUID,
		Source:    req.Source,
		Message:   req.Message,
		Stack:     req.Stack,
		UserAgent: r.UserAgent(),
	})
	if errors.Is(err, telemetry.ErrEmptyMessage) {
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.Error("field Message is a required field"))
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		log.Error("storage timeout", sl.Err(err))
		render.Status(r, http.StatusGatewayTimeout)
		render.JSON(w, r, response.Error("storage timeout"))
		return
	}
	if err != nil {
		log.Error("failed to record error report", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, response.OK())
}
