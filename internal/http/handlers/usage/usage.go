// Package usage реализует просмотр расхода дневной квоты.
package usage

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/ocr-gateway/internal/http/middlewarectx"
	"github.com/magabrotheeeer/ocr-gateway/internal/http/response"
	"github.com/magabrotheeeer/ocr-gateway/internal/lib/day"
	"github.com/magabrotheeeer/ocr-gateway/internal/lib/sl"
	"github.com/magabrotheeeer/ocr-gateway/internal/models"
	quota "github.com/magabrotheeeer/ocr-gateway/internal/services/quota"
)

// Ledger читает расход квоты без изменений.
type Ledger interface {
	Peek(ctx context.Context, userUID string, plan models.Plan, day string) (quota.Usage, error)
}

// Response — расход квоты и момент её обнуления.
type Response struct {
	quota.Usage
	ResetsAt time.Time `json:"resets_at"`
}

// Handler обрабатывает запросы расхода квоты.
type Handler struct {
	log    *slog.Logger
	ledger Ledger
	loc    *time.Location
	now    func() time.Time
}

// New создает новый экземпляр Handler. loc зона календарного дня квоты.
func New(log *slog.Logger, ledger Ledger, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{
		log:    log,
		ledger: ledger,
		loc:    loc,
		now:    time.Now,
	}
}

// ServeHTTP godoc
// @Summary Расход квоты
// @Tags Extract
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=Response}
// @Failure 401 {object} response.ErrorResponse "Токен недействителен"
// @Failure 504 {object} response.ErrorResponse "Хранилище не ответило вовремя"
// @Router /usage [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.usage"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userUID, _, plan, ok := middlewarectx.UserFromContext(r.Context())
	if !ok {
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("user identification missing"))
		return
	}

	now := h.now()
	usage, err := h.ledger.Peek(r.Context(), userUID, plan, day.Key(now, h.loc))
	if errors.Is(err, context.DeadlineExceeded) {
		log.Error("storage timeout", sl.Err(err))
		render.Status(r, http.StatusGatewayTimeout)
		render.JSON(w, r, response.Error("storage timeout"))
		return
	}
	if err != nil {
		log.Error("failed to read usage", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}
	render.JSON(w, r, response.OKWithData(Response{
		Usage:    usage,
		ResetsAt: day.NextReset(now, h.loc),
	}))
}
