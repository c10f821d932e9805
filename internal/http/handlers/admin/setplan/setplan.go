// Package setplan реализует служебную смену тарифа пользователя.
package setplan

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/ocr-gateway/internal/http/response"
	"github.com/magabrotheeeer/ocr-gateway/internal/lib/sl"
	"github.com/magabrotheeeer/ocr-gateway/internal/models"
	identity "github.com/magabrotheeeer/ocr-gateway/internal/services/identity"
)

// Request — новый тариф.
type Request struct {
	Plan string `json:"plan" validate:"required,oneof=free pro pro-plus enterprise"`
}

// PlanSetter меняет тариф пользователя.
type PlanSetter interface {
	SetPlan(ctx context.Context, userUID string, plan models.Plan) error
}

// Handler обрабатывает смену тарифа.
type Handler struct {
	log      *slog.Logger
	users    PlanSetter
	validate *validator.Validate
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, users PlanSetter) *Handler {
	return &Handler{
		log:      log,
		users:    users,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Смена тарифа пользователя
// @Description Служебный маршрут. Новый тариф попадает в токен при следующем обновлении.
// @Tags Admin
// @Accept  json
// @Produce  json
// @Param uid path string true "UID пользователя"
// @Param request body Request true "Тариф"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 403 {object} response.ErrorResponse "Неверный служебный токен"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 504 {object} response.ErrorResponse "Хранилище не ответило вовремя"
// @Router /admin/users/{uid}/plan [put]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.setplan"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
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

	uid := chi.URLParam(r, "uid")
	err := h.users.SetPlan(r.Context(), uid, models.Plan(req.Plan))
	switch {
	case errors.Is(err, identity.ErrUserNotFound):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, response.Error("user not found"))
		return
	case errors.Is(err, context.DeadlineExceeded):
		log.Error("storage timeout", sl.Err(err))
		render.Status(r, http.StatusGatewayTimeout)
		render.JSON(w, r, response.Error("storage timeout"))
		return
	case err != nil:
		log.Error("failed to set plan", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	log.Info("plan changed", slog.String("user_uid", uid), slog.String("plan", req.Plan))
	render.JSON(w, r, response.OK())
}
