// Package extract реализует HTTP-обработчик распознавания текста на изображении.
//
// Токен доступа передаётся в заголовке Authorization и проверяется шлюзом
// до обращения к квоте. Исходы шлюза отображаются в коды ответа.
package extract

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/ocr-gateway/internal/http/middlewarectx"
	"github.com/magabrotheeeer/ocr-gateway/internal/http/response"
	"github.com/magabrotheeeer/ocr-gateway/internal/lib/sl"
	gateway "github.com/magabrotheeeer/ocr-gateway/internal/services/gateway"
	quota "github.com/magabrotheeeer/ocr-gateway/internal/services/quota"
)

// MaxBodyBytes ограничение размера тела запроса
const MaxBodyBytes = 10 << 20

// Request — изображение в base64 и его тип.
type Request struct {
	Image    string `json:"image" validate:"required,base64"`
	MimeType string `json:"mime_type" validate:"omitempty,oneof=image/png image/jpeg image/gif image/webp image/bmp image/tiff"`
}

// Response — распознанный текст и расход квоты за день.
type Response struct {
	Text  string `json:"text"`
	Used  int64  `json:"used"`
	Limit int64  `json:"limit"`
}

// QuotaResponse — расход квоты при отказе.
type QuotaResponse struct {
	Used  int64 `json:"used"`
	Limit int64 `json:"limit"`
}

// Gateway выполняет платную операцию.
type Gateway interface {
	Perform(ctx context.Context, token string, in gateway.Input) (gateway.Result, error)
}

// Handler обрабатывает запросы распознавания.
type Handler struct {
	log      *slog.Logger
	gateway  Gateway
	validate *validator.Validate
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, gw Gateway) *Handler {
	return &Handler{
		log:      log,
		gateway:  gw,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Распознавание текста
// @Description Распознаёт текст на изображении. Каждый принятый запрос расходует единицу дневной квоты, в том числе при ошибке провайдера.
// @Tags Extract
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param request body Request true "Изображение"
// @Success 200 {object} response.Response{data=Response}
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Токен недействителен или истёк"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 429 {object} response.Response{data=QuotaResponse} "Дневная квота исчерпана"
// @Failure 502 {object} response.ErrorResponse "Ошибка провайдера"
// @Failure 503 {object} response.ErrorResponse "Хранилище перегружено"
// @Failure 504 {object} response.ErrorResponse "Провайдер не ответил вовремя"
// @Router /extract [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.extract"

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

	var req Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes)).Decode(&req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		log.Info("validation failed", sl.Err(err))
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}
	image, err := base64.StdEncoding.DecodeString(req.Image)
	if err != nil || len(image) == 0 {
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.Error("field Image must be base64 encoded"))
		return
	}

	res, err := h.gateway.Perform(r.Context(), token, gateway.Input{Image: image, MimeType: req.MimeType})
	if errors.Is(err, quota.ErrBusy) {
		log.Warn("quota store busy", sl.Err(err))
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, response.Error("service busy, try again"))
		return
	}
	if err != nil {
		log.Error("extraction failed", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	switch res.Status {
	case gateway.StatusOK:
		render.JSON(w, r, response.OKWithData(Response{Text: res.Text, Used: res.Used, Limit: res.Limit}))
	case gateway.StatusUnauthorized:
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("invalid token"))
	case gateway.StatusCredentialExpired:
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("token expired"))
	case gateway.StatusQuotaExceeded:
		render.Status(r, http.StatusTooManyRequests)
		render.JSON(w, r, response.ErrorWithData("daily quota exceeded", QuotaResponse{Used: res.Used, Limit: res.Limit}))
	case gateway.StatusProviderTimeout:
		render.Status(r, http.StatusGatewayTimeout)
		render.JSON(w, r, response.Error("extraction provider timed out"))
	default:
		render.Status(r, http.StatusBadGateway)
		render.JSON(w, r, response.Error("extraction provider failed"))
	}
}
