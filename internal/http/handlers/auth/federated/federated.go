// Package federated реализует вход через внешнего OAuth-провайдера.
//
// Токен провайдера проверяется через introspection, полученный email
// сверяется с заявленным клиентом. Выдаётся тот же токен доступа, что и при
// входе по ссылке, со сроком основного входа.
package federated

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/ocr-gateway/internal/http/response"
	"github.com/magabrotheeeer/ocr-gateway/internal/introspect"
	"github.com/magabrotheeeer/ocr-gateway/internal/lib/sl"
	"github.com/magabrotheeeer/ocr-gateway/internal/models"
	credential "github.com/magabrotheeeer/ocr-gateway/internal/services/credential"
	identity "github.com/magabrotheeeer/ocr-gateway/internal/services/identity"
)

// Request — токен провайдера и email, который заявляет клиент.
type Request struct {
	AccessToken string `json:"access_token" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
}

// Response — токен доступа и пользователь.
type Response struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

// Identity выполняет вход через провайдера.
type Identity interface {
	FederatedLogin(ctx context.Context, providerToken, claimedEmail string) (*models.User, error)
}

// Issuer выпускает токен доступа.
type Issuer interface {
	Issue(user *models.User, flow credential.Flow) (credential.Credential, error)
}

// Handler обрабатывает вход через провайдера.
type Handler struct {
	log      *slog.Logger
	identity Identity
	issuer   Issuer
	validate *validator.Validate
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, identity Identity, issuer Issuer) *Handler {
	return &Handler{
		log:      log,
		identity: identity,
		issuer:   issuer,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Вход через OAuth-провайдера
// @Tags Auth
// @Accept  json
// @Produce  json
// @Param request body Request true "Токен провайдера и email"
// @Success 200 {object} response.Response{data=Response}
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Токен недействителен или email не совпадает"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 504 {object} response.ErrorResponse "Провайдер или хранилище не ответили вовремя"
// @Router /auth/oauth [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.federated"

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
	if err := h.validate.Struct(req); err != nil {
		log.Info("validation failed", sl.Err(err))
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	user, err := h.identity.FederatedLogin(r.Context(), req.AccessToken, req.Email)
	switch {
	case errors.Is(err, introspect.ErrInvalidToken),
		errors.Is(err, identity.ErrEmailMismatch),
		errors.Is(err, identity.ErrInvalidEmail):
		log.Info("federated login rejected", sl.Err(err))
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("invalid provider token"))
		return
	case errors.Is(err, context.DeadlineExceeded):
		log.Error("federated login timed out", sl.Err(err))
		render.Status(r, http.StatusGatewayTimeout)
		render.JSON(w, r, response.Error("timeout"))
		return
	case err != nil:
		log.Error("federated login failed", sl.Err(err))
		render.Status(r, http.StatusBadGateway)
		render.JSON(w, r, response.Error("identity provider unavailable"))
		return
	}

	cred, err := h.issuer.Issue(user, credential.FlowPrimary)
	if err != nil {
		log.Error("failed to issue credential", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	log.Info("federated login success", slog.String("user_uid", user.UUID))
	render.JSON(w, r, response.OKWithData(Response{
		Token:     cred.Token,
		ExpiresAt: cred.ExpiresAt,
		User:      user,
	}))
}
