// Package ocrgateway собирает HTTP-сервис: вход по ссылке, распознавание и служебные маршруты.
package ocrgateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	httpSwagger "github.com/swaggo/http-swagger"
	"golang.org/x/time/rate"

	"github.com/magabrotheeeer/ocr-gateway/internal/http/handlers/admin/setplan"
	"github.com/magabrotheeeer/ocr-gateway/internal/http/handlers/auth/federated"
	"github.com/magabrotheeeer/ocr-gateway/internal/http/handlers/auth/poll"
	"github.com/magabrotheeeer/ocr-gateway/internal/http/handlers/auth/refresh"
	"github.com/magabrotheeeer/ocr-gateway/internal/http/handlers/auth/startlogin"
	"github.com/magabrotheeeer/ocr-gateway/internal/http/handlers/auth/verify"
	"github.com/magabrotheeeer/ocr-gateway/internal/http/handlers/extract"
	"github.com/magabrotheeeer/ocr-gateway/internal/http/handlers/health"
	"github.com/magabrotheeeer/ocr-gateway/internal/http/handlers/telemetry"
	"github.com/magabrotheeeer/ocr-gateway/internal/http/handlers/usage"
	"github.com/magabrotheeeer/ocr-gateway/internal/http/middlewarectx"
	credentialservice "github.com/magabrotheeeer/ocr-gateway/internal/services/credential"
	gatewayservice "github.com/magabrotheeeer/ocr-gateway/internal/services/gateway"
	identityservice "github.com/magabrotheeeer/ocr-gateway/internal/services/identity"
	notifyservice "github.com/magabrotheeeer/ocr-gateway/internal/services/notify"
	quotaservice "github.com/magabrotheeeer/ocr-gateway/internal/services/quota"
	sessionservice "github.com/magabrotheeeer/ocr-gateway/internal/services/session"
	telemetryservice "github.com/magabrotheeeer/ocr-gateway/internal/services/telemetry"
)

// routeDeps зависимости обработчиков.
type routeDeps struct {
	sessions         *sessionservice.Manager
	identity         *identityservice.IdentityService
	issuer           *credentialservice.Issuer
	ledger           *quotaservice.Ledger
	gateway          *gatewayservice.Gateway
	notifier         *notifyservice.NotifyService
	telemetry        *telemetryservice.TelemetryService
	throttle         startlogin.Throttle
	db               health.Pinger
	quotaLocation    *time.Location
	telemetryLimiter *rate.Limiter
	allowedOrigins   []string
	adminMatcher     middlewarectx.TokenMatcher
	adminTokenHash   string
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, deps routeDeps) {
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
		corsMiddleware(deps.allowedOrigins),
	)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/magic-link", startlogin.New(logger, deps.sessions, deps.notifier, deps.throttle).ServeHTTP)
			r.Get("/verify", verify.New(logger, deps.sessions).ServeHTTP)
			r.Get("/poll", poll.New(logger, deps.sessions, deps.issuer).ServeHTTP)
			r.Post("/oauth", federated.New(logger, deps.identity, deps.issuer).ServeHTTP)
			r.Post("/refresh", refresh.New(logger, deps.issuer).ServeHTTP)
		})

		// Токен проверяет сам шлюз, до обращения к квоте
		r.Post("/extract", extract.New(logger, deps.gateway).ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(deps.issuer, logger))
			r.Get("/usage", usage.New(logger, deps.ledger, deps.quotaLocation).ServeHTTP)
		})

		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.RateLimitMiddleware(deps.telemetryLimiter, logger))
			r.Post("/telemetry/errors", telemetry.New(logger, deps.telemetry).ServeHTTP)
		})

		if deps.adminTokenHash != "" {
			r.Group(func(r chi.Router) {
				r.Use(middlewarectx.AdminMiddleware(deps.adminMatcher, deps.adminTokenHash, logger))
				r.Put("/admin/users/{uid}/plan", setplan.New(logger, deps.identity).ServeHTTP)
			})
		}
	})

	r.Get("/health", health.New(logger, deps.db).ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/docs/*", httpSwagger.WrapHandler)
}

func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         600,
	}).Handler
}
