package ocrgateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"
	"golang.org/x/time/rate"

	"github.com/magabrotheeeer/ocr-gateway/internal/cache"
	"github.com/magabrotheeeer/ocr-gateway/internal/config"
	"github.com/magabrotheeeer/ocr-gateway/internal/extractor"
	"github.com/magabrotheeeer/ocr-gateway/internal/http/handlers/auth/startlogin"
	"github.com/magabrotheeeer/ocr-gateway/internal/introspect"
	"github.com/magabrotheeeer/ocr-gateway/internal/lib/jwt"
	"github.com/magabrotheeeer/ocr-gateway/internal/lib/secret"
	"github.com/magabrotheeeer/ocr-gateway/internal/lib/sl"
	"github.com/magabrotheeeer/ocr-gateway/internal/migrations"
	"github.com/magabrotheeeer/ocr-gateway/internal/rabbitmq"
	credentialservice "github.com/magabrotheeeer/ocr-gateway/internal/services/credential"
	gatewayservice "github.com/magabrotheeeer/ocr-gateway/internal/services/gateway"
	identityservice "github.com/magabrotheeeer/ocr-gateway/internal/services/identity"
	notifyservice "github.com/magabrotheeeer/ocr-gateway/internal/services/notify"
	quotaservice "github.com/magabrotheeeer/ocr-gateway/internal/services/quota"
	sessionservice "github.com/magabrotheeeer/ocr-gateway/internal/services/session"
	telemetryservice "github.com/magabrotheeeer/ocr-gateway/internal/services/telemetry"
	"github.com/magabrotheeeer/ocr-gateway/internal/storage"
)

// App HTTP-сервис распознавания.
type App struct {
	server *http.Server
	logger *slog.Logger
	db     *storage.Storage
	cache  *cache.Cache
	conn   *amqp.Connection
	ch     *amqp.Channel
}

// New поднимает зависимости и собирает HTTP-сервер. Redis и RabbitMQ необязательны:
// без них выдача ссылок не ограничивается, а ссылки только пишутся в лог.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "app.ocrgateway.New"

	app := &App{logger: logger}

	db, err := storage.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	app.db = db
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		app.close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var throttle startlogin.Throttle
	if cfg.RedisConnection.AddressRedis != "" {
		app.cache, err = cache.InitServer(ctx, cfg.RedisConnection)
		if err != nil {
			app.close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		throttle = cache.NewLimiter(app.cache, logger, "magic_link", cfg.MagicLink.ThrottleLimit, cfg.MagicLink.ThrottleWindow)
	} else {
		logger.Warn("redis is not configured, magic link throttle disabled")
	}

	var publisher notifyservice.Publisher
	if cfg.RabbitMQ.URL != "" {
		app.conn, err = rabbitmq.Connect(cfg.RabbitMQ.URL, cfg.RabbitMQ.MaxRetries, cfg.RabbitMQ.RetryDelay)
		if err != nil {
			app.close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		app.ch, err = rabbitmq.SetupChannel(app.conn, rabbitmq.AuthExchange, rabbitmq.GetAuthQueues())
		if err != nil {
			app.close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		publisher = rabbitmq.NewPublisher(app.ch, rabbitmq.AuthExchange)
	} else {
		logger.Warn("rabbitmq is not configured, magic links are only logged")
	}

	var introspector identityservice.Introspector
	if cfg.OAuth.Endpoint != "" {
		client, err := introspect.NewClient(ctx, cfg.OAuth.Endpoint, cfg.OAuth.Timeout)
		if err != nil {
			app.close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		introspector = client
	}

	hasher, err := secret.NewHasher(cfg.MagicLink.TokenPepper)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	loc, err := time.LoadLocation(cfg.Quota.Timezone)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	identity := identityservice.NewIdentityService(db, introspector, logger).WithStoreTimeout(cfg.StoreTimeout)
	issuer := credentialservice.NewIssuer(jwt.NewJWTMaker(cfg.JWTToken.JWTSecretKey), identity,
		cfg.JWTToken.PrimaryTTL, cfg.JWTToken.MagicLinkTTL)
	ledger := quotaservice.NewLedger(db, cfg.Quota.Limits, cfg.Quota.MaxAttempts, logger).
		WithStoreTimeout(cfg.StoreTimeout)
	extractorClient := extractor.NewClient(cfg.Extractor.APIURL, cfg.Extractor.APIKey, cfg.Extractor.Timeout)

	sessions := sessionservice.NewManager(db, identity, hasher, cfg.MagicLink.SessionTTL, logger).
		WithStoreTimeout(cfg.StoreTimeout)

	deps := routeDeps{
		sessions:         sessions,
		identity:         identity,
		issuer:           issuer,
		ledger:           ledger,
		gateway:          gatewayservice.NewGateway(issuer, ledger, extractorClient, loc, cfg.StoreTimeout, logger),
		notifier:         notifyservice.NewNotifyService(publisher, cfg.MagicLink.PublicBaseURL, logger),
		telemetry:        telemetryservice.NewTelemetryService(db, cfg.Telemetry.MaxMessageLen, logger).WithStoreTimeout(cfg.StoreTimeout),
		throttle:         throttle,
		db:               db,
		quotaLocation:    loc,
		telemetryLimiter: rate.NewLimiter(rate.Limit(cfg.Telemetry.Rate), cfg.Telemetry.Burst),
		allowedOrigins:   cfg.CORS.AllowedOrigins,
	}
	if cfg.Admin.Token != "" {
		deps.adminMatcher = hasher
		deps.adminTokenHash = hasher.Hash(cfg.Admin.Token)
	}

	router := chi.NewRouter()
	RegisterRoutes(router, logger, deps)

	app.server = &http.Server{
		Addr:         cfg.HTTPServer.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.TimeoutHTTP,
		WriteTimeout: cfg.HTTPServer.TimeoutHTTP,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}
	return app, nil
}

// Run запускает HTTP-сервер и останавливает его при отмене ctx.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		a.close()
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		a.close()
		return err
	}
}

func (a *App) close() {
	if a.ch != nil {
		if err := a.ch.Close(); err != nil {
			a.logger.Error("failed to close channel", sl.Err(err))
		}
	}
	if a.conn != nil {
		if err := a.conn.Close(); err != nil {
			a.logger.Error("failed to close connection", sl.Err(err))
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Error("failed to close redis", sl.Err(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("failed to close storage", sl.Err(err))
		}
	}
}
