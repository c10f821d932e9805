// Package services реализует платную операцию распознавания текста:
// проверка токена, резервирование квоты и вызов внешнего сервиса.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/ocr-gateway/internal/extractor"
	"github.com/magabrotheeeer/ocr-gateway/internal/lib/day"
	"github.com/magabrotheeeer/ocr-gateway/internal/lib/sl"
	"github.com/magabrotheeeer/ocr-gateway/internal/metrics"
	"github.com/magabrotheeeer/ocr-gateway/internal/models"
	credential "github.com/magabrotheeeer/ocr-gateway/internal/services/credential"
	quota "github.com/magabrotheeeer/ocr-gateway/internal/services/quota"
)

// Status итог запроса.
type Status int

const (
	StatusOK Status = iota
	StatusUnauthorized
	StatusCredentialExpired
	StatusQuotaExceeded
	StatusProviderFailed
	StatusProviderTimeout
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusUnauthorized:
		return "unauthorized"
	case StatusCredentialExpired:
		return "credential_expired"
	case StatusQuotaExceeded:
		return "quota_exceeded"
	case StatusProviderFailed:
		return "provider_failed"
	case StatusProviderTimeout:
		return "provider_timeout"
	}
	return "unknown"
}

// Input изображение для распознавания.
type Input struct {
	Image    []byte
	MimeType string
}

// Result итог операции. Used и Limit заполнены для StatusOK, StatusQuotaExceeded
// и ошибок провайдера (резервирование уже выполнено).
type Result struct {
	Status  Status
	Text    string
	Used    int64
	Limit   int64
	UserUID string
}

// Validator проверяет токен доступа.
type Validator interface {
	Validate(token string) (*credential.Claims, error)
}

// Ledger резервирует квоту.
type Ledger interface {
	CheckAndReserve(ctx context.Context, userUID string, plan models.Plan, day string) (quota.Reservation, error)
}

// Extractor внешний сервис распознавания.
type Extractor interface {
	Extract(ctx context.Context, image []byte, mimeType string) (string, error)
}

// Gateway единая точка входа в платную операцию.
type Gateway struct {
	validator    Validator
	ledger       Ledger
	extractor    Extractor
	loc          *time.Location
	storeTimeout time.Duration
	now          func() time.Time
	log          *slog.Logger
}

// NewGateway создаёт Gateway. loc зона календарного дня квоты, nil означает UTC.
func NewGateway(validator Validator, ledger Ledger, extractor Extractor, loc *time.Location, storeTimeout time.Duration, log *slog.Logger) *Gateway {
	if loc == nil {
		loc = time.UTC
	}
	return &Gateway{
		validator:    validator,
		ledger:       ledger,
		extractor:    extractor,
		loc:          loc,
		storeTimeout: storeTimeout,
		now:          time.Now,
		log:          log,
	}
}

// WithClock заменяет часы, используется в тестах.
func (g *Gateway) WithClock(now func() time.Time) *Gateway {
	g.now = now
	return g
}

// Perform выполняет распознавание для предъявленного токена.
//
// Токен проверяется до любого обращения к хранилищу. Квота резервируется
// до вызова провайдера и не возвращается при его ошибке. Ошибка возвращается
// только при сбое хранилища, остальные исходы передаются через Status.
func (g *Gateway) Perform(ctx context.Context, token string, in Input) (Result, error) {
	const op = "gateway.Perform"
	log := g.log.With(slog.String("op", op))

	res, err := g.perform(ctx, token, in, log)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}
	metrics.Extractions.WithLabelValues(res.Status.String()).Inc()
	return res, nil
}

func (g *Gateway) perform(ctx context.Context, token string, in Input, log *slog.Logger) (Result, error) {
	claims, err := g.validator.Validate(token)
	if errors.Is(err, credential.ErrExpired) {
		return Result{Status: StatusCredentialExpired}, nil
	}
	if err != nil {
		return Result{Status: StatusUnauthorized}, nil
	}
	log = log.With(slog.String("user_uid", claims.UserUID))

	reservation, err := g.reserve(ctx, claims)
	if err != nil {
		return Result{}, err
	}
	res := Result{
		UserUID: claims.UserUID,
		Used:    reservation.Used,
		Limit:   reservation.Limit,
	}
	if reservation.Decision != quota.Allowed {
		log.Info("quota exceeded", slog.Int64("used", reservation.Used), slog.Int64("limit", reservation.Limit))
		res.Status = StatusQuotaExceeded
		return res, nil
	}
	res.Used = reservation.Used + 1

	text, err := g.extractor.Extract(ctx, in.Image, in.MimeType)
	switch {
	case errors.Is(err, extractor.ErrTimeout):
		log.Warn("extraction provider timed out", sl.Err(err))
		res.Status = StatusProviderTimeout
		return res, nil
	case err != nil:
		log.Error("extraction provider failed", sl.Err(err))
		res.Status = StatusProviderFailed
		return res, nil
	}

	res.Status = StatusOK
	res.Text = text
	return res, nil
}

func (g *Gateway) reserve(ctx context.Context, claims *credential.Claims) (quota.Reservation, error) {
	if g.storeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.storeTimeout)
		defer cancel()
	}
	return g.ledger.CheckAndReserve(ctx, claims.UserUID, claims.Plan, day.Key(g.now(), g.loc))
}
