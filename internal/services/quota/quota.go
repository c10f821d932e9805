// Package services реализует дневной учёт квоты распознаваний по тарифам.
//
// Проверка и резервирование выполняются одной атомарной операцией хранилища,
// поэтому параллельные запросы одного пользователя не превышают лимит.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/magabrotheeeer/ocr-gateway/internal/lib/sl"
	"github.com/magabrotheeeer/ocr-gateway/internal/metrics"
	"github.com/magabrotheeeer/ocr-gateway/internal/models"
	"github.com/magabrotheeeer/ocr-gateway/internal/storage"
)

// ErrBusy хранилище не смогло выполнить резервирование из-за конфликтов
var ErrBusy = errors.New("quota: store busy")

const (
	// Unlimited лимит тарифа enterprise
	Unlimited int64 = math.MaxInt32
	// DefaultStoreTimeout предел одного обращения к хранилищу
	DefaultStoreTimeout = 3 * time.Second
)

// DefaultLimits дневные лимиты по умолчанию.
var DefaultLimits = map[models.Plan]int64{
	models.PlanFree:       20,
	models.PlanPro:        1000,
	models.PlanProPlus:    5000,
	models.PlanEnterprise: Unlimited,
}

// Decision решение по резервированию.
type Decision int

const (
	Denied Decision = iota
	Allowed
)

func (d Decision) String() string {
	if d == Allowed {
		return "allowed"
	}
	return "denied"
}

// Reservation результат CheckAndReserve.
// Для Allowed Used значение счётчика до резервирования, для Denied текущее значение.
type Reservation struct {
	Decision Decision
	Used     int64
	Limit    int64
}

// Usage текущее использование квоты.
type Usage struct {
	Used      int64 `json:"used"`
	Limit     int64 `json:"limit"`
	Remaining int64 `json:"remaining"`
}

// Store описывает атомарные операции над счётчиками.
type Store interface {
	// ReserveQuota увеличивает счётчик, если он меньше limit. Возвращает значение после операции.
	ReserveQuota(ctx context.Context, userUID, day string, limit int64) (int64, bool, error)
	// GetQuotaUsage возвращает значение счётчика за день.
	GetQuotaUsage(ctx context.Context, userUID, day string) (int64, error)
}

// Ledger учёт квоты.
type Ledger struct {
	store       Store
	limits      map[models.Plan]int64
	maxAttempts int
	backoff     time.Duration
	log         *slog.Logger

	storeTimeout time.Duration
}

// NewLedger создаёт Ledger. overrides переопределяет лимиты по умолчанию
// для указанных тарифов, остальные берутся из DefaultLimits.
func NewLedger(store Store, overrides map[string]int64, maxAttempts int, log *slog.Logger) *Ledger {
	limits := make(map[models.Plan]int64, len(DefaultLimits))
	for plan, limit := range DefaultLimits {
		limits[plan] = limit
	}
	for plan, limit := range overrides {
		limits[models.Plan(plan)] = limit
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Ledger{
		store:       store,
		limits:      limits,
		maxAttempts: maxAttempts,
		backoff:     10 * time.Millisecond,
		log:         log,

		storeTimeout: DefaultStoreTimeout,
	}
}

// WithStoreTimeout задаёт предел одного обращения к хранилищу. d <= 0 игнорируется.
func (l *Ledger) WithStoreTimeout(d time.Duration) *Ledger {
	if d > 0 {
		l.storeTimeout = d
	}
	return l
}

func (l *Ledger) reserveOnce(ctx context.Context, userUID, day string, limit int64) (int64, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, l.storeTimeout)
	defer cancel()
	return l.store.ReserveQuota(ctx, userUID, day, limit)
}

// Limit возвращает дневной лимит тарифа. Неизвестный тариф получает лимит free.
func (l *Ledger) Limit(plan models.Plan) int64 {
	if limit, ok := l.limits[plan]; ok {
		return limit
	}
	return l.limits[models.PlanFree]
}

// CheckAndReserve атомарно проверяет лимит и резервирует одну единицу квоты.
//
// Временные конфликты хранилища повторяются не более maxAttempts раз,
// после чего возвращается ErrBusy.
func (l *Ledger) CheckAndReserve(ctx context.Context, userUID string, plan models.Plan, day string) (Reservation, error) {
	const op = "quota.CheckAndReserve"
	log := l.log.With(slog.String("op", op), slog.String("user_uid", userUID))

	limit := l.Limit(plan)
	var lastErr error
	for attempt := 1; attempt <= l.maxAttempts; attempt++ {
		count, reserved, err := l.reserveOnce(ctx, userUID, day, limit)
		if err == nil {
			res := Reservation{Decision: Denied, Used: count, Limit: limit}
			if reserved {
				res = Reservation{Decision: Allowed, Used: count - 1, Limit: limit}
			}
			metrics.QuotaReservations.WithLabelValues(res.Decision.String()).Inc()
			return res, nil
		}
		if !errors.Is(err, storage.ErrTransient) {
			return Reservation{}, fmt.Errorf("%s: %w", op, err)
		}

		lastErr = err
		log.Warn("transient contention on quota reservation", slog.Int("attempt", attempt), sl.Err(err))
		if attempt == l.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return Reservation{}, fmt.Errorf("%s: %w", op, ctx.Err())
		case <-time.After(l.backoff * time.Duration(attempt)):
		}
	}
	return Reservation{}, fmt.Errorf("%s: %w: %w", op, ErrBusy, lastErr)
}

// Peek возвращает использование квоты за день без изменений.
func (l *Ledger) Peek(ctx context.Context, userUID string, plan models.Plan, day string) (Usage, error) {
	const op = "quota.Peek"

	storeCtx, cancel := context.WithTimeout(ctx, l.storeTimeout)
	defer cancel()
	used, err := l.store.GetQuotaUsage(storeCtx, userUID, day)
	if err != nil {
		return Usage{}, fmt.Errorf("%s: %w", op, err)
	}
	limit := l.Limit(plan)
	return Usage{Used: used, Limit: limit, Remaining: max(limit-used, 0)}, nil
}
