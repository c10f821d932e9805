// Package services принимает отчёты об ошибках от расширения браузера.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/magabrotheeeer/ocr-gateway/internal/lib/sl"
	"github.com/magabrotheeeer/ocr-gateway/internal/models"
)

const (
	// DefaultMaxMessageLen ограничение длины сообщения и стека по умолчанию
	DefaultMaxMessageLen = 4096
	// DefaultStoreTimeout предел обращения к хранилищу
	DefaultStoreTimeout = 3 * time.Second
)

// ErrEmptyMessage отчёт без текста ошибки
var ErrEmptyMessage = errors.New("telemetry: empty message")

// ReportRepository сохраняет отчёты.
type ReportRepository interface {
	InsertErrorReport(ctx context.Context, report models.ErrorReport) (int64, error)
}

// TelemetryService сервис приёма отчётов.
type TelemetryService struct {
	repo   ReportRepository
	maxLen int
	now    func() time.Time
	log    *slog.Logger

	storeTimeout time.Duration
}

// NewTelemetryService создает новый экземпляр TelemetryService.
func NewTelemetryService(repo ReportRepository, maxLen int, log *slog.Logger) *TelemetryService {
	if maxLen <= 0 {
		maxLen = DefaultMaxMessageLen
	}
	return &TelemetryService{
		repo:   repo,
		maxLen: maxLen,
		now:    time.Now,
		log:    log,

		storeTimeout: DefaultStoreTimeout,
	}
}

// WithStoreTimeout задаёт предел обращения к хранилищу. d <= 0 игнорируется.
func (s *TelemetryService) WithStoreTimeout(d time.Duration) *TelemetryService {
	if d > 0 {
		s.storeTimeout = d
	}
	return s
}

// Record обрезает длинные поля и сохраняет отчёт.
func (s *TelemetryService) Record(ctx context.Context, report models.ErrorReport) (int64, error) {
	const op = "services.telemetry.Record"
	log := s.log.With(slog.String("op", op))

	report.Message = strings.TrimSpace(report.Message)
	if report.Message == "" {
		return 0, fmt.Errorf("%s: %w", op, ErrEmptyMessage)
	}
	if report.Source == "" {
		report.Source = "unknown"
	}
	report.Message = truncate(report.Message, s.maxLen)
	report.Stack = truncate(report.Stack, s.maxLen)
	report.UserAgent = truncate(report.UserAgent, 512)
	report.CreatedAt = s.now().UTC()

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	id, err := s.repo.InsertErrorReport(storeCtx, report)
	if err != nil {
		log.Error("failed to insert error report", sl.Err(err))
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	log.Debug("error report recorded", slog.Int64("id", id), slog.String("source", report.Source))
	return id, nil
}

// truncate обрезает строку до limit байт, не разрывая руны.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	s = s[:limit]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
