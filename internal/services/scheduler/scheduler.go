// Package services реализует фоновую очистку истёкших сессий magic-link.
package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/ocr-gateway/internal/lib/sl"
)

// SessionSweeper удаляет сессии, истёкшие раньше before.
type SessionSweeper interface {
	DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error)
}

// SchedulerService периодически удаляет истёкшие сессии.
type SchedulerService struct {
	repo     SessionSweeper
	interval time.Duration
	grace    time.Duration
	now      func() time.Time
	log      *slog.Logger
}

// NewSchedulerService создает новый экземпляр SchedulerService.
func NewSchedulerService(repo SessionSweeper, interval, grace time.Duration, log *slog.Logger) *SchedulerService {
	return &SchedulerService{
		repo:     repo,
		interval: interval,
		grace:    grace,
		now:      time.Now,
		log:      log,
	}
}

// SweepExpiredSessions выполняет очистку сразу и затем с интервалом до отмены ctx.
func (s *SchedulerService) SweepExpiredSessions(ctx context.Context) {
	s.runSweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("session sweeper stopped")
			return
		case <-ticker.C:
			s.runSweep(ctx)
		}
	}
}

func (s *SchedulerService) runSweep(ctx context.Context) int64 {
	const op = "services.scheduler.runSweep"
	log := s.log.With(slog.String("op", op))

	before := s.now().UTC().Add(-s.grace)
	n, err := s.repo.DeleteExpiredSessions(ctx, before)
	if err != nil {
		log.Error("failed to delete expired sessions", sl.Err(err))
		return 0
	}
	if n == 0 {
		log.Debug("no expired sessions found")
		return 0
	}
	log.Info("expired sessions deleted", slog.Int64("count", n))
	return n
}
