package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ReserveQuota атомарно проверяет и увеличивает дневной счётчик пользователя.
//
// Строка создаётся со значением 1 при первой операции за день, иначе
// увеличивается только если текущее значение меньше limit. Конкурирующие
// запросы сериализуются блокировкой строки, поэтому счётчик не превышает limit.
// Возвращает значение счётчика после операции и признак резервирования.
// При отказе возвращается текущее значение без изменений.
func (s *Storage) ReserveQuota(ctx context.Context, userUID, day string, limit int64) (int64, bool, error) {
	const op = "storage.ReserveQuota"
	if err := checkCtx(ctx, op); err != nil {
		return 0, false, err
	}
	if limit <= 0 {
		used, err := s.GetQuotaUsage(ctx, userUID, day)
		return used, false, err
	}

	query := `INSERT INTO quota_counters (user_uid, day, count)
			  VALUES ($1, $2, 1)
			  ON CONFLICT (user_uid, day) DO UPDATE
			  SET count = quota_counters.count + 1, updated_at = NOW()
			  WHERE quota_counters.count < $3
			  RETURNING count`
	var count int64
	err := s.DB.QueryRowContext(ctx, query, userUID, day, limit).Scan(&count)
	if err == nil {
		return count, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, wrap(op, err)
	}

	used, err := s.GetQuotaUsage(ctx, userUID, day)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", op, err)
	}
	return used, false, nil
}

// GetQuotaUsage возвращает значение счётчика за день, 0 если строки ещё нет.
func (s *Storage) GetQuotaUsage(ctx context.Context, userUID, day string) (int64, error) {
	const op = "storage.GetQuotaUsage"
	if err := checkCtx(ctx, op); err != nil {
		return 0, err
	}

	var count int64
	err := s.DB.QueryRowContext(ctx,
		`SELECT count FROM quota_counters WHERE user_uid = $1 AND day = $2`, userUID, day).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, wrap(op, err)
	}
	return count, nil
}
