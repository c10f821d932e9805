package storage

import (
	"context"
	"database/sql"

	"github.com/magabrotheeeer/ocr-gateway/internal/models"
)

// InsertErrorReport добавляет отчёт об ошибке клиента и возвращает его ID.
func (s *Storage) InsertErrorReport(ctx context.Context, report models.ErrorReport) (int64, error) {
	const op = "storage.InsertErrorReport"
	if err := checkCtx(ctx, op); err != nil {
		return 0, err
	}

	query := `INSERT INTO error_reports (user_uid, source, message, stack, user_agent, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6)
			  RETURNING id`
	var id int64
	if err := s.DB.QueryRowContext(ctx, query,
		nullString(report.UserUID), report.Source, report.Message,
		nullString(report.Stack), nullString(report.UserAgent), report.CreatedAt).Scan(&id); err != nil {
		return 0, wrap(op, err)
	}
	return id, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
