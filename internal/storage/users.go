package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/magabrotheeeer/ocr-gateway/internal/models"
)

const userColumns = `uid, email, plan, display_name, created_at`

// GetOrCreateUser возвращает пользователя по email, создавая его при первом обращении.
//
// Вставка и чтение выполняются одним запросом, поэтому параллельные входы
// с одним адресом получают одну и ту же запись.
func (s *Storage) GetOrCreateUser(ctx context.Context, uid, email string, plan models.Plan) (*models.User, error) {
	const op = "storage.GetOrCreateUser"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `INSERT INTO users (uid, email, plan)
			  VALUES ($1, $2, $3)
			  ON CONFLICT (email) DO UPDATE SET email = users.email
			  RETURNING ` + userColumns
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, uid, email, string(plan)))
	if err != nil {
		return nil, wrap(op, err)
	}
	return u, nil
}

// GetUser возвращает пользователя по его UID.
func (s *Storage) GetUser(ctx context.Context, userUID string) (*models.User, error) {
	const op = "storage.GetUser"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE uid = $1`
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, userUID))
	if err != nil {
		return nil, wrap(op, err)
	}
	return u, nil
}

// UpdateUserPlan меняет тариф пользователя.
func (s *Storage) UpdateUserPlan(ctx context.Context, userUID string, plan models.Plan) error {
	const op = "storage.UpdateUserPlan"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}

	result, err := s.DB.ExecContext(ctx, `UPDATE users SET plan = $1 WHERE uid = $2`, string(plan), userUID)
	if err != nil {
		return wrap(op, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u           models.User
		plan        string
		displayName sql.NullString
	)
	if err := row.Scan(&u.UUID, &u.Email, &plan, &displayName, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.Plan = models.Plan(plan)
	if displayName.Valid {
		u.DisplayName = displayName.String
	}
	return &u, nil
}
