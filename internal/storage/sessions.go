package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/magabrotheeeer/ocr-gateway/internal/models"
)

// CreateSession сохраняет новую неподтверждённую сессию.
func (s *Storage) CreateSession(ctx context.Context, session models.AuthSession) error {
	const op = "storage.CreateSession"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}

	query := `INSERT INTO auth_sessions (session_id, user_uid, token_hash, verified, expires_at, created_at)
			  VALUES ($1, $2, $3, FALSE, $4, $5)`
	if _, err := s.DB.ExecContext(ctx, query,
		session.SessionID, session.UserUID, session.TokenHash, session.ExpiresAt, session.CreatedAt); err != nil {
		return wrap(op, err)
	}
	return nil
}

// VerifySession переводит сессию в подтверждённое состояние.
//
// Строка должна совпасть одновременно по идентификатору и хешу токена и не быть
// истёкшей на момент now. Повторное подтверждение уже подтверждённой сессии
// затрагивает ту же строку и тоже возвращает true.
func (s *Storage) VerifySession(ctx context.Context, sessionID, tokenHash string, now time.Time) (bool, error) {
	const op = "storage.VerifySession"
	if err := checkCtx(ctx, op); err != nil {
		return false, err
	}

	query := `UPDATE auth_sessions
			  SET verified = TRUE
			  WHERE session_id = $1 AND token_hash = $2 AND expires_at >= $3`
	result, err := s.DB.ExecContext(ctx, query, sessionID, tokenHash, now)
	if err != nil {
		return false, wrap(op, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return n == 1, nil
}

// FindSession ищет сессию по паре идентификатор + хеш токена без учёта срока.
func (s *Storage) FindSession(ctx context.Context, sessionID, tokenHash string) (*models.AuthSession, error) {
	const op = "storage.FindSession"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT session_id, user_uid, token_hash, verified, expires_at, created_at
			  FROM auth_sessions
			  WHERE session_id = $1 AND token_hash = $2`
	var session models.AuthSession
	if err := s.DB.QueryRowContext(ctx, query, sessionID, tokenHash).Scan(
		&session.SessionID, &session.UserUID, &session.TokenHash,
		&session.Verified, &session.ExpiresAt, &session.CreatedAt); err != nil {
		return nil, wrap(op, err)
	}
	return &session, nil
}

// ConsumeSession удаляет подтверждённую неистёкшую сессию и возвращает её владельца.
//
// Удаление и чтение пользователя выполняются одним запросом: из нескольких
// параллельных опросов строку получит ровно один, остальные получат ErrNotFound.
func (s *Storage) ConsumeSession(ctx context.Context, sessionID string, now time.Time) (*models.User, error) {
	const op = "storage.ConsumeSession"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `DELETE FROM auth_sessions AS s
			  USING users AS u
			  WHERE s.session_id = $1 AND s.verified AND s.expires_at >= $2 AND u.uid = s.user_uid
			  RETURNING u.uid, u.email, u.plan, u.display_name, u.created_at`
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, sessionID, now))
	if err != nil {
		return nil, wrap(op, err)
	}
	return u, nil
}

// GetActiveSession возвращает неистёкшую на момент now сессию по идентификатору.
func (s *Storage) GetActiveSession(ctx context.Context, sessionID string, now time.Time) (*models.AuthSession, error) {
	const op = "storage.GetActiveSession"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT session_id, user_uid, token_hash, verified, expires_at, created_at
			  FROM auth_sessions
			  WHERE session_id = $1 AND expires_at >= $2`
	var session models.AuthSession
	if err := s.DB.QueryRowContext(ctx, query, sessionID, now).Scan(
		&session.SessionID, &session.UserUID, &session.TokenHash,
		&session.Verified, &session.ExpiresAt, &session.CreatedAt); err != nil {
		return nil, wrap(op, err)
	}
	return &session, nil
}

// DeleteExpiredSessions удаляет сессии, истёкшие раньше before, и возвращает их количество.
func (s *Storage) DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error) {
	const op = "storage.DeleteExpiredSessions"
	if err := checkCtx(ctx, op); err != nil {
		return 0, err
	}

	result, err := s.DB.ExecContext(ctx, `DELETE FROM auth_sessions WHERE expires_at < $1`, before)
	if err != nil {
		return 0, wrap(op, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}
