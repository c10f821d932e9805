package models

import "time"

// AuthSession сессия входа по magic-link.
//
// Verified меняется только false -> true. Строка удаляется при первом успешном
// опросе подтверждённой сессии. Истечение срока не записывается в базу,
// а проверяется при каждом чтении.
type AuthSession struct {
	SessionID string    // Непредсказуемый идентификатор, известен клиенту
	UserUID   string    // Владелец сессии
	TokenHash string    // Ключевой хеш токена подтверждения из письма
	Verified  bool      // Ссылка из письма открыта
	ExpiresAt time.Time // Фиксируется при создании
	CreatedAt time.Time
}

// Expired сообщает, истекла ли сессия к моменту now.
func (s *AuthSession) Expired(now time.Time) bool {
	return s.ExpiresAt.Before(now)
}
