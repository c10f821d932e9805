// Package jwt реализует генерацию и парсинг подписанных HMAC-SHA256 JWT токенов
// с данными пользователя и тарифом.
//
// Maker определяет интерфейс для создания и проверки токенов.
// MakerImpl — реализация с секретным ключом процесса и подменяемыми часами.
package jwt

import (
	"errors"
	"time"
)

var (
	// ErrTokenInvalid токен не прошёл проверку подписи или имеет неверный формат
	ErrTokenInvalid = errors.New("token is invalid")
	// ErrTokenExpired подпись верна, но срок действия истёк
	ErrTokenExpired = errors.New("token is expired")
)

// Subject описывает данные, которые попадают в токен.
type Subject struct {
	UserUID string
	Email   string
	Plan    string
	Flow    string
}

// Maker описывает интерфейс для генерации и парсинга JWT токенов.
type Maker interface {
	// GenerateToken подписывает токен для subject со сроком жизни ttl
	GenerateToken(sub Subject, ttl time.Duration) (token string, expiresAt time.Time, err error)
	// ParseToken проверяет подпись и срок действия, возвращает *CustomClaims
	ParseToken(tokenStr string) (*CustomClaims, error)
}

// MakerImpl реализует интерфейс Maker с использованием секретного ключа.
type MakerImpl struct {
	secretKey []byte           // Секретный ключ для подписи токенов.
	now       func() time.Time // Часы, подменяются в тестах.
}

// NewJWTMaker создаёт новый экземпляр MakerImpl на основе секретного ключа.
func NewJWTMaker(secretKey string) *MakerImpl {
	return &MakerImpl{
		secretKey: []byte(secretKey),
		now:       time.Now,
	}
}

// WithClock возвращает копию MakerImpl с заданными часами.
func (j *MakerImpl) WithClock(now func() time.Time) *MakerImpl {
	return &MakerImpl{secretKey: j.secretKey, now: now}
}
