// Package secret генерирует непредсказуемые идентификаторы для magic-link
// и хеширует секреты перед сохранением в базу.
//
// NewSessionID и NewToken используют криптографически стойкий генератор.
// Hasher считает ключевой BLAKE2b-хеш, поэтому утечка таблицы сессий
// без ключа (pepper) не позволяет подобрать токен подтверждения.
package secret

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// tokenBytes длина токена подтверждения в байтах
const tokenBytes = 32

// ErrEmptyKey возвращается при создании Hasher без ключа
var ErrEmptyKey = errors.New("secret: empty hash key")

// NewSessionID возвращает случайный идентификатор сессии (UUID v4).
func NewSessionID() (string, error) {
	const op = "secret.NewSessionID"
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return id.String(), nil
}

// NewToken возвращает 256-битный случайный токен в base64url без паддинга.
func NewToken() (string, error) {
	const op = "secret.NewToken"
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Hasher считает ключевой хеш токенов.
type Hasher struct {
	key []byte
}

// NewHasher создаёт Hasher. Ключ длиннее 64 байт сжимается BLAKE2b до 32 байт.
func NewHasher(pepper string) (*Hasher, error) {
	if pepper == "" {
		return nil, ErrEmptyKey
	}
	key := []byte(pepper)
	if len(key) > blake2b.Size {
		sum := blake2b.Sum256(key)
		key = sum[:]
	}
	return &Hasher{key: key}, nil
}

// Hash возвращает hex-представление ключевого BLAKE2b-256 хеша значения.
func (h *Hasher) Hash(value string) string {
	mac, err := blake2b.New256(h.key)
	if err != nil {
		// длина ключа проверена в NewHasher
		panic(err)
	}
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))
}

// Equal сравнивает значение с сохранённым хешем за постоянное время.
func (h *Hasher) Equal(value, hash string) bool {
	return subtle.ConstantTimeCompare([]byte(h.Hash(value)), []byte(hash)) == 1
}
