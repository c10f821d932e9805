package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// issuer значение iss во всех выпускаемых токенах
const issuer = "ocr-gateway"

// CustomClaims описывает пользовательские данные, хранящиеся в JWT.
// Subject (sub) содержит UID пользователя.
type CustomClaims struct {
	Email                string `json:"email"` // Электронная почта на момент выпуска
	Plan                 string `json:"plan"`  // Тариф на момент выпуска
	Flow                 string `json:"flow"`  // Способ входа: primary или magic_link
	jwt.RegisteredClaims        // Встроенные стандартные claims JWT (sub, exp, iat и пр.)
}

// GenerateToken создает JWT токен для subject, подписывая его секретным ключом.
func (j *MakerImpl) GenerateToken(sub Subject, ttl time.Duration) (string, time.Time, error) {
	const op = "jwt.GenerateToken"
	if sub.UserUID == "" {
		return "", time.Time{}, fmt.Errorf("%s: empty subject", op)
	}
	issuedAt := j.now()
	expiresAt := issuedAt.Add(ttl)
	claims := CustomClaims{
		Email: sub.Email,
		Plan:  sub.Plan,
		Flow:  sub.Flow,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			Subject:   sub.UserUID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(j.secretKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%s: %w", op, err)
	}
	return signed, claims.ExpiresAt.Time, nil
}

// ParseToken проверяет подпись токена и только после этого его claims.
//
// Ошибка подписи или формата всегда ErrTokenInvalid, даже если срок тоже истёк.
// ErrTokenExpired возвращается только для корректно подписанного токена.
func (j *MakerImpl) ParseToken(tokenStr string) (*CustomClaims, error) {
	const op = "jwt.ParseToken"
	token, err := jwt.ParseWithClaims(tokenStr, &CustomClaims{}, func(_ *jwt.Token) (any, error) {
		return j.secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) && !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return nil, fmt.Errorf("%s: %w", op, ErrTokenExpired)
		}
		return nil, fmt.Errorf("%s: %w: %v", op, ErrTokenInvalid, err)
	}
	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrTokenInvalid)
	}
	return claims, nil
}
