// Package services выпускает и проверяет учётные данные доступа.
//
// Оба способа входа (magic-link и внешний провайдер) получают один и тот же
// тип токена с одним ключом подписи, отличается только срок действия.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/ocr-gateway/internal/lib/jwt"
	"github.com/magabrotheeeer/ocr-gateway/internal/metrics"
	"github.com/magabrotheeeer/ocr-gateway/internal/models"
	identity "github.com/magabrotheeeer/ocr-gateway/internal/services/identity"
)

var (
	// ErrInvalid подпись или формат токена неверны
	ErrInvalid = errors.New("credential: invalid")
	// ErrExpired токен подписан верно, но истёк
	ErrExpired = errors.New("credential: expired")
)

// Flow способ входа, которым получен токен.
type Flow string

const (
	FlowPrimary   Flow = "primary"
	FlowMagicLink Flow = "magic_link"
)

const (
	DefaultPrimaryTTL   = 30 * 24 * time.Hour
	DefaultMagicLinkTTL = 7 * 24 * time.Hour
)

// Claims проверенные данные токена.
type Claims struct {
	UserUID   string
	Email     string
	Plan      models.Plan
	Flow      Flow
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Credential выпущенный токен.
type Credential struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// UserGetter перечитывает пользователя при обновлении токена.
type UserGetter interface {
	Get(ctx context.Context, userUID string) (*models.User, error)
}

// Issuer выпускает, проверяет и обновляет токены.
type Issuer struct {
	maker      jwt.Maker
	users      UserGetter
	primaryTTL time.Duration
	magicTTL   time.Duration
}

// NewIssuer создаёт Issuer. Нулевые сроки заменяются значениями по умолчанию.
func NewIssuer(maker jwt.Maker, users UserGetter, primaryTTL, magicTTL time.Duration) *Issuer {
	if primaryTTL <= 0 {
		primaryTTL = DefaultPrimaryTTL
	}
	if magicTTL <= 0 {
		magicTTL = DefaultMagicLinkTTL
	}
	return &Issuer{
		maker:      maker,
		users:      users,
		primaryTTL: primaryTTL,
		magicTTL:   magicTTL,
	}
}

// TTL возвращает срок действия для способа входа.
func (i *Issuer) TTL(flow Flow) time.Duration {
	if flow == FlowMagicLink {
		return i.magicTTL
	}
	return i.primaryTTL
}

// Issue выпускает токен для пользователя.
func (i *Issuer) Issue(user *models.User, flow Flow) (Credential, error) {
	const op = "credential.Issue"

	if user == nil || user.UUID == "" {
		return Credential{}, fmt.Errorf("%s: empty user", op)
	}
	if flow != FlowMagicLink {
		flow = FlowPrimary
	}
	token, expiresAt, err := i.maker.GenerateToken(jwt.Subject{
		UserUID: user.UUID,
		Email:   user.Email,
		Plan:    string(user.Plan),
		Flow:    string(flow),
	}, i.TTL(flow))
	if err != nil {
		return Credential{}, fmt.Errorf("%s: %w", op, err)
	}
	metrics.CredentialsIssued.WithLabelValues(string(flow)).Inc()
	return Credential{Token: token, ExpiresAt: expiresAt}, nil
}

// Validate проверяет подпись, затем срок действия, и только после этого возвращает claims.
func (i *Issuer) Validate(token string) (*Claims, error) {
	const op = "credential.Validate"

	if token == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalid)
	}
	c, err := i.maker.ParseToken(token)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, fmt.Errorf("%s: %w", op, ErrExpired)
	case err != nil:
		return nil, fmt.Errorf("%s: %w", op, ErrInvalid)
	}

	claims := &Claims{
		UserUID: c.Subject,
		Email:   c.Email,
		Plan:    models.Plan(c.Plan),
		Flow:    Flow(c.Flow),
	}
	if c.IssuedAt != nil {
		claims.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		claims.ExpiresAt = c.ExpiresAt.Time
	}
	return claims, nil
}

// Refresh выпускает новый токен по действующему, перечитав пользователя,
// чтобы смена тарифа попала в токен. Срок как у основного входа.
// Удалённый пользователь делает токен недействительным, ошибки хранилища
// возвращаются без ErrInvalid.
func (i *Issuer) Refresh(ctx context.Context, token string) (Credential, error) {
	const op = "credential.Refresh"

	claims, err := i.Validate(token)
	if err != nil {
		return Credential{}, fmt.Errorf("%s: %w", op, err)
	}
	user, err := i.users.Get(ctx, claims.UserUID)
	if errors.Is(err, identity.ErrUserNotFound) {
		return Credential{}, fmt.Errorf("%s: %w: %w", op, ErrInvalid, err)
	}
	if err != nil {
		return Credential{}, fmt.Errorf("%s: %w", op, err)
	}
	return i.Issue(user, FlowPrimary)
}
