// Package services содержит доступ к учётным записям пользователей:
// получение или создание по email, смену тарифа и вход через внешнего провайдера.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/ocr-gateway/internal/lib/sl"
	"github.com/magabrotheeeer/ocr-gateway/internal/models"
	"github.com/magabrotheeeer/ocr-gateway/internal/storage"
)

var (
	// ErrInvalidEmail адрес не содержит "@"
	ErrInvalidEmail = errors.New("identity: invalid email")
	// ErrInvalidPlan неизвестный тариф
	ErrInvalidPlan = errors.New("identity: invalid plan")
	// ErrUserNotFound пользователь не найден
	ErrUserNotFound = errors.New("identity: user not found")
	// ErrEmailMismatch email провайдера не совпадает с заявленным клиентом
	ErrEmailMismatch = errors.New("identity: provider email mismatch")
)

// DefaultStoreTimeout предел одного обращения к хранилищу
const DefaultStoreTimeout = 3 * time.Second

// UserRepository описывает контракт хранилища пользователей.
type UserRepository interface {
	// GetOrCreateUser атомарно возвращает существующего или создаёт нового пользователя.
	GetOrCreateUser(ctx context.Context, uid, email string, plan models.Plan) (*models.User, error)
	// GetUser возвращает пользователя по UID.
	GetUser(ctx context.Context, userUID string) (*models.User, error)
	// UpdateUserPlan меняет тариф.
	UpdateUserPlan(ctx context.Context, userUID string, plan models.Plan) error
}

// Introspector проверяет токен внешнего провайдера и возвращает email владельца.
type Introspector interface {
	Introspect(ctx context.Context, token string) (string, error)
}

// IdentityService работа с пользователями.
type IdentityService struct {
	users        UserRepository
	introspector Introspector
	log          *slog.Logger
	storeTimeout time.Duration
}

// NewIdentityService создает новый экземпляр IdentityService.
// introspector может быть nil, тогда вход через провайдера недоступен.
func NewIdentityService(users UserRepository, introspector Introspector, log *slog.Logger) *IdentityService {
	return &IdentityService{
		users:        users,
		introspector: introspector,
		log:          log,
		storeTimeout: DefaultStoreTimeout,
	}
}

// WithStoreTimeout задаёт предел одного обращения к хранилищу. d <= 0 игнорируется.
func (s *IdentityService) WithStoreTimeout(d time.Duration) *IdentityService {
	if d > 0 {
		s.storeTimeout = d
	}
	return s
}

// Resolve возвращает пользователя по email, создавая его с тарифом free при первом обращении.
func (s *IdentityService) Resolve(ctx context.Context, email string) (*models.User, error) {
	const op = "identity.Resolve"

	email = strings.TrimSpace(email)
	if !models.ValidEmail(email) {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	user, err := s.users.GetOrCreateUser(storeCtx, uuid.NewString(), email, models.PlanFree)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}

// Get возвращает пользователя по UID.
func (s *IdentityService) Get(ctx context.Context, userUID string) (*models.User, error) {
	const op = "identity.Get"

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	user, err := s.users.GetUser(storeCtx, userUID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}

// SetPlan меняет тариф пользователя.
func (s *IdentityService) SetPlan(ctx context.Context, userUID string, plan models.Plan) error {
	const op = "identity.SetPlan"

	if !plan.Valid() {
		return fmt.Errorf("%s: %w: %q", op, ErrInvalidPlan, plan)
	}
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	err := s.users.UpdateUserPlan(storeCtx, userUID, plan)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// FederatedLogin проверяет токен провайдера и сверяет его email с заявленным клиентом.
// Пользователь создаётся при первом входе так же, как при входе по ссылке.
func (s *IdentityService) FederatedLogin(ctx context.Context, providerToken, claimedEmail string) (*models.User, error) {
	const op = "identity.FederatedLogin"
	log := s.log.With(slog.String("op", op))

	if s.introspector == nil {
		return nil, fmt.Errorf("%s: federated login is not configured", op)
	}
	email, err := s.introspector.Introspect(ctx, providerToken)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if email == "" || email != strings.TrimSpace(claimedEmail) {
		log.Warn("provider email does not match claimed email", sl.Email(claimedEmail))
		return nil, fmt.Errorf("%s: %w", op, ErrEmailMismatch)
	}
	return s.Resolve(ctx, email)
}
