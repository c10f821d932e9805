// Package services реализует жизненный цикл сессии входа по magic-link.
//
// Состояния: CREATED (verified=false) -> VERIFIED (verified=true) -> CONSUMED
// (строка удалена). EXPIRED не хранится, а проверяется при каждом чтении.
// Каждый переход выполняется одним условным запросом к хранилищу, поэтому
// проигравший гонку получает ErrNotFound, а не частично применённое изменение.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/magabrotheeeer/ocr-gateway/internal/lib/secret"
	"github.com/magabrotheeeer/ocr-gateway/internal/lib/sl"
	"github.com/magabrotheeeer/ocr-gateway/internal/metrics"
	"github.com/magabrotheeeer/ocr-gateway/internal/models"
	"github.com/magabrotheeeer/ocr-gateway/internal/storage"
)

const (
	// DefaultTTL время жизни сессии
	DefaultTTL = 10 * time.Minute
	// DefaultStoreTimeout предел одного обращения к хранилищу
	DefaultStoreTimeout = 3 * time.Second
)

// ErrInvalidEmail адрес не прошёл синтаксическую проверку
var ErrInvalidEmail = errors.New("session: invalid email")

// VerifyOutcome результат подтверждения сессии.
type VerifyOutcome int

const (
	VerifyNotFound VerifyOutcome = iota
	VerifyExpired
	VerifyOK
)

func (o VerifyOutcome) String() string {
	switch o {
	case VerifyOK:
		return "ok"
	case VerifyExpired:
		return "expired"
	default:
		return "not_found"
	}
}

// PollStatus результат опроса сессии.
type PollStatus int

const (
	PollNotFoundOrExpired PollStatus = iota
	PollPending
	PollConsumed
)

func (s PollStatus) String() string {
	switch s {
	case PollPending:
		return "pending"
	case PollConsumed:
		return "consumed"
	default:
		return "not_found_or_expired"
	}
}

// PollResult результат опроса. User заполнен только для PollConsumed.
type PollResult struct {
	Status PollStatus
	User   *models.User
}

// Ticket данные новой сессии, из которых собирается ссылка для письма.
type Ticket struct {
	SessionID   string
	VerifyToken string
	ExpiresAt   time.Time
	User        *models.User
}

// SessionRepository описывает операции хранилища над сессиями.
type SessionRepository interface {
	// CreateSession сохраняет сессию в состоянии CREATED.
	CreateSession(ctx context.Context, session models.AuthSession) error
	// VerifySession переводит неистёкшую сессию с совпавшей парой в VERIFIED.
	VerifySession(ctx context.Context, sessionID, tokenHash string, now time.Time) (bool, error)
	// FindSession ищет сессию по паре без учёта срока.
	FindSession(ctx context.Context, sessionID, tokenHash string) (*models.AuthSession, error)
	// ConsumeSession удаляет подтверждённую неистёкшую сессию и возвращает владельца.
	ConsumeSession(ctx context.Context, sessionID string, now time.Time) (*models.User, error)
	// GetActiveSession возвращает неистёкшую сессию.
	GetActiveSession(ctx context.Context, sessionID string, now time.Time) (*models.AuthSession, error)
}

// UserResolver возвращает пользователя по email, создавая при первом обращении.
type UserResolver interface {
	Resolve(ctx context.Context, email string) (*models.User, error)
}

// TokenHasher хеширует токен подтверждения перед обращением к хранилищу.
type TokenHasher interface {
	Hash(value string) string
}

// Manager управляет сессиями magic-link.
type Manager struct {
	repo   SessionRepository
	users  UserResolver
	hasher TokenHasher
	ttl    time.Duration
	now    func() time.Time
	log    *slog.Logger

	storeTimeout time.Duration
}

// NewManager создаёт Manager. ttl <= 0 заменяется на DefaultTTL.
func NewManager(repo SessionRepository, users UserResolver, hasher TokenHasher, ttl time.Duration, log *slog.Logger) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		repo:   repo,
		users:  users,
		hasher: hasher,
		ttl:    ttl,
		now:    time.Now,
		log:    log,

		storeTimeout: DefaultStoreTimeout,
	}
}

// WithStoreTimeout задаёт предел одного обращения к хранилищу. d <= 0 игнорируется.
func (m *Manager) WithStoreTimeout(d time.Duration) *Manager {
	if d > 0 {
		m.storeTimeout = d
	}
	return m
}

// storeCtx ограничивает обращение к хранилищу. Истечение приходит как context.DeadlineExceeded.
func (m *Manager) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.storeTimeout)
}

// WithClock заменяет часы, используется в тестах.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// PostgreSQL хранит время с точностью до микросекунды.
func (m *Manager) clock() time.Time {
	return m.now().UTC().Truncate(time.Microsecond)
}

// StartLogin создаёт новую сессию для email.
//
// Каждый вызов создаёт независимую сессию, ранее выданные остаются действительными
// до собственного истечения. Токен подтверждения возвращается только здесь,
// в хранилище попадает его хеш.
func (m *Manager) StartLogin(ctx context.Context, email string) (*Ticket, error) {
	const op = "session.StartLogin"
	log := m.log.With(slog.String("op", op))

	email = strings.TrimSpace(email)
	if !models.ValidEmail(email) {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	user, err := m.users.Resolve(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	sessionID, err := secret.NewSessionID()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	token, err := secret.NewToken()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := m.clock()
	session := models.AuthSession{
		SessionID: sessionID,
		UserUID:   user.UUID,
		TokenHash: m.hasher.Hash(token),
		ExpiresAt: now.Add(m.ttl),
		CreatedAt: now,
	}
	createCtx, cancel := m.storeCtx(ctx)
	defer cancel()
	if err := m.repo.CreateSession(createCtx, session); err != nil {
		log.Error("failed to create session", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	metrics.LoginStarted.Inc()
	log.Info("login session created", sl.Email(email), slog.Time("expires_at", session.ExpiresAt))
	return &Ticket{
		SessionID:   sessionID,
		VerifyToken: token,
		ExpiresAt:   session.ExpiresAt,
		User:        user,
	}, nil
}

// Verify подтверждает сессию по паре идентификатор + токен.
//
// Повторное подтверждение неистёкшей сессии возвращает VerifyOK.
// Пара, не совпавшая целиком, всегда VerifyNotFound.
func (m *Manager) Verify(ctx context.Context, sessionID, verifyToken string) (VerifyOutcome, error) {
	const op = "session.Verify"

	outcome, err := m.verify(ctx, sessionID, verifyToken)
	if err != nil {
		return VerifyNotFound, fmt.Errorf("%s: %w", op, err)
	}
	metrics.SessionVerify.WithLabelValues(outcome.String()).Inc()
	return outcome, nil
}

func (m *Manager) verify(ctx context.Context, sessionID, verifyToken string) (VerifyOutcome, error) {
	if sessionID == "" || verifyToken == "" {
		return VerifyNotFound, nil
	}
	hash := m.hasher.Hash(verifyToken)
	now := m.clock()

	ok, err := m.verifySession(ctx, sessionID, hash, now)
	if err != nil {
		return VerifyNotFound, err
	}
	if ok {
		return VerifyOK, nil
	}

	// Переход не выполнен: пары нет, сессия уже потреблена или истекла.
	session, err := m.findSession(ctx, sessionID, hash)
	if errors.Is(err, storage.ErrNotFound) {
		return VerifyNotFound, nil
	}
	if err != nil {
		return VerifyNotFound, err
	}
	if session.Expired(now) {
		return VerifyExpired, nil
	}
	return VerifyNotFound, nil
}

// Poll опрашивает сессию и потребляет её, если она подтверждена.
//
// Удаление строки и чтение владельца выполняются одним запросом: из параллельных
// опросов PollConsumed получит ровно один. Если сессия подтверждается между
// удалением и чтением, опрос возвращает PollPending, а следующий её потребит.
func (m *Manager) Poll(ctx context.Context, sessionID string) (PollResult, error) {
	const op = "session.Poll"

	result, err := m.poll(ctx, sessionID)
	if err != nil {
		return PollResult{Status: PollNotFoundOrExpired}, fmt.Errorf("%s: %w", op, err)
	}
	metrics.SessionPoll.WithLabelValues(result.Status.String()).Inc()
	if result.Status == PollConsumed {
		m.log.Info("login session consumed", slog.String("op", op), slog.String("user_uid", result.User.UUID))
	}
	return result, nil
}

func (m *Manager) poll(ctx context.Context, sessionID string) (PollResult, error) {
	if sessionID == "" {
		return PollResult{Status: PollNotFoundOrExpired}, nil
	}
	now := m.clock()

	user, err := m.consumeSession(ctx, sessionID, now)
	if err == nil {
		return PollResult{Status: PollConsumed, User: user}, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return PollResult{}, err
	}

	_, err = m.getActiveSession(ctx, sessionID, now)
	if errors.Is(err, storage.ErrNotFound) {
		return PollResult{Status: PollNotFoundOrExpired}, nil
	}
	if err != nil {
		return PollResult{}, err
	}
	return PollResult{Status: PollPending}, nil
}

func (m *Manager) verifySession(ctx context.Context, sessionID, hash string, now time.Time) (bool, error) {
	ctx, cancel := m.storeCtx(ctx)
	defer cancel()
	return m.repo.VerifySession(ctx, sessionID, hash, now)
}

func (m *Manager) findSession(ctx context.Context, sessionID, hash string) (*models.AuthSession, error) {
	ctx, cancel := m.storeCtx(ctx)
	defer cancel()
	return m.repo.FindSession(ctx, sessionID, hash)
}

func (m *Manager) consumeSession(ctx context.Context, sessionID string, now time.Time) (*models.User, error) {
	ctx, cancel := m.storeCtx(ctx)
	defer cancel()
	return m.repo.ConsumeSession(ctx, sessionID, now)
}

func (m *Manager) getActiveSession(ctx context.Context, sessionID string, now time.Time) (*models.AuthSession, error) {
	ctx, cancel := m.storeCtx(ctx)
	defer cancel()
	return m.repo.GetActiveSession(ctx, sessionID, now)
}
