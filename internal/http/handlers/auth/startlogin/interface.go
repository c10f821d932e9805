package startlogin

import (
	"context"
	"time"

	session "github.com/magabrotheeeer/ocr-gateway/internal/services/session"
)

// Sessions создаёт сессии входа.
type Sessions interface {
	StartLogin(ctx context.Context, email string) (*session.Ticket, error)
}

// Notifier доставляет ссылку пользователю.
type Notifier interface {
	SendMagicLink(ctx context.Context, email, sessionID, verifyToken string, expiresAt time.Time) error
}

// Throttle ограничивает частоту запросов ссылок на один адрес.
type Throttle interface {
	Allow(ctx context.Context, key string) bool
}
