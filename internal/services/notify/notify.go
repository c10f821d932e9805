// Package services доставляет ссылку входа пользователю: публикует сообщение
// в очередь почтового воркера или, без брокера, только пишет факт выдачи в лог.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/magabrotheeeer/ocr-gateway/internal/lib/sl"
	"github.com/magabrotheeeer/ocr-gateway/internal/models"
	"github.com/magabrotheeeer/ocr-gateway/internal/rabbitmq"
)

// VerifyPath путь страницы подтверждения
const VerifyPath = "/api/v1/auth/verify"

// Publisher публикует сообщение с ключом маршрутизации.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, message any) error
}

// NotifyService отправляет magic-link.
type NotifyService struct {
	publisher Publisher
	baseURL   string
	log       *slog.Logger
}

// NewNotifyService создаёт NotifyService. publisher может быть nil.
func NewNotifyService(publisher Publisher, baseURL string, log *slog.Logger) *NotifyService {
	return &NotifyService{
		publisher: publisher,
		baseURL:   strings.TrimRight(baseURL, "/"),
		log:       log,
	}
}

// BuildLink собирает ссылку подтверждения из идентификатора сессии и токена.
func (s *NotifyService) BuildLink(sessionID, verifyToken string) string {
	q := url.Values{}
	q.Set("session", sessionID)
	q.Set("token", verifyToken)
	return s.baseURL + VerifyPath + "?" + q.Encode()
}

// SendMagicLink ставит письмо со ссылкой в очередь.
func (s *NotifyService) SendMagicLink(ctx context.Context, email, sessionID, verifyToken string, expiresAt time.Time) error {
	const op = "notify.SendMagicLink"
	log := s.log.With(slog.String("op", op), sl.Email(email))

	if s.publisher == nil {
		log.Info("magic link issued, delivery is not configured", slog.Time("expires_at", expiresAt))
		return nil
	}

	msg := models.MagicLinkMessage{
		Email:     email,
		Link:      s.BuildLink(sessionID, verifyToken),
		ExpiresAt: expiresAt,
	}
	if err := s.publisher.Publish(ctx, rabbitmq.MagicLinkRoutingKey, msg); err != nil {
		log.Error("failed to publish magic link", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	log.Info("magic link queued")
	return nil
}
