// Package services отправляет письма со ссылкой входа из очереди magic-link.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/magabrotheeeer/ocr-gateway/internal/lib/sl"
	"github.com/magabrotheeeer/ocr-gateway/internal/lib/smtp"
	"github.com/magabrotheeeer/ocr-gateway/internal/models"
)

// ErrBadMessage сообщение нельзя обработать, повторная доставка бессмысленна
var ErrBadMessage = errors.New("sender: bad message")

// SenderService отправляет письма.
type SenderService struct {
	transport smtp.TransportInterface
	now       func() time.Time
	log       *slog.Logger
}

// NewSenderService создает новый экземпляр SenderService.
func NewSenderService(transport smtp.TransportInterface, log *slog.Logger) *SenderService {
	return &SenderService{
		transport: transport,
		now:       time.Now,
		log:       log,
	}
}

// Redeliver сообщает, стоит ли вернуть сообщение в очередь после ошибки.
func Redeliver(err error) bool {
	return !errors.Is(err, ErrBadMessage)
}

// SendMagicLink обрабатывает сообщение очереди magic-link.
// Истёкшие ссылки не отправляются.
func (s *SenderService) SendMagicLink(_ context.Context, body []byte) error {
	const op = "sender.SendMagicLink"
	log := s.log.With(slog.String("op", op))

	var message models.MagicLinkMessage
	if err := json.Unmarshal(body, &message); err != nil {
		log.Error("failed to unmarshal message body", sl.Err(err))
		return fmt.Errorf("%s: %w: %w", op, ErrBadMessage, err)
	}
	if message.Email == "" || message.Link == "" {
		return fmt.Errorf("%s: %w: empty email or link", op, ErrBadMessage)
	}
	log = log.With(sl.Email(message.Email))

	if !message.ExpiresAt.IsZero() && message.ExpiresAt.Before(s.now()) {
		log.Info("magic link already expired, skipping")
		return nil
	}
	if !s.transport.Enabled() {
		log.Info("smtp is not configured, magic link delivery skipped")
		return nil
	}

	subject := "Вход в OCR Gateway"
	bodyText := fmt.Sprintf("Здравствуйте!\n\nЧтобы войти в расширение, откройте ссылку:\n%s\n\n"+
		"Ссылка действует до %s (UTC) и может быть использована один раз.\n"+
		"Если вы не запрашивали вход, просто проигнорируйте это письмо.",
		message.Link, message.ExpiresAt.UTC().Format("02.01.2006 15:04"))

	if err := s.sendEmail([]string{message.Email}, subject, bodyText); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *SenderService) sendEmail(to []string, subject, bodyText string) error {
	msg := strings.Join([]string{
		"From: " + s.transport.GetSMTPUser(),
		"To: " + strings.Join(to, ";"),
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"",
		bodyText,
	}, "\r\n")

	client, err := s.transport.Connect()
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Mail(s.transport.GetSMTPUser()); err != nil {
		s.log.Error("failed to set MAIL FROM", sl.Err(err))
		return err
	}
	for _, addr := range to {
		if err := client.Rcpt(addr); err != nil {
			s.log.Error("failed to set RCPT TO", sl.Err(err))
			return err
		}
	}

	wc, err := client.Data()
	if err != nil {
		s.log.Error("failed to get Data writer", sl.Err(err))
		return err
	}
	if _, err = wc.Write([]byte(msg)); err != nil {
		s.log.Error("failed to write email body", sl.Err(err))
		return err
	}
	if err = wc.Close(); err != nil {
		s.log.Error("failed to close Data writer", sl.Err(err))
		return err
	}
	if err = client.Quit(); err != nil {
		s.log.Error("failed to quit SMTP client", sl.Err(err))
		return err
	}

	s.log.Info("email sent successfully", slog.Int("recipients", len(to)))
	return nil
}
