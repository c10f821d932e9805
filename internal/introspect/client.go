// Package introspect проверяет access-токены внешнего провайдера идентификации
// через endpoint tokeninfo Google OAuth2 API.
package introspect

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/api/googleapi"
	oauth2v2 "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

// ErrInvalidToken токен отклонён провайдером или не содержит подтверждённого email
var ErrInvalidToken = errors.New("introspect: invalid provider token")

// Client клиент проверки токенов.
type Client struct {
	svc     *oauth2v2.Service
	timeout time.Duration
}

// NewClient создаёт клиента. endpoint задаёт базовый адрес API, пустая строка
// означает адрес по умолчанию.
func NewClient(ctx context.Context, endpoint string, timeout time.Duration) (*Client, error) {
	const op = "introspect.NewClient"

	opts := []option.ClientOption{
		option.WithHTTPClient(&http.Client{Timeout: timeout}),
	}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	svc, err := oauth2v2.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Client{svc: svc, timeout: timeout}, nil
}

// Introspect возвращает подтверждённый email владельца токена.
func (c *Client) Introspect(ctx context.Context, token string) (string, error) {
	const op = "introspect.Introspect"

	if token == "" {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	info, err := c.svc.Tokeninfo().AccessToken(token).Context(ctx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code >= 400 && apiErr.Code < 500 {
			return "", fmt.Errorf("%s: %w: %d", op, ErrInvalidToken, apiErr.Code)
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if info.Email == "" || !info.VerifiedEmail {
		return "", fmt.Errorf("%s: %w: email not verified", op, ErrInvalidToken)
	}
	return info.Email, nil
}
