// Package extractor клиент внешнего сервиса распознавания текста на изображении.
package extractor

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrProvider сервис вернул ошибку или пустой результат
	ErrProvider = errors.New("extractor: provider failed")
	// ErrTimeout сервис не ответил за отведённое время
	ErrTimeout = errors.New("extractor: provider timeout")
)

const annotatePath = "/v1/images:annotate"

// Client клиент API images:annotate.
type Client struct {
	apiURL     string
	apiKey     string
	httpClient *http.Client
}

// NewClient создаёт клиента с общим таймаутом на запрос.
func NewClient(apiURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		apiURL:     strings.TrimRight(apiURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Extract отправляет изображение на распознавание и возвращает найденный текст.
func (c *Client) Extract(ctx context.Context, image []byte, mimeType string) (string, error) {
	const op = "extractor.Extract"

	body := annotateRequest{Requests: []imageRequest{{
		Image:    imageContent{Content: base64.StdEncoding.EncodeToString(image)},
		Features: []feature{{Type: "TEXT_DETECTION"}},
	}}}
	req, err := c.newRequest(ctx, body)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if mimeType != "" {
		req.Header.Set("X-Image-Type", mimeType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return "", fmt.Errorf("%s: %w", op, ErrTimeout)
		}
		return "", fmt.Errorf("%s: %w: %w", op, ErrProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s: %w: unexpected status %s", op, ErrProvider, resp.Status)
	}

	var annotated annotateResponse
	if err := json.NewDecoder(resp.Body).Decode(&annotated); err != nil {
		if isTimeout(err) {
			return "", fmt.Errorf("%s: %w", op, ErrTimeout)
		}
		return "", fmt.Errorf("%s: %w: %w", op, ErrProvider, err)
	}
	if len(annotated.Responses) == 0 {
		return "", fmt.Errorf("%s: %w: empty response", op, ErrProvider)
	}
	first := annotated.Responses[0]
	if first.Error != nil {
		return "", fmt.Errorf("%s: %w: %d %s", op, ErrProvider, first.Error.Code, first.Error.Message)
	}
	text := first.text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%s: %w: no text found", op, ErrProvider)
	}
	return text, nil
}

func (c *Client) newRequest(ctx context.Context, body any) (*http.Request, error) {
	u, err := url.Parse(c.apiURL + annotatePath)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("key", c.apiKey)
	u.RawQuery = q.Encode()

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
