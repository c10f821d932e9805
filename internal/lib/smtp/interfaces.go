// Package smtp предоставляет SMTP транспорт для отправки писем и его интерфейсы.
package smtp

import (
	"errors"
	"io"
)

// ErrNoStartTLS сервер не поддерживает STARTTLS
var ErrNoStartTLS = errors.New("smtp: STARTTLS not supported")

// Client интерфейс для SMTP клиента.
type Client interface {
	Mail(from string) error
	Rcpt(to string) error
	Data() (io.WriteCloser, error)
	Quit() error
	Close() error
}

// TransportInterface интерфейс для SMTP транспорта.
type TransportInterface interface {
	Connect() (Client, error)
	GetSMTPUser() string
	Enabled() bool
}
