package models

import "time"

// MagicLinkMessage сообщение в очередь на отправку письма со ссылкой входа.
type MagicLinkMessage struct {
	Email     string    `json:"email"`
	Link      string    `json:"link"`
	ExpiresAt time.Time `json:"expires_at"`
}
