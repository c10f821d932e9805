package models

import "time"

// ErrorReport отчёт об ошибке, присланный расширением браузера.
type ErrorReport struct {
	ID        int64     `json:"id"`
	UserUID   string    `json:"user_uid,omitempty"`
	Source    string    `json:"source"`
	Message   string    `json:"message"`
	Stack     string    `json:"stack,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
