// Package models содержит доменные модели сервиса: пользователя с тарифом,
// сессию входа по magic-link, счётчик квоты и служебные сообщения.
package models

import (
	"strings"
	"time"
)

// Plan тариф пользователя, определяет дневной лимит распознаваний.
type Plan string

const (
	PlanFree       Plan = "free"
	PlanPro        Plan = "pro"
	PlanProPlus    Plan = "pro-plus"
	PlanEnterprise Plan = "enterprise"
)

// Valid сообщает, является ли значение известным тарифом.
func (p Plan) Valid() bool {
	switch p {
	case PlanFree, PlanPro, PlanProPlus, PlanEnterprise:
		return true
	}
	return false
}

// User представляет пользователя сервиса. Создаётся при первом входе по email.
type User struct {
	UUID        string    `json:"uid"`                    // Уникальный идентификатор пользователя
	Email       string    `json:"email"`                  // Электронная почта, уникальна, регистр сохраняется
	Plan        Plan      `json:"plan"`                   // Текущий тариф
	DisplayName string    `json:"display_name,omitempty"` // Отображаемое имя
	CreatedAt   time.Time `json:"created_at"`             // Дата создания записи
}

// ValidEmail проверяет адрес синтаксически: "@" с непустыми частями по обе стороны.
func ValidEmail(email string) bool {
	at := strings.LastIndex(email, "@")
	return at > 0 && at < len(email)-1
}
