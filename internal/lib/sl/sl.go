// Package sl содержит вспомогательные функции для работы с логгером slog.
package sl

import (
	"io"
	"log/slog"
)

// EnvProd окружение, в котором логи пишутся в JSON.
const EnvProd = "prod"

// New создает логгер для окружения env: JSON с уровнем info в prod, текст с уровнем debug иначе.
func New(env string, w io.Writer) *slog.Logger {
	if env == EnvProd {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// Err возвращает slog.Attr с ключом "error" и текстом ошибки.
//
//	log.Error("failed to reserve quota", sl.Err(err))
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.String("error", err.Error())
}

// Email маскирует локальную часть адреса, чтобы не писать почту в логи целиком.
func Email(email string) slog.Attr {
	at := -1
	for i := len(email) - 1; i >= 0; i-- {
		if email[i] == '@' {
			at = i
			break
		}
	}
	if at <= 0 {
		return slog.String("email", "***")
	}
	return slog.String("email", email[:1]+"***"+email[at:])
}
