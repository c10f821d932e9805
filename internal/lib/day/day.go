// Package day вычисляет календарный день учёта квоты в фиксированной временной зоне.
package day

import (
	"time"
)

// Layout формат ключа дня, совпадает с представлением DATE в PostgreSQL
const Layout = "2006-01-02"

// Key возвращает ключ календарного дня для момента t в зоне loc.
//
// Один и тот же момент времени всегда попадает в один день независимо от зоны сервера.
func Key(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(Layout)
}

// NextReset возвращает момент начала следующего дня в зоне loc, когда счётчик обнуляется
func NextReset(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)
}
