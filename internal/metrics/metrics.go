// Package metrics объявляет счётчики Prometheus сервиса. Регистрация
// выполняется в реестре по умолчанию, который отдаёт /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LoginStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ocr_login_started_total",
		Help: "Number of magic-link sessions created",
	})

	SessionVerify = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ocr_session_verify_total",
		Help: "Magic-link verification attempts by outcome",
	}, []string{"outcome"})

	SessionPoll = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ocr_session_poll_total",
		Help: "Session poll requests by outcome",
	}, []string{"outcome"})

	QuotaReservations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ocr_quota_reservations_total",
		Help: "Quota reservation decisions",
	}, []string{"decision"})

	Extractions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ocr_extractions_total",
		Help: "Metered extraction requests by final status",
	}, []string{"status"})

	CredentialsIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ocr_credentials_issued_total",
		Help: "Issued credentials by login flow",
	}, []string{"flow"})
)
