// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ignite/mailguard/internal/domain"
)

var (
	Verdicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailguard_validation_verdicts_total",
			Help: "Verdicts written to the validation store, by status.",
		},
		[]string{
			"status", // valid, invalid, blocked
		},
	)
	Intercepted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailguard_send_intercepted_total",
			Help: "Recipients seen by the send interceptor. Result values: allowed, blocked, error.",
		},
		[]string{
			"result",
		},
	)
	SendOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailguard_send_outcome_total",
			Help: "Synchronous transport outcomes recorded after send, by status code.",
		},
		[]string{
			"code",
		},
	)
	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailguard_webhook_events_total",
			Help: "Provider webhook events by event kind and result (valid, invalid, skipped).",
		},
		[]string{
			"event",
			"result",
		},
	)
	WebhookBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mailguard_webhook_batch_duration_seconds",
			Help:    "Time spent reconciling one webhook batch.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 25},
		},
	)
	ProviderChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailguard_provider_checks_total",
			Help: "Provider validation API calls. Result values: valid, rejected, upstream_error.",
		},
		[]string{
			"result",
		},
	)
	MailLogsPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailguard_mail_logs_purged_total",
			Help: "Mail log rows removed by the retention worker.",
		},
	)
)

// VerdictRecorder counts every store write. It satisfies
// validation.StatusListener.
type VerdictRecorder struct{}

// StatusChanged increments the verdict counter for v's status.
func (VerdictRecorder) StatusChanged(_ context.Context, v *domain.Validation) {
	Verdicts.WithLabelValues(string(v.Status)).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
