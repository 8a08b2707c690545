package webhook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ignite/mailguard/internal/domain"
	"github.com/ignite/mailguard/internal/metrics"
	"github.com/ignite/mailguard/internal/pkg/logger"
	"github.com/ignite/mailguard/internal/service/maillog"
	"github.com/ignite/mailguard/internal/service/validation"
)

// Defaults keep a full batch inside the provider's 30s delivery timeout.
const (
	DefaultEventTimeout = 2 * time.Second
	DefaultBatchTimeout = 25 * time.Second
)

// Notifier receives a StatusChange for every event applied to the store.
type Notifier interface {
	Notify(ctx context.Context, c domain.StatusChange) error
}

// Summary is the per-batch tally returned to the provider.
type Summary struct {
	Valid            int   `json:"valid_emails"`
	Invalid          int   `json:"invalid_emails"`
	Skipped          int   `json:"skipped"`
	TotalProcessed   int   `json:"total_processed"`
	TotalEvents      int   `json:"total_events"`
	ProcessingTimeMs int64 `json:"processing_time_ms"`
}

// Reconciler is the WebhookReconciler. It holds no state between batches.
type Reconciler struct {
	store        *validation.Store
	logs         *maillog.Service
	notifier     Notifier
	eventTimeout time.Duration
	batchTimeout time.Duration
	now          func() time.Time
}

// Option customizes a Reconciler.
type Option func(*Reconciler)

// WithTimeouts overrides the per-event and whole-batch deadlines.
func WithTimeouts(event, batch time.Duration) Option {
	return func(r *Reconciler) {
		if event > 0 {
			r.eventTimeout = event
		}
		if batch > 0 {
			r.batchTimeout = batch
		}
	}
}

// WithNotifier publishes every applied event to n.
func WithNotifier(n Notifier) Option {
	return func(r *Reconciler) { r.notifier = n }
}

// NewReconciler creates a reconciler writing to store and logs.
func NewReconciler(store *validation.Store, logs *maillog.Service, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:        store,
		logs:         logs,
		eventTimeout: DefaultEventTimeout,
		batchTimeout: DefaultBatchTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle applies a batch. Events missing an email or event type, repeats
// of an email already seen in this batch, unknown event kinds and events
// that fail are counted as skipped. Events left when the batch deadline
// passes are skipped too.
func (r *Reconciler) Handle(ctx context.Context, events []domain.WebhookEvent) Summary {
	start := r.now()
	sum := Summary{TotalEvents: len(events)}

	ctx, cancel := context.WithTimeout(ctx, r.batchTimeout)
	defer cancel()

	seen := make(map[string]bool, len(events))
	for idx, e := range events {
		if ctx.Err() != nil {
			remaining := len(events) - idx
			sum.Skipped += remaining
			logger.Warn("webhook batch deadline reached", "skipped", remaining)
			break
		}

		email := domain.NormalizeEmail(e.Email)
		if email == "" || strings.TrimSpace(string(e.Event)) == "" {
			sum.Skipped++
			metrics.WebhookEvents.WithLabelValues(string(e.Event), "skipped").Inc()
			continue
		}
		if seen[email] {
			sum.Skipped++
			metrics.WebhookEvents.WithLabelValues(string(e.Event), "skipped").Inc()
			continue
		}
		seen[email] = true
		e.Email = email

		status, err := r.applyEvent(ctx, e)
		switch {
		case err != nil:
			logger.Error("webhook event failed", "email", email, "event", e.Event, "message_id", e.MessageID, "error", err)
			sum.Skipped++
			status = "skipped"
		case status == domain.StatusValid:
			sum.Valid++
		case status == domain.StatusInvalid:
			sum.Invalid++
		default:
			logger.Info("webhook event ignored", "email", email, "event", e.Event)
			sum.Skipped++
			status = "skipped"
		}
		metrics.WebhookEvents.WithLabelValues(string(e.Event), string(status)).Inc()
	}

	sum.TotalProcessed = len(seen)
	elapsed := r.now().Sub(start)
	sum.ProcessingTimeMs = elapsed.Milliseconds()
	metrics.WebhookBatchDuration.Observe(elapsed.Seconds())
	return sum
}

// applyEvent runs one event under its own deadline. It returns the status
// written to the store, or "" when the event kind is not handled.
func (r *Reconciler) applyEvent(parent context.Context, e domain.WebhookEvent) (status domain.ValidationStatus, err error) {
	defer func() {
		if p := recover(); p != nil {
			status = ""
			err = fmt.Errorf("panic processing event: %v", p)
		}
	}()

	outcome, ok := e.Event.Outcome()
	if !ok {
		return "", nil
	}

	ctx, cancel := context.WithTimeout(parent, r.eventTimeout)
	defer cancel()

	code := e.CodeFor(outcome)
	reason := e.ReasonFor(outcome)

	// the two writes are independent: a failed verdict still updates the log
	_, markErr := r.store.Mark(ctx, e.Email, outcome.Status, reason, code)

	var logErr error
	if e.MessageID != "" {
		logErr = r.logs.RecordOutcome(ctx, e.MessageID, e.Email, code)
		if logErr != nil {
			logger.Error("webhook mail log update failed", "message_id", e.MessageID, "error", logErr)
		}
	}

	if markErr != nil {
		return "", errors.Join(markErr, logErr)
	}

	if r.notifier != nil {
		occurred := r.now().UTC()
		if e.Timestamp > 0 {
			occurred = time.Unix(e.Timestamp, 0).UTC()
		}
		change := domain.StatusChange{
			Email:      e.Email,
			Status:     outcome.Status,
			Code:       code,
			Reason:     reason,
			MessageID:  e.MessageID,
			Event:      e.Event,
			OccurredAt: occurred,
		}
		if err := r.notifier.Notify(ctx, change); err != nil {
			logger.Warn("status change notify failed", "email", e.Email, "error", err)
		}
	}
	return outcome.Status, nil
}
