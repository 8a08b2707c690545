// Package worker holds background jobs that run beside the API server.
package worker

import (
	"context"
	"time"

	"github.com/ignite/mailguard/internal/metrics"
	"github.com/ignite/mailguard/internal/pkg/distlock"
	"github.com/ignite/mailguard/internal/pkg/logger"
)

const (
	// DefaultRetentionInterval is how often the retention cycle runs.
	DefaultRetentionInterval = 1 * time.Hour

	// retentionBatchSize limits each DELETE to avoid table-level locks.
	retentionBatchSize = 10000
)

// Purger deletes mail log rows older than maxAge. maillog.Service
// satisfies it.
type Purger interface {
	Purge(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)
}

// RetentionWorker periodically removes mail log rows older than the
// configured retention. Validation records are never touched.
type RetentionWorker struct {
	logs      Purger
	retention time.Duration
	interval  time.Duration
	lock      distlock.DistLock
}

// RetentionOption customizes a RetentionWorker.
type RetentionOption func(*RetentionWorker)

// WithInterval overrides DefaultRetentionInterval.
func WithInterval(d time.Duration) RetentionOption {
	return func(w *RetentionWorker) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithLock makes each cycle run only while holding l, so one instance
// purges at a time.
func WithLock(l distlock.DistLock) RetentionOption {
	return func(w *RetentionWorker) { w.lock = l }
}

// NewRetentionWorker creates a worker deleting rows older than retention.
// A zero retention disables it.
func NewRetentionWorker(logs Purger, retention time.Duration, opts ...RetentionOption) *RetentionWorker {
	w := &RetentionWorker{
		logs:      logs,
		retention: retention,
		interval:  DefaultRetentionInterval,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins the retention loop. It blocks until ctx is cancelled.
func (w *RetentionWorker) Start(ctx context.Context) {
	if w.retention <= 0 {
		logger.Info("mail log retention disabled")
		return
	}
	logger.Info("mail log retention starting", "interval", w.interval.String(), "retention", w.retention.String(), "batch_size", retentionBatchSize)

	// Run once immediately on start
	w.RunOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("mail log retention stopping")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs one retention cycle and returns the rows removed.
func (w *RetentionWorker) RunOnce(ctx context.Context) int64 {
	if w.retention <= 0 {
		return 0
	}
	if w.lock != nil {
		acquired, err := w.lock.Acquire(ctx)
		if err != nil {
			logger.Error("mail log retention lock failed", "error", err)
			return 0
		}
		if !acquired {
			logger.Debug("mail log retention held by another instance")
			return 0
		}
		defer func() {
			if err := w.lock.Release(context.Background()); err != nil {
				logger.Warn("mail log retention unlock failed", "error", err)
			}
		}()
	}

	start := time.Now()
	n, err := w.logs.Purge(ctx, w.retention, retentionBatchSize)
	if n > 0 {
		metrics.MailLogsPurged.Add(float64(n))
	}
	if err != nil {
		logger.Error("mail log retention failed", "deleted", n, "error", err)
		return n
	}
	logger.Info("mail log retention completed", "deleted", n, "duration", time.Since(start).Round(time.Millisecond).String())
	return n
}
