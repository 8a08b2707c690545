// Package webhook reconciles provider delivery events with the validation
// cache and the mail log.
//
// The provider gives each delivery 30 seconds and retries anything that is
// not a 200, so Handle never fails a batch: bad events are counted as
// skipped and the rest are processed within a fixed time budget.
package webhook
