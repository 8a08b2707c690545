package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/ignite/mailguard/internal/service/maillog"
	"github.com/ignite/mailguard/internal/service/sending"
	"github.com/ignite/mailguard/internal/service/validation"
	"github.com/ignite/mailguard/internal/service/webhook"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// ProviderChecker asks the delivery provider about an address, answering
// from cached verdicts when it can.
type ProviderChecker interface {
	Check(ctx context.Context, email string) (bool, error)
}

// Handlers contains all HTTP handlers
type Handlers struct {
	validator  *validation.Validator
	store      *validation.Store
	logs       *maillog.Service
	reconciler *webhook.Reconciler
	mailer     *sending.Mailer
	provider   ProviderChecker
}

// NewHandlers creates a new Handlers instance. rec may be nil when
// webhooks are disabled and mailer nil when sending is not exposed.
func NewHandlers(v *validation.Validator, logs *maillog.Service, rec *webhook.Reconciler, mailer *sending.Mailer) *Handlers {
	return &Handlers{
		validator:  v,
		store:      v.Store(),
		logs:       logs,
		reconciler: rec,
		mailer:     mailer,
	}
}

// SetProvider exposes POST /api/validations/{email}/verify. Call it before
// building the server.
func (h *Handlers) SetProvider(p ProviderChecker) {
	h.provider = p
}

// pagination reads limit and offset query parameters.
func pagination(r *http.Request) (limit, offset int) {
	limit = defaultPageSize
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}
