package mailtrap

import (
	"context"
	"errors"
	"strconv"

	"github.com/ignite/mailguard/internal/domain"
	"github.com/ignite/mailguard/internal/metrics"
	"github.com/ignite/mailguard/internal/pkg/logger"
	"github.com/ignite/mailguard/internal/service/validation"
)

// Checker validates addresses through the API and records every verdict in
// the validation store. It satisfies validation.ProviderVerifier.
type Checker struct {
	client *Client
	store  *validation.Store
}

// NewChecker creates a checker writing to store.
func NewChecker(client *Client, store *validation.Store) *Checker {
	return &Checker{client: client, store: store}
}

// Check answers from the store when a fresh valid or blocked verdict
// exists and otherwise calls Verify.
func (c *Checker) Check(ctx context.Context, email string) (bool, error) {
	email = domain.NormalizeEmail(email)

	valid, err := c.store.IsValid(ctx, email)
	if err != nil {
		return false, err
	}
	if valid {
		return true, nil
	}
	blocked, err := c.store.IsBlocked(ctx, email)
	if err != nil {
		return false, err
	}
	if blocked {
		return false, nil
	}
	return c.Verify(ctx, email)
}

// Verify always calls the API and persists its answer:
//
//	accepted              -> valid
//	4xx or success=false  -> invalid
//	5xx or network error  -> blocked
//
// The returned error is only non-nil when the verdict could not be stored
// or ctx ended.
func (c *Checker) Verify(ctx context.Context, email string) (bool, error) {
	email = domain.NormalizeEmail(email)

	_, err := c.client.Validate(ctx, email)
	if err != nil && ctx.Err() != nil {
		return false, ctx.Err()
	}

	var apiErr *APIError
	switch {
	case err == nil:
		metrics.ProviderChecks.WithLabelValues("valid").Inc()
		_, serr := c.store.MarkValid(ctx, email, domain.ReasonAPIValidated, domain.CodeOK)
		return serr == nil, serr

	case errors.As(err, &apiErr) && errors.Is(err, ErrRejected):
		metrics.ProviderChecks.WithLabelValues("rejected").Inc()
		reason := domain.ReasonAPIFailed
		if apiErr.StatusCode < 300 {
			reason = apiErr.Message
		}
		_, serr := c.store.MarkInvalid(ctx, email, reason, strconv.Itoa(apiErr.StatusCode))
		return false, serr

	case errors.As(err, &apiErr):
		metrics.ProviderChecks.WithLabelValues("upstream_error").Inc()
		_, serr := c.store.MarkBlocked(ctx, email, domain.ReasonAPIFailed, strconv.Itoa(apiErr.StatusCode))
		return false, serr

	default:
		metrics.ProviderChecks.WithLabelValues("upstream_error").Inc()
		logger.Warn("mailtrap validate failed", "email", email, "error", err)
		_, serr := c.store.MarkBlocked(ctx, email, "API error: "+err.Error(), domain.CodeServerErr)
		return false, serr
	}
}
