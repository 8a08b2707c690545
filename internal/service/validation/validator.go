package validation

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/mail"
	"strings"
	"time"

	"github.com/badoux/checkmail"
	"golang.org/x/sync/singleflight"

	"github.com/ignite/mailguard/internal/domain"
	"github.com/ignite/mailguard/internal/pkg/logger"
)

// checkTimeout bounds one shared validation run. The run outlives the
// caller that started it, so it cannot inherit that caller's deadline.
const checkTimeout = 30 * time.Second

// ProviderVerifier asks the delivery provider about an address and
// persists the provider's verdict in the store. It reports whether the
// address was accepted.
type ProviderVerifier interface {
	Verify(ctx context.Context, email string) (bool, error)
}

// Validator is the AddressValidator. Each call for an address that is not
// cached writes exactly one record.
type Validator struct {
	store    *Store
	resolver Resolver
	locker   Locker
	provider ProviderVerifier
	group    singleflight.Group
}

// ValidatorOption customizes a Validator.
type ValidatorOption func(*Validator)

// WithLocker replaces the in-process keyed mutex, e.g. with a Redis lock
// shared by several instances.
func WithLocker(l Locker) ValidatorOption {
	return func(v *Validator) { v.locker = l }
}

// WithProvider adds the provider API as the last validation step.
func WithProvider(p ProviderVerifier) ValidatorOption {
	return func(v *Validator) { v.provider = p }
}

// NewValidator creates a validator over store using resolver for DNS.
// Callers bound lookups with WithLookupTimeout.
func NewValidator(store *Store, resolver Resolver, opts ...ValidatorOption) *Validator {
	v := &Validator{
		store:    store,
		resolver: resolver,
		locker:   NewLocalLocker(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Store returns the underlying store.
func (v *Validator) Store() *Store { return v.store }

// Validate returns nil when the address may receive mail and a
// *ValidationError when it may not. Any other error is infrastructure
// failure (store, lock, canceled context).
//
// Concurrent calls for one address share a single run. The run is detached
// from every caller's cancellation, so a caller that gives up only stops
// waiting and the others still get the verdict.
func (v *Validator) Validate(ctx context.Context, email string) error {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return ErrEmptyAddress
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	ch := v.group.DoChan(email, func() (interface{}, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), checkTimeout)
		defer cancel()
		return nil, v.validateLocked(runCtx, email)
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}

func (v *Validator) validateLocked(ctx context.Context, email string) error {
	unlock, err := v.locker.Lock(ctx, email)
	if err != nil {
		return fmt.Errorf("lock %s: %w", logger.RedactEmail(email), err)
	}
	defer unlock()

	// another instance may have finished while we waited for the lock
	rec, err := v.store.Find(ctx, email)
	switch {
	case err == nil && v.store.Fresh(rec):
		if rec.Status != domain.StatusValid {
			return &ValidationError{Email: email, Reason: rec.Reason, Code: rec.Code()}
		}
		return nil
	case err != nil && !errors.Is(err, ErrNotFound):
		return fmt.Errorf("find validation: %w", err)
	}

	if !wellFormed(email) {
		return v.reject(ctx, email, domain.ReasonInvalidFormat)
	}

	hosts, err := v.mxHosts(ctx, domain.DomainOf(email))
	if err != nil {
		return err
	}
	if len(hosts) == 0 {
		return v.reject(ctx, email, domain.ReasonNoMX)
	}

	ok, err := v.anyHostResolves(ctx, hosts)
	if err != nil {
		return err
	}
	if !ok {
		return v.reject(ctx, email, domain.ReasonMXNoIP)
	}

	if v.provider != nil {
		return v.verifyWithProvider(ctx, email)
	}

	if _, err := v.store.MarkValid(ctx, email, domain.ReasonChecksPassed, domain.CodeOK); err != nil {
		return err
	}
	return nil
}

func (v *Validator) reject(ctx context.Context, email, reason string) error {
	if _, err := v.store.MarkBlocked(ctx, email, reason, domain.CodeBadRequest); err != nil {
		return err
	}
	logger.Info("address blocked by validation", "email", email, "reason", reason)
	return &ValidationError{Email: email, Reason: reason, Code: domain.CodeBadRequest}
}

func (v *Validator) verifyWithProvider(ctx context.Context, email string) error {
	ok, err := v.provider.Verify(ctx, email)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	if ok {
		return nil
	}
	rec, ferr := v.store.Find(ctx, email)
	if ferr != nil {
		if err != nil {
			return fmt.Errorf("provider verify: %w", err)
		}
		return fmt.Errorf("provider verdict: %w", ferr)
	}
	return &ValidationError{Email: email, Reason: rec.Reason, Code: rec.Code()}
}

// wellFormed requires a bare addr-spec: it must pass the checkmail
// pattern and parse as an RFC 5322 address with no display name.
func wellFormed(email string) bool {
	if err := checkmail.ValidateFormat(email); err != nil {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return false
	}
	return strings.EqualFold(addr.Address, email)
}

// mxHosts returns the usable MX hosts for dom. Lookup failures, including
// a timed-out lookup, count as no MX. A null MX ("." per RFC 7505) means
// the domain accepts no mail. Only a canceled parent context is an error.
func (v *Validator) mxHosts(ctx context.Context, dom string) ([]string, error) {
	mxs, err := v.resolver.LookupMX(ctx, dom)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsTimeout {
			logger.Warn("MX lookup timed out", "domain", dom)
		}
		return nil, nil
	}

	hosts := make([]string, 0, len(mxs))
	for _, mx := range mxs {
		host := strings.TrimSuffix(mx.Host, ".")
		if host == "" {
			continue
		}
		hosts = append(hosts, host)
	}
	return hosts, nil
}

// anyHostResolves reports whether at least one host resolves to an address
// that is not the host name echoed back.
func (v *Validator) anyHostResolves(ctx context.Context, hosts []string) (bool, error) {
	for _, host := range hosts {
		addrs, err := v.resolver.LookupHost(ctx, host)
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if err != nil {
			continue
		}
		for _, a := range addrs {
			if a != "" && !strings.EqualFold(strings.TrimSuffix(a, "."), host) {
				return true, nil
			}
		}
	}
	return false, nil
}
