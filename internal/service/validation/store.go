package validation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/mailguard/internal/domain"
)

// StatusListener is told about every verdict the store writes.
type StatusListener interface {
	StatusChanged(ctx context.Context, v *domain.Validation)
}

// Store is the ValidationStore: keyed verdicts with domain-or-address
// matching. It is safe for concurrent use.
type Store struct {
	repo      Repository
	ttl       time.Duration
	now       func() time.Time
	listeners []StatusListener
}

// StoreOption customizes a Store.
type StoreOption func(*Store)

// WithTTL makes records older than ttl count as absent. Zero keeps records
// forever.
func WithTTL(ttl time.Duration) StoreOption {
	return func(s *Store) { s.ttl = ttl }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// WithListener registers l for every successful write.
func WithListener(l StatusListener) StoreOption {
	return func(s *Store) { s.listeners = append(s.listeners, l) }
}

// NewStore creates a store backed by the given repository.
func NewStore(repo Repository, opts ...StoreOption) *Store {
	s := &Store{repo: repo, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL returns the freshness window; zero means records never expire.
func (s *Store) TTL() time.Duration { return s.ttl }

// Fresh reports whether v is recent enough to be trusted.
func (s *Store) Fresh(v *domain.Validation) bool {
	return v.Fresh(s.now(), s.ttl)
}

func (s *Store) cutoff() time.Time {
	if s.ttl <= 0 {
		return time.Time{}
	}
	return s.now().Add(-s.ttl)
}

func (s *Store) match(ctx context.Context, email string, status domain.ValidationStatus) (*domain.Validation, error) {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return nil, ErrEmptyAddress
	}
	return s.repo.Match(ctx, email, domain.DomainOf(email), status, s.cutoff())
}

func (s *Store) has(ctx context.Context, email string, status domain.ValidationStatus) (bool, error) {
	_, err := s.match(ctx, email, status)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("match %s: %w", status, err)
	}
	return true, nil
}

// IsValid reports whether the address, or any address at its domain, is
// recorded as valid.
func (s *Store) IsValid(ctx context.Context, email string) (bool, error) {
	return s.has(ctx, email, domain.StatusValid)
}

// IsBlocked reports whether the address, or any address at its domain, is
// recorded as blocked.
func (s *Store) IsBlocked(ctx context.Context, email string) (bool, error) {
	return s.has(ctx, email, domain.StatusBlocked)
}

// IsInvalid reports whether the exact address is recorded as invalid.
// Invalid verdicts never propagate to the domain.
func (s *Store) IsInvalid(ctx context.Context, email string) (bool, error) {
	v, err := s.Find(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v.Status == domain.StatusInvalid && s.Fresh(v), nil
}

// BlockReason returns the reason of the blocked record matching the
// address or its domain. ok is false when nothing is blocked.
func (s *Store) BlockReason(ctx context.Context, email string) (reason string, ok bool, err error) {
	v, err := s.match(ctx, email, domain.StatusBlocked)
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("block reason: %w", err)
	}
	return v.Reason, true, nil
}

// MarkValid records the address as valid. An empty reason defaults to the
// provider confirmation text and an empty code to "200".
func (s *Store) MarkValid(ctx context.Context, email, reason, code string) (*domain.Validation, error) {
	if reason == "" {
		reason = domain.ReasonAPIValidated
	}
	if code == "" {
		code = domain.CodeOK
	}
	return s.Mark(ctx, email, domain.StatusValid, reason, code)
}

// MarkInvalid records the address as invalid.
func (s *Store) MarkInvalid(ctx context.Context, email, reason, code string) (*domain.Validation, error) {
	if reason == "" {
		reason = "Email address is invalid"
	}
	return s.Mark(ctx, email, domain.StatusInvalid, reason, code)
}

// MarkBlocked records the address as blocked.
func (s *Store) MarkBlocked(ctx context.Context, email, reason, code string) (*domain.Validation, error) {
	if reason == "" {
		reason = domain.ReasonBlocked
	}
	return s.Mark(ctx, email, domain.StatusBlocked, reason, code)
}

// Mark upserts the verdict for email. The domain is recomputed on every
// write and the latest write wins.
func (s *Store) Mark(ctx context.Context, email string, status domain.ValidationStatus, reason, code string) (*domain.Validation, error) {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return nil, ErrEmptyAddress
	}
	if !status.IsKnown() {
		return nil, fmt.Errorf("unknown status %q", status)
	}

	v := &domain.Validation{
		Email:         email,
		Domain:        domain.DomainOf(email),
		Status:        status,
		Reason:        reason,
		StatusCode:    domain.StringPtr(code),
		LastCheckedAt: s.now().UTC(),
	}
	if err := s.repo.Upsert(ctx, v); err != nil {
		return nil, fmt.Errorf("upsert validation: %w", err)
	}
	for _, l := range s.listeners {
		l.StatusChanged(ctx, v)
	}
	return v, nil
}

// Find returns the record for the exact address, stale or not.
func (s *Store) Find(ctx context.Context, email string) (*domain.Validation, error) {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return nil, ErrEmptyAddress
	}
	return s.repo.Find(ctx, email)
}

// FindMany returns the records for the given addresses keyed by normalized
// email. Stale records are left out.
func (s *Store) FindMany(ctx context.Context, emails []string) (map[string]*domain.Validation, error) {
	keys := make([]string, 0, len(emails))
	seen := make(map[string]bool, len(emails))
	for _, e := range emails {
		e = domain.NormalizeEmail(e)
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		keys = append(keys, e)
	}
	out := make(map[string]*domain.Validation, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	rows, err := s.repo.FindMany(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("find many: %w", err)
	}
	for i := range rows {
		v := rows[i]
		if !s.Fresh(&v) {
			continue
		}
		out[v.Email] = &v
	}
	return out, nil
}

// List returns records matching the filter.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]domain.Validation, int, error) {
	return s.repo.List(ctx, filter)
}
