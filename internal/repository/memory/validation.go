// Package memory holds map-backed repositories for tests and for running
// without a database. Nothing survives a restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ignite/mailguard/internal/domain"
	"github.com/ignite/mailguard/internal/service/validation"
)

// ValidationRepo implements validation.Repository in memory.
type ValidationRepo struct {
	mu     sync.RWMutex
	byMail map[string]*domain.Validation
	nextID int64
	now    func() time.Time
}

// NewValidationRepo creates an empty repository.
func NewValidationRepo() *ValidationRepo {
	return &ValidationRepo{byMail: make(map[string]*domain.Validation), now: time.Now}
}

func (r *ValidationRepo) Find(_ context.Context, email string) (*domain.Validation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.byMail[email]
	if !ok {
		return nil, validation.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (r *ValidationRepo) FindMany(_ context.Context, emails []string) ([]domain.Validation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Validation, 0, len(emails))
	for _, e := range emails {
		if v, ok := r.byMail[e]; ok {
			out = append(out, *v)
		}
	}
	return out, nil
}

func (r *ValidationRepo) Upsert(_ context.Context, v *domain.Validation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now().UTC()
	if old, ok := r.byMail[v.Email]; ok {
		if old.LastCheckedAt.After(v.LastCheckedAt) {
			*v = *old
			return nil
		}
		v.ID = old.ID
		v.CreatedAt = old.CreatedAt
	} else {
		r.nextID++
		v.ID = r.nextID
		v.CreatedAt = now
	}
	v.UpdatedAt = now
	cp := *v
	r.byMail[v.Email] = &cp
	return nil
}

func (r *ValidationRepo) Match(_ context.Context, email, dom string, status domain.ValidationStatus, since time.Time) (*domain.Validation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	usable := func(v *domain.Validation) bool {
		return v.Status == status && (since.IsZero() || v.LastCheckedAt.After(since))
	}
	if v, ok := r.byMail[email]; ok && usable(v) {
		cp := *v
		return &cp, nil
	}
	if dom == "" {
		return nil, validation.ErrNotFound
	}
	for _, v := range r.byMail {
		if v.Domain == dom && usable(v) {
			cp := *v
			return &cp, nil
		}
	}
	return nil, validation.ErrNotFound
}

func (r *ValidationRepo) List(_ context.Context, f validation.ListFilter) ([]domain.Validation, int, error) {
	r.mu.RLock()
	var all []domain.Validation
	for _, v := range r.byMail {
		if f.Status != "" && string(v.Status) != f.Status {
			continue
		}
		if f.Domain != "" && v.Domain != f.Domain {
			continue
		}
		all = append(all, *v)
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].LastCheckedAt.Equal(all[j].LastCheckedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].LastCheckedAt.After(all[j].LastCheckedAt)
	})
	return page(all, f.Offset, f.Limit), len(all), nil
}

func page[T any](all []T, offset, limit int) []T {
	if offset >= len(all) {
		return []T{}
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all
}
