package validation

import (
	"context"
	"time"

	"github.com/ignite/mailguard/internal/domain"
)

// Repository defines the data access contract for cached verdicts.
// Emails passed in are already normalized.
type Repository interface {
	// Find returns the record for an exact address or ErrNotFound.
	Find(ctx context.Context, email string) (*domain.Validation, error)

	// FindMany returns the records that exist for the given addresses in a
	// single read. Missing addresses are simply absent from the result.
	FindMany(ctx context.Context, emails []string) ([]domain.Validation, error)

	// Upsert inserts or replaces the record keyed by v.Email. It fills ID,
	// CreatedAt and UpdatedAt on v.
	Upsert(ctx context.Context, v *domain.Validation) error

	// Match returns a record with the given status whose email equals
	// email OR whose domain equals dom, preferring the exact address.
	// Records checked before since are ignored when since is non-zero.
	// Returns ErrNotFound when nothing matches.
	Match(ctx context.Context, email, dom string, status domain.ValidationStatus, since time.Time) (*domain.Validation, error)

	// List returns records matching the filter, newest check first.
	List(ctx context.Context, filter ListFilter) ([]domain.Validation, int, error)
}

// ListFilter controls pagination and filtering for validation lists.
type ListFilter struct {
	Status string
	Domain string
	Limit  int
	Offset int
}
