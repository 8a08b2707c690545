package maillog

import (
	"context"
	"time"

	"github.com/ignite/mailguard/internal/domain"
)

// Repository defines the data access contract for mail_logs.
type Repository interface {
	// Create inserts a row and fills ID, CreatedAt and UpdatedAt. A
	// non-nil MessageID that is already taken yields ErrDuplicateMessageID.
	Create(ctx context.Context, m *domain.MailLog) error

	// FindByMessageID returns the row with the given id or ErrNotFound.
	FindByMessageID(ctx context.Context, messageID string) (*domain.MailLog, error)

	// UpdateStatus sets status_code (and error_message when errMsg is
	// non-nil) on the row with the given message id. Returns ErrNotFound
	// when no row matches.
	UpdateStatus(ctx context.Context, messageID, code string, errMsg *string) error

	// List returns rows matching the filter, newest first, and the total
	// number of matches.
	List(ctx context.Context, filter ListFilter) ([]domain.MailLog, int, error)

	// DeleteBefore removes up to limit rows created before cutoff and
	// reports how many were removed.
	DeleteBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

// Scope selects rows by outcome.
type Scope string

const (
	ScopeAll        Scope = ""
	ScopeSuccessful Scope = "successful" // status_code = '200'
	ScopeFailed     Scope = "failed"     // status_code set and not '200'
	ScopePending    Scope = "pending"    // status_code null
)

// ListFilter controls pagination and filtering for mail log lists.
type ListFilter struct {
	Scope     Scope
	Recipient string
	Sender    string
	OwnerKind string
	OwnerID   string
	Limit     int
	Offset    int
}

// Matches applies the filter to one row. In-memory repositories use it.
func (f ListFilter) Matches(m *domain.MailLog) bool {
	switch f.Scope {
	case ScopeSuccessful:
		if !m.Successful() {
			return false
		}
	case ScopeFailed:
		if !m.Failed() {
			return false
		}
	case ScopePending:
		if !m.Pending() {
			return false
		}
	}
	if f.Recipient != "" && m.Recipient != f.Recipient {
		return false
	}
	if f.Sender != "" && (m.Sender == nil || *m.Sender != f.Sender) {
		return false
	}
	if f.OwnerKind != "" {
		if m.Owner == nil || m.Owner.Kind != f.OwnerKind {
			return false
		}
		if f.OwnerID != "" && m.Owner.ID != f.OwnerID {
			return false
		}
	}
	return true
}
