package maillog

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/mailguard/internal/domain"
)

// Source is the call site that triggered a send, recorded for diagnostics.
type Source struct {
	File string
	Line int
}

// Service implements mail log business logic. It is safe for concurrent use.
type Service struct {
	repo     Repository
	now      func() time.Time
	basePath string
}

// Option customizes a Service.
type Option func(*Service)

// WithBasePath strips base from recorded source file paths.
func WithBasePath(base string) Option {
	return func(s *Service) { s.basePath = base }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a mail log service backed by the given repository.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{repo: repo, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create inserts m as is. ErrDuplicateMessageID is passed through so the
// caller can mint a new id.
func (s *Service) Create(ctx context.Context, m *domain.MailLog) error {
	if strings.TrimSpace(m.Recipient) == "" {
		return fmt.Errorf("recipient is required")
	}
	if err := s.repo.Create(ctx, m); err != nil {
		if errors.Is(err, ErrDuplicateMessageID) {
			return err
		}
		return fmt.Errorf("create mail log: %w", err)
	}
	return nil
}

// CreateWithSource records the call site on m and inserts it. With
// synthesizeID and no message id set, an id is generated whose prefix
// tells the failure class apart: VALIDATION_ERROR_ (400),
// TRANSPORT_ERROR_ (500), BLOCKED_ (550), ERROR_ otherwise.
func (s *Service) CreateWithSource(ctx context.Context, m *domain.MailLog, src Source, synthesizeID bool) error {
	if src.File != "" {
		file := src.File
		if s.basePath != "" {
			if rel, err := filepath.Rel(s.basePath, file); err == nil && !strings.HasPrefix(rel, "..") {
				file = rel
			}
		}
		m.SourceFile = &file
	}
	if src.Line > 0 {
		line := src.Line
		m.SourceLine = &line
	}
	if synthesizeID && (m.MessageID == nil || *m.MessageID == "") {
		id := SyntheticID(m.StatusCode)
		m.MessageID = &id
	}
	return s.Create(ctx, m)
}

// SyntheticID builds a unique message id for rows that never reached the
// transport.
func SyntheticID(code *string) string {
	prefix := "ERROR_"
	if code != nil {
		switch *code {
		case domain.CodeBadRequest:
			prefix = "VALIDATION_ERROR_"
		case domain.CodeServerErr:
			prefix = "TRANSPORT_ERROR_"
		case domain.CodeRejected:
			prefix = "BLOCKED_"
		}
	}
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// SetStatus records an outcome on the row with the given message id.
func (s *Service) SetStatus(ctx context.Context, messageID, code string, errMsg *string) error {
	if messageID == "" {
		return ErrNotFound
	}
	return s.repo.UpdateStatus(ctx, messageID, code, errMsg)
}

// RecordOutcome sets the status of the row with messageID, creating a
// webhook row for recipient when none exists. Safe to repeat.
func (s *Service) RecordOutcome(ctx context.Context, messageID, recipient, code string) error {
	err := s.repo.UpdateStatus(ctx, messageID, code, nil)
	if !errors.Is(err, ErrNotFound) {
		return err
	}

	kind := domain.KindWebhook
	m := &domain.MailLog{
		MessageID:  &messageID,
		Recipient:  recipient,
		StatusCode: domain.StringPtr(code),
		Kind:       &kind,
	}
	err = s.repo.Create(ctx, m)
	if errors.Is(err, ErrDuplicateMessageID) {
		// lost a race with a concurrent writer; the row exists now
		return s.repo.UpdateStatus(ctx, messageID, code, nil)
	}
	return err
}

// Find returns the row for a message id.
func (s *Service) Find(ctx context.Context, messageID string) (*domain.MailLog, error) {
	return s.repo.FindByMessageID(ctx, messageID)
}

// List returns rows matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]domain.MailLog, int, error) {
	return s.repo.List(ctx, filter)
}

// Purge deletes rows older than maxAge in batches of batchSize until none
// are left or ctx is done. It returns the number of rows deleted.
func (s *Service) Purge(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	if batchSize <= 0 {
		batchSize = 10000
	}
	cutoff := s.now().Add(-maxAge)

	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := s.repo.DeleteBefore(ctx, cutoff, batchSize)
		if err != nil {
			return total, fmt.Errorf("purge mail logs: %w", err)
		}
		total += n
		if n < int64(batchSize) {
			return total, nil
		}
	}
}
