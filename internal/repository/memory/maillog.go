package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ignite/mailguard/internal/domain"
	"github.com/ignite/mailguard/internal/service/maillog"
)

// MailLogRepo implements maillog.Repository in memory.
type MailLogRepo struct {
	mu     sync.RWMutex
	rows   []*domain.MailLog
	byID   map[string]*domain.MailLog
	nextID int64
	now    func() time.Time
}

// NewMailLogRepo creates an empty repository.
func NewMailLogRepo() *MailLogRepo {
	return &MailLogRepo{byID: make(map[string]*domain.MailLog), now: time.Now}
}

// SetClock overrides the timestamp source used for CreatedAt.
func (r *MailLogRepo) SetClock(now func() time.Time) { r.now = now }

func (r *MailLogRepo) Create(_ context.Context, m *domain.MailLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.MessageID != nil {
		if _, taken := r.byID[*m.MessageID]; taken {
			return maillog.ErrDuplicateMessageID
		}
	}
	r.nextID++
	now := r.now().UTC()
	m.ID = r.nextID
	m.CreatedAt = now
	m.UpdatedAt = now
	cp := *m
	r.rows = append(r.rows, &cp)
	if cp.MessageID != nil {
		r.byID[*cp.MessageID] = &cp
	}
	return nil
}

func (r *MailLogRepo) FindByMessageID(_ context.Context, messageID string) (*domain.MailLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byID[messageID]
	if !ok {
		return nil, maillog.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *MailLogRepo) UpdateStatus(_ context.Context, messageID, code string, errMsg *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[messageID]
	if !ok {
		return maillog.ErrNotFound
	}
	m.StatusCode = domain.StringPtr(code)
	if errMsg != nil {
		msg := *errMsg
		m.ErrorMessage = &msg
	}
	m.UpdatedAt = r.now().UTC()
	return nil
}

func (r *MailLogRepo) List(_ context.Context, f maillog.ListFilter) ([]domain.MailLog, int, error) {
	r.mu.RLock()
	var all []domain.MailLog
	for _, m := range r.rows {
		if f.Matches(m) {
			all = append(all, *m)
		}
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	return page(all, f.Offset, f.Limit), len(all), nil
}

func (r *MailLogRepo) DeleteBefore(_ context.Context, cutoff time.Time, limit int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	kept := r.rows[:0]
	for _, m := range r.rows {
		if m.CreatedAt.Before(cutoff) && (limit <= 0 || deleted < int64(limit)) {
			if m.MessageID != nil {
				delete(r.byID, *m.MessageID)
			}
			deleted++
			continue
		}
		kept = append(kept, m)
	}
	r.rows = kept
	return deleted, nil
}
