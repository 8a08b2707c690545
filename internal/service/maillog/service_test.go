package maillog

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ignite/mailguard/internal/domain"
)

// mockRepo is an in-memory repository for testing.
type mockRepo struct {
	mu      sync.Mutex
	rows    []*domain.MailLog
	nextID  int64
	deletes []int
	// racer, when set, inserts a row with the same id right before Create
	racer func(m *domain.MailLog)
}

func newMockRepo() *mockRepo { return &mockRepo{} }

func (m *mockRepo) find(id string) *domain.MailLog {
	for _, r := range m.rows {
		if r.MessageID != nil && *r.MessageID == id {
			return r
		}
	}
	return nil
}

func (m *mockRepo) Create(_ context.Context, l *domain.MailLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.racer != nil {
		race := m.racer
		m.racer = nil
		race(l)
	}
	if l.MessageID != nil && m.find(*l.MessageID) != nil {
		return ErrDuplicateMessageID
	}
	m.nextID++
	l.ID = m.nextID
	cp := *l
	m.rows = append(m.rows, &cp)
	return nil
}

func (m *mockRepo) FindByMessageID(_ context.Context, id string) (*domain.MailLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.find(id)
	if r == nil {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *mockRepo) UpdateStatus(_ context.Context, id, code string, errMsg *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.find(id)
	if r == nil {
		return ErrNotFound
	}
	r.StatusCode = domain.StringPtr(code)
	if errMsg != nil {
		r.ErrorMessage = errMsg
	}
	return nil
}

func (m *mockRepo) List(_ context.Context, f ListFilter) ([]domain.MailLog, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.MailLog
	for _, r := range m.rows {
		if f.Matches(r) {
			out = append(out, *r)
		}
	}
	return out, len(out), nil
}

func (m *mockRepo) DeleteBefore(_ context.Context, cutoff time.Time, limit int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int
	kept := m.rows[:0]
	for _, r := range m.rows {
		if n < limit && r.CreatedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	m.rows = kept
	m.deletes = append(m.deletes, n)
	return int64(n), nil
}

func TestCreate_RequiresRecipient(t *testing.T) {
	svc := NewService(newMockRepo())
	if err := svc.Create(context.Background(), &domain.MailLog{Recipient: "  "}); err == nil {
		t.Error("expected error for empty recipient")
	}
}

func TestCreate_PassesDuplicateThrough(t *testing.T) {
	svc := NewService(newMockRepo())
	ctx := context.Background()
	id := "dup"
	if err := svc.Create(ctx, &domain.MailLog{MessageID: &id, Recipient: "a@x.com"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	err := svc.Create(ctx, &domain.MailLog{MessageID: &id, Recipient: "b@x.com"})
	if !errors.Is(err, ErrDuplicateMessageID) {
		t.Errorf("expected ErrDuplicateMessageID, got %v", err)
	}
}

func TestCreateWithSource_RelativePathAndSyntheticID(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, WithBasePath("/srv/app"))
	ctx := context.Background()

	m := &domain.MailLog{Recipient: "a@x.com", StatusCode: domain.StringPtr("550")}
	err := svc.CreateWithSource(ctx, m, Source{File: "/srv/app/notify/send.go", Line: 88}, true)
	if err != nil {
		t.Fatalf("CreateWithSource: %v", err)
	}
	if *m.SourceFile != "notify/send.go" || *m.SourceLine != 88 {
		t.Errorf("source = %s:%d", *m.SourceFile, *m.SourceLine)
	}
	if !strings.HasPrefix(*m.MessageID, "BLOCKED_") {
		t.Errorf("message id = %q", *m.MessageID)
	}

	// paths outside the base stay absolute
	m2 := &domain.MailLog{Recipient: "a@x.com"}
	_ = svc.CreateWithSource(ctx, m2, Source{File: "/opt/other.go"}, false)
	if *m2.SourceFile != "/opt/other.go" || m2.SourceLine != nil || m2.MessageID != nil {
		t.Errorf("unexpected row %+v", m2)
	}
}

func TestSyntheticID_Prefixes(t *testing.T) {
	cases := map[string]string{
		"400": "VALIDATION_ERROR_",
		"500": "TRANSPORT_ERROR_",
		"550": "BLOCKED_",
		"418": "ERROR_",
	}
	for code, prefix := range cases {
		c := code
		id := SyntheticID(&c)
		if !strings.HasPrefix(id, prefix) {
			t.Errorf("%s: got %q", code, id)
		}
		if strings.Contains(id, "-") {
			t.Errorf("%s: id should have no dashes: %q", code, id)
		}
	}
	if !strings.HasPrefix(SyntheticID(nil), "ERROR_") {
		t.Error("nil code should use ERROR_")
	}
	if SyntheticID(nil) == SyntheticID(nil) {
		t.Error("ids must be unique")
	}
}

func TestSetStatus_EmptyIDIsNotFound(t *testing.T) {
	svc := NewService(newMockRepo())
	if err := svc.SetStatus(context.Background(), "", "200", nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v", err)
	}
}

func TestRecordOutcome_UpdatesOrCreates(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	ctx := context.Background()

	id := "known"
	_ = svc.Create(ctx, &domain.MailLog{MessageID: &id, Recipient: "a@x.com"})

	if err := svc.RecordOutcome(ctx, "known", "a@x.com", "550"); err != nil {
		t.Fatalf("RecordOutcome known: %v", err)
	}
	got, _ := svc.Find(ctx, "known")
	if *got.StatusCode != "550" {
		t.Errorf("status = %v", *got.StatusCode)
	}

	if err := svc.RecordOutcome(ctx, "unknown", "b@x.com", "200"); err != nil {
		t.Fatalf("RecordOutcome unknown: %v", err)
	}
	got, err := svc.Find(ctx, "unknown")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if got.Recipient != "b@x.com" || *got.Kind != domain.KindWebhook || *got.StatusCode != "200" {
		t.Errorf("webhook row = %+v", got)
	}

	// repeating is harmless
	if err := svc.RecordOutcome(ctx, "unknown", "b@x.com", "200"); err != nil {
		t.Fatalf("RecordOutcome repeat: %v", err)
	}
	if _, total, _ := svc.List(ctx, ListFilter{}); total != 2 {
		t.Errorf("expected 2 rows, got %d", total)
	}
}

func TestRecordOutcome_LosesInsertRace(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	repo.racer = func(l *domain.MailLog) {
		id := *l.MessageID
		repo.nextID++
		repo.rows = append(repo.rows, &domain.MailLog{ID: repo.nextID, MessageID: &id, Recipient: l.Recipient})
	}

	if err := svc.RecordOutcome(context.Background(), "raced", "a@x.com", "550"); err != nil {
		t.Fatalf("RecordOutcome: %v", err)
	}
	got, _ := svc.Find(context.Background(), "raced")
	if got.StatusCode == nil || *got.StatusCode != "550" {
		t.Errorf("expected the racing row to be updated, got %+v", got)
	}
}

func TestPurge_Batches(t *testing.T) {
	repo := newMockRepo()
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	svc := NewService(repo, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		repo.rows = append(repo.rows, &domain.MailLog{Recipient: "old@x.com", CreatedAt: now.AddDate(0, 0, -40)})
	}
	repo.rows = append(repo.rows, &domain.MailLog{Recipient: "new@x.com", CreatedAt: now.AddDate(0, 0, -1)})

	n, err := svc.Purge(ctx, 30*24*time.Hour, 2)
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if n != 5 {
		t.Errorf("purged %d, want 5", n)
	}
	if len(repo.deletes) != 3 {
		t.Errorf("expected 3 batches, got %v", repo.deletes)
	}
	if len(repo.rows) != 1 {
		t.Errorf("expected 1 row left, got %d", len(repo.rows))
	}

	if n, _ := svc.Purge(ctx, 0, 2); n != 0 {
		t.Error("zero retention must purge nothing")
	}
}
