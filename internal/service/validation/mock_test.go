package validation

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ignite/mailguard/internal/domain"
)

// mockRepo is an in-memory repository for testing.
type mockRepo struct {
	mu     sync.RWMutex
	store  map[string]*domain.Validation
	nextID int64
}

func newMockRepo() *mockRepo {
	return &mockRepo{store: make(map[string]*domain.Validation)}
}

func (m *mockRepo) Find(_ context.Context, email string) (*domain.Validation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.store[email]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (m *mockRepo) FindMany(_ context.Context, emails []string) ([]domain.Validation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Validation
	for _, e := range emails {
		if v, ok := m.store[e]; ok {
			out = append(out, *v)
		}
	}
	return out, nil
}

func (m *mockRepo) Upsert(_ context.Context, v *domain.Validation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.store[v.Email]; ok {
		v.ID = old.ID
		v.CreatedAt = old.CreatedAt
	} else {
		m.nextID++
		v.ID = m.nextID
		v.CreatedAt = v.LastCheckedAt
	}
	v.UpdatedAt = v.LastCheckedAt
	cp := *v
	m.store[v.Email] = &cp
	return nil
}

func (m *mockRepo) Match(_ context.Context, email, dom string, status domain.ValidationStatus, since time.Time) (*domain.Validation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ok := func(v *domain.Validation) bool {
		return v.Status == status && (since.IsZero() || v.LastCheckedAt.After(since))
	}
	if v, found := m.store[email]; found && ok(v) {
		cp := *v
		return &cp, nil
	}
	if dom == "" {
		return nil, ErrNotFound
	}
	for _, v := range m.store {
		if v.Domain == dom && ok(v) {
			cp := *v
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockRepo) List(_ context.Context, f ListFilter) ([]domain.Validation, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Validation
	for _, v := range m.store {
		if f.Status != "" && string(v.Status) != f.Status {
			continue
		}
		out = append(out, *v)
	}
	return out, len(out), nil
}

func (m *mockRepo) count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.store)
}

// fakeResolver answers from fixed tables. Unknown names are NXDOMAIN.
type fakeResolver struct {
	mx      map[string][]*net.MX
	hosts   map[string][]string
	mxCalls atomic.Int32
	delay   time.Duration
}

func (f *fakeResolver) LookupMX(ctx context.Context, name string) ([]*net.MX, error) {
	f.mxCalls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	mx, ok := f.mx[name]
	if !ok {
		return nil, &net.DNSError{Err: "no such host", Name: name, IsNotFound: true}
	}
	return mx, nil
}

func (f *fakeResolver) LookupHost(ctx context.Context, host string) ([]string, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	addrs, ok := f.hosts[host]
	if !ok {
		return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
	}
	return addrs, nil
}

// goodResolver knows example.com with a resolvable MX.
func goodResolver() *fakeResolver {
	return &fakeResolver{
		mx: map[string][]*net.MX{
			"example.com":   {{Host: "mx1.example.com.", Pref: 10}},
			"dangling.com":  {{Host: "mx.dangling.com.", Pref: 10}},
			"echo.com":      {{Host: "mx.echo.com.", Pref: 10}},
			"nullmx.com":    {{Host: ".", Pref: 0}},
			"secondary.com": {{Host: "down.secondary.com.", Pref: 10}, {Host: "up.secondary.com.", Pref: 20}},
		},
		hosts: map[string][]string{
			"mx1.example.com":  {"192.0.2.10"},
			"mx.echo.com":      {"mx.echo.com"},
			"up.secondary.com": {"2001:db8::1"},
		},
	}
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock { return &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
