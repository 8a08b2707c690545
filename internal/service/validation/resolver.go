package validation

import (
	"context"
	"net"
	"time"
)

// Resolver is the DNS surface the validator needs. *net.Resolver
// satisfies it.
type Resolver interface {
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// timeoutResolver bounds every lookup with its own deadline.
type timeoutResolver struct {
	r       Resolver
	timeout time.Duration
}

// WithLookupTimeout wraps r so each lookup gets at most timeout.
func WithLookupTimeout(r Resolver, timeout time.Duration) Resolver {
	if timeout <= 0 {
		return r
	}
	return &timeoutResolver{r: r, timeout: timeout}
}

func (t *timeoutResolver) LookupMX(ctx context.Context, name string) ([]*net.MX, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.r.LookupMX(ctx, name)
}

func (t *timeoutResolver) LookupHost(ctx context.Context, host string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.r.LookupHost(ctx, host)
}
