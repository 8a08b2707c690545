package sending

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
)

// Transport delivers one envelope. It returns the provider's own message
// id when the provider reports one.
type Transport interface {
	Send(ctx context.Context, env *Envelope) (string, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, env *Envelope) (string, error)

// Send calls f.
func (f TransportFunc) Send(ctx context.Context, env *Envelope) (string, error) { return f(ctx, env) }

// LogTransport writes envelopes to a writer instead of delivering them.
// Used in development and by the CLI dry-run.
type LogTransport struct {
	mu  sync.Mutex
	out io.Writer
}

// NewLogTransport writes to w, or stdout when w is nil.
func NewLogTransport(w io.Writer) *LogTransport {
	if w == nil {
		w = os.Stdout
	}
	return &LogTransport{out: w}
}

// Send prints the headers and text body of env.
func (t *LogTransport) Send(_ context.Context, env *Envelope) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\nTo: %s\r\nSubject: %s\r\n", env.From, env.To, env.Subject)

	keys := make([]string, 0, len(env.Headers))
	for k := range env.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\r\n", k, env.Headers[k])
	}
	b.WriteString("\r\n")
	if env.Text != "" {
		b.WriteString(env.Text)
	} else {
		b.WriteString(env.HTML)
	}
	b.WriteString("\r\n.\r\n")

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := io.WriteString(t.out, b.String()); err != nil {
		return "", fmt.Errorf("log transport: %w", err)
	}
	return env.MessageID(), nil
}
