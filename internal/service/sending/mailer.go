package sending

import (
	"context"
	"errors"
	"runtime"

	"github.com/ignite/mailguard/internal/pkg/logger"
	"github.com/ignite/mailguard/internal/service/maillog"
)

// Result is the outcome for one recipient.
type Result struct {
	Recipient  string `json:"recipient"`
	MessageID  string `json:"message_id,omitempty"`
	ProviderID string `json:"provider_id,omitempty"`
	Err        error  `json:"-"`
}

// Mailer sends messages through the interceptor and a transport.
type Mailer struct {
	interceptor *Interceptor
	transport   Transport
}

// NewMailer wires the send hooks around transport.
func NewMailer(i *Interceptor, t Transport) *Mailer {
	return &Mailer{interceptor: i, transport: t}
}

// Send delivers msg to each recipient separately. Every recipient is
// attempted; the returned error joins the per-recipient failures, so a
// blocked recipient surfaces as a *BlockedRecipientError via errors.As.
func (m *Mailer) Send(ctx context.Context, msg *Message) ([]Result, error) {
	if len(msg.To) == 0 {
		return nil, ErrNoRecipients
	}
	if msg.Source.File == "" {
		if _, file, line, ok := runtime.Caller(1); ok {
			msg.Source = maillog.Source{File: file, Line: line}
		}
	}

	results := make([]Result, 0, len(msg.To))
	var errs []error
	for _, env := range msg.split() {
		res := m.deliver(ctx, env)
		if res.Err != nil {
			errs = append(errs, res.Err)
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

func (m *Mailer) deliver(ctx context.Context, env *Envelope) Result {
	res := Result{Recipient: env.To}
	if err := m.interceptor.BeforeSend(ctx, env); err != nil {
		res.Err = err
		return res
	}
	res.MessageID = env.MessageID()

	providerID, sendErr := m.transport.Send(ctx, env)
	res.ProviderID = providerID
	res.Err = sendErr

	if err := m.interceptor.AfterSend(ctx, res.MessageID, sendErr == nil, sendErr); err != nil {
		logger.Error("after send hook failed", "message_id", res.MessageID, "error", err)
	}
	return res
}
