package sending

import (
	"strings"

	"github.com/ignite/mailguard/internal/domain"
	"github.com/ignite/mailguard/internal/service/maillog"
)

// Headers holds extra message headers. Lookups ignore case.
type Headers map[string]string

// Get returns the value for name and whether it is set.
func (h Headers) Get(name string) (string, bool) {
	if v, ok := h[name]; ok {
		return v, true
	}
	for k, v := range h {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// Set replaces every case variant of name with one value.
func (h Headers) Set(name, value string) {
	h.Del(name)
	h[name] = value
}

// Del removes every case variant of name.
func (h Headers) Del(name string) {
	for k := range h {
		if strings.EqualFold(k, name) {
			delete(h, k)
		}
	}
}

// Message is what applications hand to Mailer.Send.
type Message struct {
	From    string
	To      []string
	Subject string
	Text    string
	HTML    string
	Headers Headers
	// Source is the call site recorded on log rows. Mailer fills it from
	// the caller's frame when left empty.
	Source maillog.Source
}

// Envelope is one message bound for a single recipient.
type Envelope struct {
	From    string
	To      string
	Subject string
	Text    string
	HTML    string
	Headers Headers
	Source  maillog.Source
}

// MessageID returns the correlation header, if any.
func (e *Envelope) MessageID() string {
	if e.Headers == nil {
		return ""
	}
	v, _ := e.Headers.Get(domain.HeaderMessageID)
	return strings.TrimSpace(v)
}

// header returns a trimmed header value or nil.
func (e *Envelope) header(name string) *string {
	if e.Headers == nil {
		return nil
	}
	v, ok := e.Headers.Get(name)
	if !ok {
		return nil
	}
	return domain.StringPtr(strings.TrimSpace(v))
}

// logEntry builds the mail log row for this envelope from its headers.
func (e *Envelope) logEntry() *domain.MailLog {
	m := &domain.MailLog{
		Sender:    domain.StringPtr(e.From),
		Recipient: e.To,
		Subject:   e.Subject,
		Kind:      e.header(domain.HeaderMailType),
	}
	if kind := e.header(domain.HeaderModel); kind != nil {
		owner := &domain.OwnerRef{Kind: *kind}
		if id := e.header(domain.HeaderModelID); id != nil {
			owner.ID = *id
		}
		m.Owner = owner
	}
	return m
}

// split builds one envelope per recipient, each with its own header map.
func (m *Message) split() []*Envelope {
	out := make([]*Envelope, 0, len(m.To))
	for _, to := range m.To {
		h := make(Headers, len(m.Headers)+1)
		for k, v := range m.Headers {
			h[k] = v
		}
		out = append(out, &Envelope{
			From:    m.From,
			To:      strings.TrimSpace(to),
			Subject: m.Subject,
			Text:    m.Text,
			HTML:    m.HTML,
			Headers: h,
			Source:  m.Source,
		})
	}
	return out
}
