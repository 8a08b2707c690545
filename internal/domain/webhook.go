package domain

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// EventKind is the provider's event type string.
type EventKind string

const (
	EventDelivery EventKind = "delivery"
	EventOpen     EventKind = "open"
	EventClick    EventKind = "click"
	EventBounce   EventKind = "bounce"
	EventSpam     EventKind = "spam"
	EventReject   EventKind = "reject"
)

// WebhookEvent is one element of a provider webhook batch. Only the fields
// used for reconciliation are decoded, each on its own: a field of an
// unexpected type is dropped without losing the rest of the event.
type WebhookEvent struct {
	Email          string       `json:"email"`
	Event          EventKind    `json:"event"`
	MessageID      string       `json:"message_id,omitempty"`
	Category       string       `json:"category,omitempty"`
	Timestamp      int64        `json:"timestamp,omitempty"`
	SendingStream  string       `json:"sending_stream,omitempty"`
	ResponseCode   ResponseCode `json:"response_code,omitempty"`
	Response       string       `json:"response,omitempty"`
	Reason         string       `json:"reason,omitempty"`
	BounceCategory string       `json:"bounce_category,omitempty"`
}

// UnmarshalJSON decodes an event object field by field. It fails only when
// the element is not a JSON object.
func (e *WebhookEvent) UnmarshalJSON(b []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	*e = WebhookEvent{
		Email:          stringField(fields["email"]),
		Event:          EventKind(stringField(fields["event"])),
		MessageID:      scalarField(fields["message_id"]),
		Category:       stringField(fields["category"]),
		Timestamp:      unixField(fields["timestamp"]),
		SendingStream:  stringField(fields["sending_stream"]),
		Response:       stringField(fields["response"]),
		Reason:         stringField(fields["reason"]),
		BounceCategory: stringField(fields["bounce_category"]),
	}
	if raw, ok := fields["response_code"]; ok {
		var c ResponseCode
		if err := c.UnmarshalJSON(raw); err == nil {
			e.ResponseCode = c
		}
	}
	return nil
}

// stringField returns raw as a string, or "" when it is not a JSON string.
func stringField(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

// scalarField accepts a string or a number.
func scalarField(raw json.RawMessage) string {
	if s := stringField(raw); s != "" {
		return s
	}
	var n json.Number
	if len(raw) == 0 || json.Unmarshal(raw, &n) != nil {
		return ""
	}
	return n.String()
}

// unixField accepts seconds as a number or numeric string, or an RFC 3339
// time. Anything else is zero.
func unixField(raw json.RawMessage) int64 {
	v := scalarField(raw)
	if v == "" {
		return 0
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return int64(f)
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.Unix()
	}
	return 0
}

// ResponseCode is an SMTP-style code the provider sends either as a JSON
// number or as a string.
type ResponseCode string

// UnmarshalJSON accepts 550, "550" and null.
func (c *ResponseCode) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*c = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = ResponseCode(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	if i, err := n.Int64(); err == nil {
		*c = ResponseCode(strconv.FormatInt(i, 10))
		return nil
	}
	*c = ResponseCode(n.String())
	return nil
}

// EventOutcome describes how an event kind updates the validation cache.
type EventOutcome struct {
	Status         ValidationStatus
	DefaultCode    string
	FallbackReason string
}

// eventOutcomes is the closed dispatch table. Kinds absent from it are
// ignored by reconciliation.
var eventOutcomes = map[EventKind]EventOutcome{
	EventDelivery: {StatusValid, CodeOK, "Email delivered successfully"},
	EventOpen:     {StatusValid, CodeOK, "Email opened"},
	EventClick:    {StatusValid, CodeOK, "Email link clicked"},
	EventBounce:   {StatusInvalid, CodeRejected, "Email bounced"},
	EventSpam:     {StatusInvalid, CodeBadRequest, "Marked as spam"},
	EventReject:   {StatusInvalid, "450", "Email rejected"},
}

// Outcome returns the table entry for k and whether k is handled.
func (k EventKind) Outcome() (EventOutcome, bool) {
	o, ok := eventOutcomes[k]
	return o, ok
}

// CodeFor returns the event's response code or the kind's default.
func (e WebhookEvent) CodeFor(o EventOutcome) string {
	if e.ResponseCode != "" {
		return string(e.ResponseCode)
	}
	return o.DefaultCode
}

// ReasonFor picks the provider response, then the provider reason, then the
// fallback text for the event's kind.
func (e WebhookEvent) ReasonFor(o EventOutcome) string {
	if e.Response != "" {
		return e.Response
	}
	if e.Reason != "" {
		return e.Reason
	}
	return o.FallbackReason
}

// StatusChange is published after a webhook event updates an address.
type StatusChange struct {
	Email      string           `json:"email"`
	Status     ValidationStatus `json:"status"`
	Code       string           `json:"code"`
	Reason     string           `json:"reason"`
	MessageID  string           `json:"message_id,omitempty"`
	Event      EventKind        `json:"event"`
	OccurredAt time.Time        `json:"occurred_at"`
}
