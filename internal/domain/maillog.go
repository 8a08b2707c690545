package domain

import "time"

// Header names used to correlate a message with its log row.
const (
	HeaderMessageID = "X-Message-ID"
	HeaderMailType  = "X-Mail-Type"
	HeaderModel     = "X-Mail-Model"
	HeaderModelID   = "X-Mail-Model-ID"
)

// KindWebhook is the Kind of rows created by webhook reconciliation when
// no send attempt was on record.
const KindWebhook = "webhook"

// OwnerRef is a weak reference to the business entity a message was sent
// on behalf of. It is never dereferenced by mailguard.
type OwnerRef struct {
	Kind string `json:"kind" db:"model_type"`
	ID   string `json:"id" db:"model_id"`
}

// MailLog is one outbound send attempt (mail_logs).
type MailLog struct {
	ID           int64     `json:"id" db:"id"`
	MessageID    *string   `json:"message_id,omitempty" db:"message_id"`
	Sender       *string   `json:"sender,omitempty" db:"sender"`
	Recipient    string    `json:"recipient" db:"recipient"`
	Subject      string    `json:"subject" db:"subject"`
	StatusCode   *string   `json:"status_code,omitempty" db:"status_code"`
	ErrorMessage *string   `json:"error_message,omitempty" db:"error_message"`
	SourceFile   *string   `json:"source_file,omitempty" db:"source_file"`
	SourceLine   *int      `json:"source_line,omitempty" db:"source_line"`
	Kind         *string   `json:"kind,omitempty" db:"type"`
	Owner        *OwnerRef `json:"owner,omitempty"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Pending reports whether no outcome has been recorded yet.
func (m *MailLog) Pending() bool { return m.StatusCode == nil }

// Successful reports whether the recorded outcome is "200".
func (m *MailLog) Successful() bool {
	return m.StatusCode != nil && *m.StatusCode == CodeOK
}

// Failed reports whether an outcome other than "200" was recorded.
func (m *MailLog) Failed() bool {
	return m.StatusCode != nil && *m.StatusCode != CodeOK
}
