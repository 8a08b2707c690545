package sending

import (
	"errors"
	"fmt"
)

// ErrNoRecipients is returned for a message without recipients.
var ErrNoRecipients = errors.New("message has no recipients")

// BlockedRecipientError is the transport-level rejection for a recipient
// the validation store blocks. The message never reached the transport.
type BlockedRecipientError struct {
	Email  string
	Reason string
}

func (e *BlockedRecipientError) Error() string {
	return fmt.Sprintf("email address %s is blocked: %s", e.Email, e.Reason)
}

// IsBlocked reports whether err carries a *BlockedRecipientError.
func IsBlocked(err error) bool {
	var be *BlockedRecipientError
	return errors.As(err, &be)
}
