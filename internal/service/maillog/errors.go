package maillog

import "errors"

// Sentinel errors for the mail log service layer.
var (
	ErrNotFound = errors.New("mail log entry not found")

	// ErrDuplicateMessageID is returned by Repository.Create when another
	// row already carries the same message id.
	ErrDuplicateMessageID = errors.New("duplicate message id")
)
