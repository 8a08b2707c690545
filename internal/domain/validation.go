package domain

import (
	"strings"
	"time"
)

// ValidationStatus is the deliverability verdict stored for an address.
type ValidationStatus string

const (
	StatusValid   ValidationStatus = "valid"
	StatusInvalid ValidationStatus = "invalid"
	StatusBlocked ValidationStatus = "blocked"
)

// IsKnown reports whether s is one of the three persisted statuses.
func (s ValidationStatus) IsKnown() bool {
	switch s {
	case StatusValid, StatusInvalid, StatusBlocked:
		return true
	}
	return false
}

// Reasons and codes written by the local validation pipeline.
const (
	ReasonInvalidFormat = "Invalid email format"
	ReasonNoMX          = "No valid mail server found for domain"
	ReasonMXNoIP        = "MX record does not point to a valid IP address"
	ReasonChecksPassed  = "All checks passed"
	ReasonAPIValidated  = "Email validated successfully"
	ReasonAPIFailed     = "API validation failed"
	ReasonBlocked       = "Email address is blocked"

	CodeOK         = "200"
	CodeBadRequest = "400"
	CodeServerErr  = "500"
	CodeRejected   = "550"
)

// Validation is the cached verdict for one email address (email_validations).
type Validation struct {
	ID            int64            `json:"id" db:"id"`
	Email         string           `json:"email" db:"email"`
	Domain        string           `json:"domain" db:"domain"`
	Status        ValidationStatus `json:"status" db:"status"`
	Reason        string           `json:"reason" db:"reason"`
	StatusCode    *string          `json:"status_code,omitempty" db:"status_code"`
	LastCheckedAt time.Time        `json:"last_checked_at" db:"last_checked_at"`
	CreatedAt     time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at" db:"updated_at"`
}

// Fresh reports whether the record was checked within ttl of now.
// A zero ttl means records never expire.
func (v *Validation) Fresh(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return true
	}
	return now.Sub(v.LastCheckedAt) < ttl
}

// Code returns the status code or "" when none was recorded.
func (v *Validation) Code() string {
	if v.StatusCode == nil {
		return ""
	}
	return *v.StatusCode
}

// NormalizeEmail trims and lowercases an address. Every stored email and
// every lookup key goes through this.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// DomainOf returns the substring after the last '@', or "" when there is none.
func DomainOf(email string) string {
	i := strings.LastIndex(email, "@")
	if i < 0 {
		return ""
	}
	return email[i+1:]
}

// StringPtr returns a pointer to s, or nil for the empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
