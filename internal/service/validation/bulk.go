package validation

import (
	"context"
	"time"

	"github.com/ignite/mailguard/internal/domain"
)

// StatusNotExists marks bulk entries with no stored record.
const StatusNotExists = "not_exists"

// ReasonNotFound is the detail reason for addresses with no stored record.
const ReasonNotFound = "Address not found in database"

// BulkDetail is one address in a BulkResult.
type BulkDetail struct {
	Status        string     `json:"status"`
	Reason        string     `json:"reason"`
	LastCheckedAt *time.Time `json:"last_checked_at"`
}

// BulkResult summarizes the cached status of many addresses. Invalid
// counts both invalid and blocked records. Addresses are counted once after
// normalization, so Valid+Invalid+NotExists equals Total.
type BulkResult struct {
	Valid     int                   `json:"valid"`
	Invalid   int                   `json:"invalid"`
	NotExists int                   `json:"not_exists"`
	Total     int                   `json:"total"`
	Details   map[string]BulkDetail `json:"details"`
}

// BulkStatus reports the stored verdicts for emails with one batched read.
// With validateMissing every address lacking a record is validated and
// its fresh record folded back into the result.
func (v *Validator) BulkStatus(ctx context.Context, emails []string, validateMissing bool) (*BulkResult, error) {
	records, err := v.store.FindMany(ctx, emails)
	if err != nil {
		return nil, err
	}

	res := &BulkResult{Details: make(map[string]BulkDetail, len(emails))}
	var missing []string
	for _, raw := range emails {
		email := domain.NormalizeEmail(raw)
		if _, done := res.Details[email]; done {
			continue
		}
		rec, ok := records[email]
		if !ok {
			res.NotExists++
			res.Details[email] = BulkDetail{Status: StatusNotExists, Reason: ReasonNotFound}
			missing = append(missing, email)
			continue
		}
		res.add(email, rec)
	}
	res.Total = len(res.Details)

	if !validateMissing {
		return res, nil
	}

	for _, email := range missing {
		if email == "" {
			continue
		}
		if err := v.Validate(ctx, email); err != nil && !IsValidationError(err) {
			return nil, err
		}
		rec, err := v.store.Find(ctx, email)
		if err != nil {
			return nil, err
		}
		res.NotExists--
		res.add(email, rec)
	}
	return res, nil
}

func (r *BulkResult) add(email string, rec *domain.Validation) {
	if rec.Status == domain.StatusValid {
		r.Valid++
	} else {
		r.Invalid++
	}
	checked := rec.LastCheckedAt
	r.Details[email] = BulkDetail{
		Status:        string(rec.Status),
		Reason:        rec.Reason,
		LastCheckedAt: &checked,
	}
}
