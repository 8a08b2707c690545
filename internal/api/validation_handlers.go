package api

import (
	"errors"
	"net/http"
	"net/url"
	"path"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/mailguard/internal/domain"
	"github.com/ignite/mailguard/internal/pkg/httputil"
	"github.com/ignite/mailguard/internal/service/validation"
)

const maxBulkEmails = 1000

// ListValidations returns cached verdicts, newest check first.
//
//	GET /api/validations?status=&domain=&limit=&offset=
func (h *Handlers) ListValidations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := q.Get("status")
	if status != "" && !domain.ValidationStatus(status).IsKnown() {
		httputil.BadRequest(w, "status must be valid, invalid or blocked")
		return
	}

	limit, offset := pagination(r)
	records, total, err := h.store.List(r.Context(), validation.ListFilter{
		Status: status,
		Domain: q.Get("domain"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if records == nil {
		records = []domain.Validation{}
	}
	httputil.OK(w, map[string]any{
		"validations": records,
		"total":       total,
		"limit":       limit,
		"offset":      offset,
	})
}

// GetValidation returns the stored record for one address.
//
//	GET /api/validations/{email}
func (h *Handlers) GetValidation(w http.ResponseWriter, r *http.Request) {
	email, ok := emailParam(w, r)
	if !ok {
		return
	}
	rec, err := h.store.Find(r.Context(), email)
	switch {
	case errors.Is(err, validation.ErrNotFound):
		httputil.NotFound(w, "no validation record for address")
	case err != nil:
		httputil.InternalError(w, err)
	default:
		httputil.OK(w, rec)
	}
}

type bulkRequest struct {
	Emails          []string `json:"emails"`
	ValidateMissing bool     `json:"validate_missing"`
}

// BulkValidations reports the cached status of many addresses, optionally
// validating the ones with no record.
//
//	POST /api/validations/bulk
func (h *Handlers) BulkValidations(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if len(req.Emails) == 0 {
		httputil.BadRequest(w, "emails is required")
		return
	}
	if len(req.Emails) > maxBulkEmails {
		httputil.BadRequest(w, "too many emails in one request")
		return
	}

	res, err := h.validator.BulkStatus(r.Context(), req.Emails, req.ValidateMissing)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, res)
}

type markRequest struct {
	Reason string `json:"reason"`
	Code   string `json:"code"`
}

// MarkValidation overrides the verdict for an address. The status comes
// from the last path segment.
//
//	POST /api/validations/{email}/block|invalid|valid
func (h *Handlers) MarkValidation(w http.ResponseWriter, r *http.Request) {
	email, ok := emailParam(w, r)
	if !ok {
		return
	}
	var req markRequest
	if r.ContentLength != 0 && !httputil.Decode(w, r, &req) {
		return
	}

	var (
		rec *domain.Validation
		err error
	)
	switch path.Base(r.URL.Path) {
	case "block":
		rec, err = h.store.MarkBlocked(r.Context(), email, req.Reason, req.Code)
	case "invalid":
		rec, err = h.store.MarkInvalid(r.Context(), email, req.Reason, req.Code)
	case "valid":
		rec, err = h.store.MarkValid(r.Context(), email, req.Reason, req.Code)
	default:
		httputil.NotFound(w, "unknown action")
		return
	}
	if errors.Is(err, validation.ErrEmptyAddress) {
		httputil.BadRequest(w, err.Error())
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, rec)
}

// VerifyValidation asks the provider about an address. A fresh valid or
// blocked verdict is returned without calling the provider.
//
//	POST /api/validations/{email}/verify
func (h *Handlers) VerifyValidation(w http.ResponseWriter, r *http.Request) {
	email, ok := emailParam(w, r)
	if !ok {
		return
	}
	accepted, err := h.provider.Check(r.Context(), email)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	rec, err := h.store.Find(r.Context(), email)
	if err != nil && !errors.Is(err, validation.ErrNotFound) {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{
		"email":      domain.NormalizeEmail(email),
		"accepted":   accepted,
		"validation": rec,
	})
}

func emailParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := chi.URLParam(r, "email")
	email, err := url.PathUnescape(raw)
	if err != nil || domain.NormalizeEmail(email) == "" {
		httputil.BadRequest(w, "email is required")
		return "", false
	}
	return email, true
}
