package api

import (
	"net/http"

	"github.com/ignite/mailguard/internal/domain"
	"github.com/ignite/mailguard/internal/pkg/httputil"
	"github.com/ignite/mailguard/internal/service/maillog"
)

// ListMailLogs returns send log rows, newest first.
//
//	GET /api/mail-logs?scope=&recipient=&sender=&owner_kind=&owner_id=&limit=&offset=
func (h *Handlers) ListMailLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	scope := maillog.Scope(q.Get("scope"))
	switch scope {
	case maillog.ScopeAll, maillog.ScopeSuccessful, maillog.ScopeFailed, maillog.ScopePending:
	default:
		httputil.BadRequest(w, "scope must be successful, failed or pending")
		return
	}
	if q.Get("owner_id") != "" && q.Get("owner_kind") == "" {
		httputil.BadRequest(w, "owner_id requires owner_kind")
		return
	}

	limit, offset := pagination(r)
	rows, total, err := h.logs.List(r.Context(), maillog.ListFilter{
		Scope:     scope,
		Recipient: q.Get("recipient"),
		Sender:    q.Get("sender"),
		OwnerKind: q.Get("owner_kind"),
		OwnerID:   q.Get("owner_id"),
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if rows == nil {
		rows = []domain.MailLog{}
	}
	httputil.OK(w, map[string]any{
		"mail_logs": rows,
		"total":     total,
		"limit":     limit,
		"offset":    offset,
	})
}
