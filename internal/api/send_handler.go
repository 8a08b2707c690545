package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ignite/mailguard/internal/pkg/httputil"
	"github.com/ignite/mailguard/internal/service/sending"
)

type sendRequest struct {
	From    string            `json:"from"`
	To      []string          `json:"to"`
	Subject string            `json:"subject"`
	Text    string            `json:"text"`
	HTML    string            `json:"html"`
	Headers map[string]string `json:"headers"`
}

type sendResult struct {
	Recipient  string `json:"recipient"`
	Status     string `json:"status"` // sent, blocked, failed
	MessageID  string `json:"message_id,omitempty"`
	ProviderID string `json:"provider_id,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// SendMessage sends one message per recipient through the interceptor.
// Blocked and failed recipients are reported per entry; the request
// itself succeeds once every recipient was attempted.
//
//	POST /api/messages
func (h *Handlers) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	var to []string
	for _, addr := range req.To {
		if strings.TrimSpace(addr) != "" {
			to = append(to, addr)
		}
	}
	if len(to) == 0 {
		httputil.BadRequest(w, "at least one recipient is required")
		return
	}
	if req.Text == "" && req.HTML == "" {
		httputil.BadRequest(w, "text or html body is required")
		return
	}

	results, _ := h.mailer.Send(r.Context(), &sending.Message{
		From:    req.From,
		To:      to,
		Subject: req.Subject,
		Text:    req.Text,
		HTML:    req.HTML,
		Headers: sending.Headers(req.Headers),
	})

	out := make([]sendResult, 0, len(results))
	sent := 0
	for _, res := range results {
		item := sendResult{
			Recipient:  res.Recipient,
			Status:     "sent",
			MessageID:  res.MessageID,
			ProviderID: res.ProviderID,
		}
		var blocked *sending.BlockedRecipientError
		switch {
		case errors.As(res.Err, &blocked):
			item.Status = "blocked"
			item.Reason = blocked.Reason
		case res.Err != nil:
			item.Status = "failed"
			item.Reason = "delivery failed"
		default:
			sent++
		}
		out = append(out, item)
	}

	httputil.OK(w, map[string]any{
		"sent":    sent,
		"total":   len(out),
		"results": out,
	})
}
