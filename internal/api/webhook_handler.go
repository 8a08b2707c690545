package api

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/ignite/mailguard/internal/domain"
	"github.com/ignite/mailguard/internal/pkg/httputil"
	"github.com/ignite/mailguard/internal/pkg/logger"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw webhook body.
const SignatureHeader = "X-Mailtrap-Signature"

const msgNoEvents = "No valid events found in webhook data"

// HandleMailtrapWebhook decodes a provider batch and hands it to the
// reconciler. Only a missing or non-list "events" field is a 400; broken
// individual events are passed through empty and counted as skipped.
//
//	POST /webhooks/mailtrap
func (h *Handlers) HandleMailtrapWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.JSON(w, http.StatusRequestEntityTooLarge, httputil.StatusResponse{
				Status: "error", Message: "Webhook body too large",
			})
			return
		}
		httputil.JSON(w, http.StatusBadRequest, httputil.StatusResponse{
			Status: "error", Message: "Could not read webhook body",
		})
		return
	}

	events, ok := decodeEvents(body)
	if !ok {
		logger.Warn("webhook: rejected batch without events", "bytes", len(body))
		httputil.JSON(w, http.StatusBadRequest, httputil.StatusResponse{
			Status: "error", Message: msgNoEvents,
		})
		return
	}

	sum := h.reconciler.Handle(r.Context(), events)
	logger.Info("webhook: batch processed",
		"total_events", sum.TotalEvents,
		"valid", sum.Valid,
		"invalid", sum.Invalid,
		"skipped", sum.Skipped,
		"processing_time_ms", sum.ProcessingTimeMs,
	)
	httputil.OK(w, httputil.StatusResponse{
		Status:  "success",
		Message: "Webhook processed",
		Stats:   sum,
	})
}

// decodeEvents returns false only when the payload has no "events" list.
func decodeEvents(body []byte) ([]domain.WebhookEvent, bool) {
	var payload struct {
		Events json.RawMessage `json:"events"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, false
	}
	var raw []json.RawMessage
	if len(payload.Events) == 0 || json.Unmarshal(payload.Events, &raw) != nil || raw == nil {
		return nil, false
	}

	events := make([]domain.WebhookEvent, len(raw))
	for i, item := range raw {
		var e domain.WebhookEvent
		if err := json.Unmarshal(item, &e); err != nil {
			continue
		}
		events[i] = e
	}
	return events, true
}

// limitBody caps the request body at n bytes.
func limitBody(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if n > 0 {
				r.Body = http.MaxBytesReader(w, r.Body, n)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// verifySignature rejects requests whose SignatureHeader is not the
// HMAC-SHA256 of the body under secret. A "sha256=" prefix is accepted.
func verifySignature(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(r.Body)
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					httputil.Error(w, http.StatusRequestEntityTooLarge, "webhook body too large")
					return
				}
				httputil.BadRequest(w, "could not read webhook body")
				return
			}

			got := strings.TrimPrefix(strings.TrimSpace(r.Header.Get(SignatureHeader)), "sha256=")
			sig, err := hex.DecodeString(got)
			if got == "" || err != nil || !hmac.Equal(sig, sign(secret, body)) {
				logger.Warn("webhook: signature mismatch", "remote_addr", r.RemoteAddr)
				httputil.Unauthorized(w, "invalid webhook signature")
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}
}

func sign(secret string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}
