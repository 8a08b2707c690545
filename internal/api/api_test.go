package api

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/mailguard/internal/config"
	"github.com/ignite/mailguard/internal/domain"
	"github.com/ignite/mailguard/internal/repository/memory"
	"github.com/ignite/mailguard/internal/service/maillog"
	"github.com/ignite/mailguard/internal/service/sending"
	"github.com/ignite/mailguard/internal/service/validation"
	"github.com/ignite/mailguard/internal/service/webhook"
)

// staticResolver knows good.com only.
type staticResolver struct{}

func (staticResolver) LookupMX(_ context.Context, name string) ([]*net.MX, error) {
	if name == "good.com" {
		return []*net.MX{{Host: "mx.good.com.", Pref: 10}}, nil
	}
	return nil, &net.DNSError{Err: "no such host", Name: name, IsNotFound: true}
}

func (staticResolver) LookupHost(_ context.Context, host string) ([]string, error) {
	if host == "mx.good.com" {
		return []string{"192.0.2.1"}, nil
	}
	return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
}

type testServer struct {
	handler http.Handler
	store   *validation.Store
	logs    *maillog.Service
	outbox  *bytes.Buffer
}

func newTestServer(t *testing.T, hooks config.WebhookConfig) *testServer {
	t.Helper()
	store := validation.NewStore(memory.NewValidationRepo())
	logs := maillog.NewService(memory.NewMailLogRepo())
	v := validation.NewValidator(store, staticResolver{})
	outbox := &bytes.Buffer{}
	mailer := sending.NewMailer(sending.NewInterceptor(v, logs, sending.DefaultPolicy()), sending.NewLogTransport(outbox))
	h := NewHandlers(v, logs, webhook.NewReconciler(store, logs), mailer)
	srv := NewServer(config.ServerConfig{}, hooks, h, NewHealthChecker(nil, nil))
	return &testServer{handler: srv.Handler(), store: store, logs: logs, outbox: outbox}
}

func defaultHooks() config.WebhookConfig {
	return config.WebhookConfig{Enabled: true, MaxBodyBytes: 1 << 20}
}

func (ts *testServer) do(t *testing.T, method, target, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestWebhook_ProcessesBatch(t *testing.T) {
	ts := newTestServer(t, defaultHooks())
	body := `{"events":[
		{"email":"a@x.com","event":"delivery","message_id":"m-1"},
		{"email":"b@x.com","event":"bounce","response_code":550,"response":"user unknown"},
		{"email":"c@x.com","event":"unsubscribe"},
		"not an object"
	]}`

	rec := ts.do(t, http.MethodPost, "/webhooks/mailtrap", body, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	out := decodeBody(t, rec)
	assert.Equal(t, "success", out["status"])
	stats := out["stats"].(map[string]any)
	assert.EqualValues(t, 4, stats["total_events"])
	assert.EqualValues(t, 1, stats["valid_emails"])
	assert.EqualValues(t, 1, stats["invalid_emails"])
	assert.EqualValues(t, 2, stats["skipped"])
	assert.EqualValues(t, 3, stats["total_processed"])

	got, err := ts.store.Find(context.Background(), "b@x.com")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInvalid, got.Status)
	assert.Equal(t, "550", got.Code())
	assert.Equal(t, "user unknown", got.Reason)
}

func TestWebhook_MissingEvents(t *testing.T) {
	ts := newTestServer(t, defaultHooks())
	for _, body := range []string{`{}`, `{"events":"nope"}`, `{"events":{"email":"a@x.com"}}`, `{"events":null}`, `garbage`} {
		rec := ts.do(t, http.MethodPost, "/webhooks/mailtrap", body, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		out := decodeBody(t, rec)
		assert.Equal(t, "error", out["status"])
		assert.Equal(t, msgNoEvents, out["message"])
	}

	ctx := context.Background()
	_, n, err := ts.store.List(ctx, validation.ListFilter{})
	require.NoError(t, err)
	assert.Zero(t, n)
	_, n, err = ts.logs.List(ctx, maillog.ListFilter{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestWebhook_MistypedOptionalFieldsKeepEvent(t *testing.T) {
	ts := newTestServer(t, defaultHooks())
	body := `{"events":[
		{"email":"a@b.com","event":"bounce","message_id":"m1","response_code":550,"timestamp":"2024-01-01T00:00:00Z"},
		{"email":"c@b.com","event":"delivery","message_id":4711,"category":{"name":"welcome"},"response_code":{"x":1}}
	]}`

	rec := ts.do(t, http.MethodPost, "/webhooks/mailtrap", body, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	stats := decodeBody(t, rec)["stats"].(map[string]any)
	assert.EqualValues(t, 1, stats["valid_emails"])
	assert.EqualValues(t, 1, stats["invalid_emails"])
	assert.EqualValues(t, 0, stats["skipped"])

	ctx := context.Background()
	bounced, err := ts.store.Find(ctx, "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInvalid, bounced.Status)
	assert.Equal(t, "550", bounced.Code())

	delivered, err := ts.store.Find(ctx, "c@b.com")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusValid, delivered.Status)
	assert.Equal(t, "200", delivered.Code())

	m1, err := ts.logs.Find(ctx, "m1")
	require.NoError(t, err)
	require.NotNil(t, m1.StatusCode)
	assert.Equal(t, "550", *m1.StatusCode)

	m2, err := ts.logs.Find(ctx, "4711")
	require.NoError(t, err)
	require.NotNil(t, m2.StatusCode)
	assert.Equal(t, "200", *m2.StatusCode)
}

func TestWebhook_EmptyList(t *testing.T) {
	ts := newTestServer(t, defaultHooks())
	rec := ts.do(t, http.MethodPost, "/webhooks/mailtrap", `{"events":[]}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decodeBody(t, rec)["stats"].(map[string]any)
	assert.EqualValues(t, 0, stats["total_events"])
}

func TestWebhook_Signature(t *testing.T) {
	hooks := defaultHooks()
	hooks.VerifySignature = true
	hooks.Secret = "s3cret"
	ts := newTestServer(t, hooks)
	body := `{"events":[{"email":"a@x.com","event":"open"}]}`

	rec := ts.do(t, http.MethodPost, "/webhooks/mailtrap", body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	bad := http.Header{SignatureHeader: {hex.EncodeToString(sign("other", []byte(body)))}}
	rec = ts.do(t, http.MethodPost, "/webhooks/mailtrap", body, bad)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	good := http.Header{SignatureHeader: {"sha256=" + hex.EncodeToString(sign("s3cret", []byte(body)))}}
	rec = ts.do(t, http.MethodPost, "/webhooks/mailtrap", body, good)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	ok, err := ts.store.IsValid(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWebhook_BodyLimit(t *testing.T) {
	hooks := defaultHooks()
	hooks.MaxBodyBytes = 32
	ts := newTestServer(t, hooks)

	body := `{"events":[{"email":"someone@example.com","event":"delivery"}]}`
	rec := ts.do(t, http.MethodPost, "/webhooks/mailtrap", body, nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestWebhook_DisabledIsNotMounted(t *testing.T) {
	ts := newTestServer(t, config.WebhookConfig{})
	rec := ts.do(t, http.MethodPost, "/webhooks/mailtrap", `{"events":[]}`, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestValidations_GetAndMark(t *testing.T) {
	ts := newTestServer(t, defaultHooks())

	rec := ts.do(t, http.MethodGet, "/api/validations/nobody@x.com", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/validations/Spam@X.com/block", `{"reason":"manual","code":"550"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decodeBody(t, rec)
	assert.Equal(t, "spam@x.com", out["email"])
	assert.Equal(t, "blocked", out["status"])

	blocked, err := ts.store.IsBlocked(context.Background(), "spam@x.com")
	require.NoError(t, err)
	assert.True(t, blocked)

	rec = ts.do(t, http.MethodPost, "/api/validations/spam@x.com/valid", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out = decodeBody(t, rec)
	assert.Equal(t, "valid", out["status"])
	assert.Equal(t, domain.ReasonAPIValidated, out["reason"])
	assert.Equal(t, "200", out["status_code"])

	rec = ts.do(t, http.MethodGet, "/api/validations/spam%40x.com", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "valid", decodeBody(t, rec)["status"])
}

// markingProvider accepts addresses at good.com and records the verdict.
type markingProvider struct {
	store *validation.Store
	calls []string
}

func (p *markingProvider) Check(ctx context.Context, email string) (bool, error) {
	p.calls = append(p.calls, email)
	if domain.DomainOf(domain.NormalizeEmail(email)) == "good.com" {
		_, err := p.store.MarkValid(ctx, email, "", "")
		return err == nil, err
	}
	_, err := p.store.MarkInvalid(ctx, email, "rejected by provider", "422")
	return false, err
}

func TestValidations_Verify(t *testing.T) {
	ts := newTestServer(t, defaultHooks())
	rec := ts.do(t, http.MethodPost, "/api/validations/a@good.com/verify", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "route needs a provider")

	store := validation.NewStore(memory.NewValidationRepo())
	v := validation.NewValidator(store, staticResolver{})
	h := NewHandlers(v, maillog.NewService(memory.NewMailLogRepo()), nil, nil)
	p := &markingProvider{store: store}
	h.SetProvider(p)
	ts.handler = NewServer(config.ServerConfig{}, defaultHooks(), h, NewHealthChecker(nil, nil)).Handler()

	rec = ts.do(t, http.MethodPost, "/api/validations/A@good.com/verify", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decodeBody(t, rec)
	assert.Equal(t, "a@good.com", out["email"])
	assert.Equal(t, true, out["accepted"])
	assert.Equal(t, "valid", out["validation"].(map[string]any)["status"])

	rec = ts.do(t, http.MethodPost, "/api/validations/x@other.com/verify", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out = decodeBody(t, rec)
	assert.Equal(t, false, out["accepted"])
	assert.Equal(t, "invalid", out["validation"].(map[string]any)["status"])
	assert.Len(t, p.calls, 2)
}

func TestValidations_List(t *testing.T) {
	ts := newTestServer(t, defaultHooks())
	ctx := context.Background()
	_, err := ts.store.MarkInvalid(ctx, "a@x.com", "bounced", "550")
	require.NoError(t, err)
	_, err = ts.store.MarkValid(ctx, "b@x.com", "", "")
	require.NoError(t, err)

	rec := ts.do(t, http.MethodGet, "/api/validations?status=invalid", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	out := decodeBody(t, rec)
	assert.EqualValues(t, 1, out["total"])
	assert.Len(t, out["validations"], 1)

	rec = ts.do(t, http.MethodGet, "/api/validations?status=unknown", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestValidations_Bulk(t *testing.T) {
	ts := newTestServer(t, defaultHooks())
	_, err := ts.store.MarkValid(context.Background(), "known@good.com", "", "")
	require.NoError(t, err)

	rec := ts.do(t, http.MethodPost, "/api/validations/bulk",
		`{"emails":["known@good.com","new@good.com","x@nowhere.test"],"validate_missing":true}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res validation.BulkResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 2, res.Valid)
	assert.Equal(t, 1, res.Invalid)
	assert.Equal(t, "blocked", res.Details["x@nowhere.test"].Status)
	assert.Equal(t, domain.ReasonNoMX, res.Details["x@nowhere.test"].Reason)

	rec = ts.do(t, http.MethodPost, "/api/validations/bulk", `{"emails":[]}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMailLogs_List(t *testing.T) {
	ts := newTestServer(t, defaultHooks())
	ctx := context.Background()
	require.NoError(t, ts.logs.Create(ctx, &domain.MailLog{
		MessageID:  domain.StringPtr("ok-1"),
		Recipient:  "a@x.com",
		StatusCode: domain.StringPtr("200"),
	}))
	require.NoError(t, ts.logs.Create(ctx, &domain.MailLog{
		MessageID:  domain.StringPtr("bad-1"),
		Recipient:  "b@x.com",
		StatusCode: domain.StringPtr("550"),
	}))

	rec := ts.do(t, http.MethodGet, "/api/mail-logs?scope=failed", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decodeBody(t, rec)
	assert.EqualValues(t, 1, out["total"])
	rows := out["mail_logs"].([]any)
	require.Len(t, rows, 1)
	assert.Equal(t, "b@x.com", rows[0].(map[string]any)["recipient"])

	rec = ts.do(t, http.MethodGet, "/api/mail-logs?scope=weird", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/mail-logs?owner_id=7", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, defaultHooks())
	rec := ts.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, bytes.Contains(rec.Body.Bytes(), []byte("go_goroutines")))
}

func TestSendMessage_FansOutAndReportsBlocked(t *testing.T) {
	ts := newTestServer(t, defaultHooks())
	ctx := context.Background()
	_, err := ts.store.MarkBlocked(ctx, "bad@blocked.test", "complained", "550")
	require.NoError(t, err)

	rec := ts.do(t, http.MethodPost, "/api/messages", `{
		"from":"app@good.com",
		"to":["ok@good.com","bad@blocked.test"],
		"subject":"Hello",
		"text":"hi there",
		"headers":{"X-Mail-Type":"welcome"}
	}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	out := decodeBody(t, rec)
	assert.EqualValues(t, 1, out["sent"])
	assert.EqualValues(t, 2, out["total"])
	results := out["results"].([]any)
	first := results[0].(map[string]any)
	second := results[1].(map[string]any)
	assert.Equal(t, "sent", first["status"])
	assert.NotEmpty(t, first["message_id"])
	assert.Equal(t, "blocked", second["status"])
	assert.Equal(t, "complained", second["reason"])

	assert.Contains(t, ts.outbox.String(), "To: ok@good.com")
	assert.NotContains(t, ts.outbox.String(), "bad@blocked.test")

	row, err := ts.logs.Find(ctx, first["message_id"].(string))
	require.NoError(t, err)
	assert.Equal(t, "200", *row.StatusCode)
}

func TestSendMessage_RequiresRecipientAndBody(t *testing.T) {
	ts := newTestServer(t, defaultHooks())
	rec := ts.do(t, http.MethodPost, "/api/messages", `{"to":[" "],"text":"x"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = ts.do(t, http.MethodPost, "/api/messages", `{"to":["a@good.com"]}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
