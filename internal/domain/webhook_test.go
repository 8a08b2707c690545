package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventKind_Outcome(t *testing.T) {
	tests := []struct {
		kind   EventKind
		status ValidationStatus
		code   string
		ok     bool
	}{
		{EventDelivery, StatusValid, "200", true},
		{EventOpen, StatusValid, "200", true},
		{EventClick, StatusValid, "200", true},
		{EventBounce, StatusInvalid, "550", true},
		{EventSpam, StatusInvalid, "400", true},
		{EventReject, StatusInvalid, "450", true},
		{"unsubscribe", "", "", false},
		{"soft_bounce", "", "", false},
		{"", "", "", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			o, ok := tt.kind.Outcome()
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.status, o.Status)
			assert.Equal(t, tt.code, o.DefaultCode)
		})
	}
}

func TestWebhookEvent_ReasonFallbackChain(t *testing.T) {
	o, _ := EventBounce.Outcome()

	e := WebhookEvent{Response: "Mailbox unavailable", Reason: "hard"}
	assert.Equal(t, "Mailbox unavailable", e.ReasonFor(o))

	e = WebhookEvent{Reason: "hard"}
	assert.Equal(t, "hard", e.ReasonFor(o))

	e = WebhookEvent{}
	assert.Equal(t, o.FallbackReason, e.ReasonFor(o))
}

func TestResponseCode_Unmarshal(t *testing.T) {
	var events []WebhookEvent
	err := json.Unmarshal([]byte(`[
		{"email":"a@b.com","event":"bounce","response_code":550},
		{"email":"a@b.com","event":"bounce","response_code":"421"},
		{"email":"a@b.com","event":"bounce","response_code":null},
		{"email":"a@b.com","event":"bounce"}
	]`), &events)
	require.NoError(t, err)
	require.Len(t, events, 4)

	o, _ := EventBounce.Outcome()
	assert.Equal(t, "550", events[0].CodeFor(o))
	assert.Equal(t, "421", events[1].CodeFor(o))
	assert.Equal(t, "550", events[2].CodeFor(o))
	assert.Equal(t, ResponseCode(""), events[3].ResponseCode)
}

func TestWebhookEvent_UnmarshalToleratesMistypedFields(t *testing.T) {
	var events []WebhookEvent
	err := json.Unmarshal([]byte(`[
		{"email":"a@b.com","event":"bounce","message_id":"m1","response_code":550,"timestamp":"2024-01-01T00:00:00Z"},
		{"email":"a@b.com","event":"open","message_id":42,"timestamp":1700000000,"category":{"x":1},"response_code":[1]},
		{"email":7,"event":"delivery","timestamp":"1700000000"}
	]`), &events)
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, "a@b.com", events[0].Email)
	assert.Equal(t, EventBounce, events[0].Event)
	assert.Equal(t, "m1", events[0].MessageID)
	assert.Equal(t, ResponseCode("550"), events[0].ResponseCode)
	assert.EqualValues(t, 1704067200, events[0].Timestamp)

	assert.Equal(t, "42", events[1].MessageID)
	assert.EqualValues(t, 1700000000, events[1].Timestamp)
	assert.Empty(t, events[1].Category)
	assert.Empty(t, events[1].ResponseCode)

	assert.Empty(t, events[2].Email)
	assert.Equal(t, EventDelivery, events[2].Event)
	assert.EqualValues(t, 1700000000, events[2].Timestamp)

	var e WebhookEvent
	assert.Error(t, json.Unmarshal([]byte(`"not an object"`), &e))
}

func TestDomainOf(t *testing.T) {
	assert.Equal(t, "example.com", DomainOf("user@example.com"))
	assert.Equal(t, "b.com", DomainOf(`"a@x"@b.com`))
	assert.Equal(t, "", DomainOf("nodomain"))
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "user@example.com", NormalizeEmail("  User@Example.COM "))
}
