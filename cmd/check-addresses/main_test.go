package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/mailguard/internal/service/validation"
)

func TestReadAddresses(t *testing.T) {
	got, err := readAddresses([]string{"a@x.com"}, strings.NewReader("ignored@x.com"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a@x.com"}, got)

	got, err = readAddresses(nil, strings.NewReader("\n# comment\n b@x.com \n\nc@x.com\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"b@x.com", "c@x.com"}, got)
}

func TestPrintReport(t *testing.T) {
	checked := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	res := &validation.BulkResult{
		Valid:     1,
		NotExists: 1,
		Total:     2,
		Details: map[string]validation.BulkDetail{
			"z@x.com": {Status: validation.StatusNotExists, Reason: validation.ReasonNotFound},
			"a@x.com": {Status: "valid", Reason: "All checks passed", LastCheckedAt: &checked},
		},
	}

	var buf bytes.Buffer
	printReport(&buf, res)
	out := buf.String()

	assert.Less(t, strings.Index(out, "a@x.com"), strings.Index(out, "z@x.com"))
	assert.Contains(t, out, "2024-03-01T10:00:00Z")
	assert.Contains(t, out, "total=2 valid=1 invalid=0 not_exists=1")
}
