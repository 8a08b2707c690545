package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/mailguard/internal/domain"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestVerdictRecorder(t *testing.T) {
	before := counterValue(t, Verdicts.WithLabelValues("blocked"))

	VerdictRecorder{}.StatusChanged(context.Background(), &domain.Validation{Status: domain.StatusBlocked})

	assert.Equal(t, before+1, counterValue(t, Verdicts.WithLabelValues("blocked")))
}

func TestHandler_ExposesCollectors(t *testing.T) {
	Intercepted.WithLabelValues("allowed").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mailguard_send_intercepted_total")
}
