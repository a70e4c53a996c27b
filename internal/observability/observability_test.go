// ABOUTME: Tests for metrics recording and tracing setup
// ABOUTME: Uses a private Prometheus registry and the no-op tracer provider

package observability

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.SessionCreated(false)
	m.SessionCreated(true)
	m.TurnFinished("message", "paused")
	m.StreamEvent("token")
	m.StreamEvent("token")
	m.Approval(false)
	m.ToolExecuted("search_product", "success", 20*time.Millisecond)
	m.LLMRequest("openai", "gpt-4o-mini", errors.New("boom"), time.Second)
	m.Compacted()
	m.HTTPRequest("POST", "/chat/sessions", "200")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsCreated.WithLabelValues("rehydrated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Turns.WithLabelValues("message", "paused")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.StreamEvents.WithLabelValues("token")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Approvals.WithLabelValues("denied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolExecutions.WithLabelValues("search_product", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LLMRequests.WithLabelValues("openai", "gpt-4o-mini", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Compactions))
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	m.SessionCreated(false)
	m.TurnFinished("message", "finished")
	m.StreamEvent("done")
	m.Approval(true)
	m.ToolExecuted("x", "error", time.Millisecond)
	m.LLMRequest("openai", "m", nil, time.Millisecond)
	m.Compacted()
	m.HTTPRequest("GET", "/health", "200")
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.StreamEvent("done")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "pricewise_stream_events_total")
}

func TestSetupTracing_Disabled(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), TraceConfig{})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))

	ctx, span := StartSpan(context.Background(), "test", "key", "value")
	RecordError(span, errors.New("ignored by no-op span"))
	RecordError(span, nil)
	span.End()
	assert.NotNil(t, ctx)
}
