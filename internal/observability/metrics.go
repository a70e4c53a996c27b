// ABOUTME: Prometheus metrics for sessions, turns, stream events, tools and model calls
// ABOUTME: Metrics register on a caller-supplied registry; a nil *Metrics records nothing

package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects pricewise metrics.
//
// Usage:
//
//	reg := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(reg)
//	metrics.ToolExecuted("search_product", "success", time.Since(start))
type Metrics struct {
	// SessionsCreated counts sessions by origin.
	// Labels: origin (created|rehydrated)
	SessionsCreated *prometheus.CounterVec

	// Turns counts conversation turns.
	// Labels: kind (message|approval), outcome (finished|paused|error)
	Turns *prometheus.CounterVec

	// StreamEvents counts events written to client streams.
	// Labels: kind
	StreamEvents *prometheus.CounterVec

	// Approvals counts approval decisions.
	// Labels: decision (approved|denied)
	Approvals *prometheus.CounterVec

	// ToolExecutions counts tool invocations.
	// Labels: tool, status (success|error|suspended|denied)
	ToolExecutions *prometheus.CounterVec

	// ToolDuration measures tool execution time in seconds.
	// Labels: tool
	ToolDuration *prometheus.HistogramVec

	// LLMRequests counts model calls.
	// Labels: provider, model, status (success|error)
	LLMRequests *prometheus.CounterVec

	// LLMDuration measures model call latency in seconds.
	// Labels: provider, model
	LLMDuration *prometheus.HistogramVec

	// Compactions counts history compactions.
	Compactions prometheus.Counter

	// HTTPRequests counts HTTP requests.
	// Labels: method, route, status_code
	HTTPRequests *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewMetrics registers all metrics on reg.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SessionsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pricewise_sessions_total",
			Help: "Sessions registered, by origin",
		}, []string{"origin"}),
		Turns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pricewise_turns_total",
			Help: "Conversation turns by kind and outcome",
		}, []string{"kind", "outcome"}),
		StreamEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pricewise_stream_events_total",
			Help: "Events written to client streams",
		}, []string{"kind"}),
		Approvals: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pricewise_approvals_total",
			Help: "Approval decisions received",
		}, []string{"decision"}),
		ToolExecutions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pricewise_tool_executions_total",
			Help: "Tool invocations by tool and status",
		}, []string{"tool", "status"}),
		ToolDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pricewise_tool_duration_seconds",
			Help:    "Tool execution time",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}, []string{"tool"}),
		LLMRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pricewise_llm_requests_total",
			Help: "Model calls by provider, model and status",
		}, []string{"provider", "model", "status"}),
		LLMDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pricewise_llm_request_duration_seconds",
			Help:    "Model call latency",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider", "model"}),
		Compactions: f.NewCounter(prometheus.CounterOpts{
			Name: "pricewise_compactions_total",
			Help: "History compactions performed before a model call",
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pricewise_http_requests_total",
			Help: "HTTP requests by method, route and status code",
		}, []string{"method", "route", "status_code"}),
		gatherer: reg,
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// SessionCreated records a new or rehydrated session.
func (m *Metrics) SessionCreated(rehydrated bool) {
	if m == nil {
		return
	}
	origin := "created"
	if rehydrated {
		origin = "rehydrated"
	}
	m.SessionsCreated.WithLabelValues(origin).Inc()
}

// TurnFinished records the outcome of one turn.
func (m *Metrics) TurnFinished(kind, outcome string) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(kind, outcome).Inc()
}

// StreamEvent records one event written to a client.
func (m *Metrics) StreamEvent(kind string) {
	if m == nil {
		return
	}
	m.StreamEvents.WithLabelValues(kind).Inc()
}

// Approval records an approval decision.
func (m *Metrics) Approval(approved bool) {
	if m == nil {
		return
	}
	decision := "denied"
	if approved {
		decision = "approved"
	}
	m.Approvals.WithLabelValues(decision).Inc()
}

// ToolExecuted records one tool invocation.
func (m *Metrics) ToolExecuted(tool, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.ToolExecutions.WithLabelValues(tool, status).Inc()
	m.ToolDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// LLMRequest records one model call.
func (m *Metrics) LLMRequest(provider, model string, err error, d time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.LLMRequests.WithLabelValues(provider, model, status).Inc()
	m.LLMDuration.WithLabelValues(provider, model).Observe(d.Seconds())
}

// Compacted records one history compaction.
func (m *Metrics) Compacted() {
	if m == nil {
		return
	}
	m.Compactions.Inc()
}

// HTTPRequest records one HTTP request.
func (m *Metrics) HTTPRequest(method, route, statusCode string) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, statusCode).Inc()
}
