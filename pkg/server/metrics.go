package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mariozechner/coding-agent/session/pkg/agent"
)

// metrics is the server's Prometheus instrumentation: tool-call counters,
// compaction counters, and an active-session gauge, per the spec's domain
// stack binding. Grounded on haasonsaas-nexus's internal/observability
// package (promauto.New*Vec registered against the default registry,
// exposed via promhttp.Handler), scoped down to the three series this
// server actually has a use for.
type metrics struct {
	toolExecutions *prometheus.CounterVec
	compactions    prometheus.Counter
	activeSessions prometheus.Gauge
}

func newMetrics() *metrics {
	return &metrics{
		toolExecutions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_tool_executions_total",
				Help: "Total number of tool executions by tool name and outcome",
			},
			[]string{"tool_name", "status"},
		),
		compactions: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "agentcore_compactions_total",
				Help: "Total number of compaction runs (manual and automatic)",
			},
		),
		activeSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "agentcore_active_sessions",
				Help: "Current number of sessions with a live in-memory agent",
			},
		),
	}
}

func (m *metrics) handler() http.Handler {
	return promhttp.Handler()
}

// observe updates counters from an agent.Event as it passes through the
// hub, so every session's websocket relay contributes to the same series.
func (m *metrics) observe(ev agent.Event) {
	switch ev.Type {
	case agent.EventToolExecutionEnd:
		status := "success"
		if ev.IsError {
			status = "error"
		}
		m.toolExecutions.WithLabelValues(ev.ToolName, status).Inc()
	case agent.EventAutoCompactEnd:
		m.compactions.Inc()
	}
}
