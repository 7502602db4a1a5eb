package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects the server's Prometheus metrics: tool dispatch
// latency and outcomes, HTTP request timing, and session/readiness
// gauges. All metrics register with the default registry and are served
// from the /metrics endpoint.
type Metrics struct {
	// ToolExecutions counts tool invocations.
	// Labels: tool, status (success|error)
	ToolExecutions *prometheus.CounterVec

	// ToolDuration measures tool dispatch time in seconds.
	// Labels: tool
	ToolDuration *prometheus.HistogramVec

	// HTTPRequestDuration measures HTTP request latency.
	// Labels: method, path, code
	HTTPRequestDuration *prometheus.HistogramVec

	// ActiveSessions tracks sessions currently held by the orchestrator.
	ActiveSessions prometheus.Gauge

	// DBReady is 1 while database connectivity is verified fresh.
	DBReady prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics.
// Call once at startup.
func NewMetrics() *Metrics {
	return &Metrics{
		ToolExecutions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aidis_tool_executions_total",
				Help: "Total tool invocations by tool and status",
			},
			[]string{"tool", "status"},
		),

		ToolDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aidis_tool_duration_seconds",
				Help:    "Tool dispatch duration in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"tool"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aidis_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "path", "code"},
		),

		ActiveSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "aidis_active_sessions",
				Help: "Sessions currently tracked in memory",
			},
		),

		DBReady: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "aidis_db_ready",
				Help: "1 when database connectivity was verified recently",
			},
		),
	}
}
