package observability

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestToolExecutionCounter(t *testing.T) {
	// Isolated registry so parallel packages don't collide on the
	// default one.
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "test_tool_executions_total",
			Help: "Test tool execution counter",
		},
		[]string{"tool", "status"},
	)
	registry.MustRegister(counter)

	counter.WithLabelValues("aidis_ping", "success").Inc()
	counter.WithLabelValues("aidis_ping", "success").Inc()
	counter.WithLabelValues("context_store", "error").Inc()

	expected := `
		# HELP test_tool_executions_total Test tool execution counter
		# TYPE test_tool_executions_total counter
		test_tool_executions_total{status="error",tool="context_store"} 1
		test_tool_executions_total{status="success",tool="aidis_ping"} 2
	`
	if err := testutil.CollectAndCompare(counter, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected metric value: %v", err)
	}
}

func TestActiveSessionsGauge(t *testing.T) {
	registry := prometheus.NewRegistry()
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "test_active_sessions",
		Help: "Test active sessions gauge",
	})
	registry.MustRegister(gauge)

	gauge.Inc()
	gauge.Inc()
	gauge.Dec()

	if got := testutil.ToFloat64(gauge); got != 1 {
		t.Errorf("gauge = %v, want 1", got)
	}
}

func TestToolDurationHistogram(t *testing.T) {
	registry := prometheus.NewRegistry()
	hist := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "test_tool_duration_seconds",
			Help:    "Test tool duration histogram",
			Buckets: []float64{0.01, 0.1, 1},
		},
		[]string{"tool"},
	)
	registry.MustRegister(hist)

	hist.WithLabelValues("context_search").Observe(0.05)
	hist.WithLabelValues("context_search").Observe(0.5)

	if count := testutil.CollectAndCount(hist); count != 1 {
		t.Errorf("expected 1 label combination, got %d", count)
	}
}
