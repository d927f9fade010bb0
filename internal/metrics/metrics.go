package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

const namespace = "term_agent"

// Metrics records agent activity in its own registry so tests and multiple
// sessions do not share global state.
type Metrics struct {
	registry *prometheus.Registry

	// TurnsTotal counts turns by outcome.
	TurnsTotal *prometheus.CounterVec
	// RoundsTotal counts model requests issued by the tool loop.
	RoundsTotal prometheus.Counter
	// ToolCalls counts tool executions by tool and outcome.
	ToolCalls *prometheus.CounterVec
	// ContentChars counts streamed assistant characters.
	ContentChars prometheus.Counter
	// ActiveTurns is 1 while a turn runs.
	ActiveTurns prometheus.Gauge
}

// New creates the metric set in a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		TurnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "turns_total",
				Help:      "Total number of user turns by outcome",
			},
			[]string{"outcome"},
		),
		RoundsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rounds_total",
				Help:      "Total number of model requests issued by the tool loop",
			},
		),
		ToolCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_calls_total",
				Help:      "Total number of tool calls by tool and outcome",
			},
			[]string{"tool", "outcome"},
		),
		ContentChars: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "content_chars_total",
				Help:      "Total number of streamed assistant characters",
			},
		),
		ActiveTurns: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_turns",
				Help:      "Number of turns currently running",
			},
		),
	}
}

// TurnStarted marks a turn as running.
func (m *Metrics) TurnStarted() {
	m.ActiveTurns.Inc()
}

// RoundStarted counts one model request.
func (m *Metrics) RoundStarted() {
	m.RoundsTotal.Inc()
}

// ContentStreamed adds streamed characters.
func (m *Metrics) ContentStreamed(chars int) {
	m.ContentChars.Add(float64(chars))
}

// ToolFinished records a tool call outcome (success, failure or rejected).
func (m *Metrics) ToolFinished(name, outcome string) {
	m.ToolCalls.WithLabelValues(name, outcome).Inc()
}

// TurnEnded records how a turn ended.
func (m *Metrics) TurnEnded(outcome string) {
	m.ActiveTurns.Dec()
	m.TurnsTotal.WithLabelValues(outcome).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Summary renders non-zero counters as "name{labels} value" lines.
func (m *Metrics) Summary() (string, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return "", fmt.Errorf("gather metrics: %w", err)
	}
	var lines []string
	for _, mf := range families {
		if mf.GetType() != dto.MetricType_COUNTER {
			continue
		}
		name := strings.TrimPrefix(mf.GetName(), namespace+"_")
		for _, metric := range mf.GetMetric() {
			value := metric.GetCounter().GetValue()
			if value == 0 {
				continue
			}
			lines = append(lines, fmt.Sprintf("%s%s %g", name, formatLabels(metric.GetLabel()), value))
		}
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n"), nil
}

func formatLabels(labels []*dto.LabelPair) string {
	if len(labels) == 0 {
		return ""
	}
	parts := make([]string, 0, len(labels))
	for _, l := range labels {
		parts = append(parts, fmt.Sprintf("%s=%q", l.GetName(), l.GetValue()))
	}
	return "{" + strings.Join(parts, ",") + "}"
}
