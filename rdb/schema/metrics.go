package schema

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 结构同步的 prometheus 指标
type Metrics struct {
	statements *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewMetrics 创建指标，name 为指标名前缀，为空时使用 rdbx
func NewMetrics(name string) *Metrics {
	if name == "" {
		name = "rdbx"
	}
	return &Metrics{
		statements: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: name + "_schema_statements_total",
				Help: "Total number of schema DDL statements",
			},
			[]string{"table", "kind", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    name + "_schema_reconcile_duration_seconds",
				Help:    "Duration of table reconciliation in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 30.0},
			},
			[]string{"table"},
		),
	}
}

// Register 注册到 registerer，为 nil 时使用默认 registry
func (m *Metrics) Register(registerer prometheus.Registerer) error {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{m.statements, m.duration} {
		if err := registerer.Register(c); err != nil {
			return errors.Wrap(err, "register schema metrics failed")
		}
	}
	return nil
}

func (m *Metrics) observeStatement(table string, kind StatementKind, status string) {
	if m == nil {
		return
	}
	m.statements.WithLabelValues(table, string(kind), status).Inc()
}

func (m *Metrics) observeDuration(table string, seconds float64) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(table).Observe(seconds)
}
