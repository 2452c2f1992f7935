package evaluator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the evaluator's Prometheus collectors. A nil *Metrics
// records nothing.
type Metrics struct {
	passes       *prometheus.CounterVec
	passDuration prometheus.Histogram
	triggered    prometheus.Counter
	rulesSkipped *prometheus.CounterVec
	deliveries   *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pitchwatch",
			Name:      "passes_total",
			Help:      "Evaluation passes by result.",
		}, []string{"result"}),
		passDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pitchwatch",
			Name:      "pass_duration_seconds",
			Help:      "Wall time of completed evaluation passes.",
			Buckets:   prometheus.DefBuckets,
		}),
		triggered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pitchwatch",
			Name:      "rules_triggered_total",
			Help:      "Rules whose threshold was breached.",
		}),
		rulesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pitchwatch",
			Name:      "rules_skipped_total",
			Help:      "Rules skipped during a pass by reason.",
		}, []string{"reason"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pitchwatch",
			Name:      "deliveries_total",
			Help:      "Notification attempts by channel and outcome.",
		}, []string{"channel", "status"}),
	}
	reg.MustRegister(m.passes, m.passDuration, m.triggered, m.rulesSkipped, m.deliveries)
	return m
}

func (m *Metrics) pass(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.passes.WithLabelValues(result).Inc()
	m.passDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) ruleTriggered() {
	if m == nil {
		return
	}
	m.triggered.Inc()
}

func (m *Metrics) ruleSkipped(reason string) {
	if m == nil {
		return
	}
	m.rulesSkipped.WithLabelValues(reason).Inc()
}

func (m *Metrics) delivery(channel, status string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(channel, status).Inc()
}
