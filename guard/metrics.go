package guard

import "github.com/prometheus/client_golang/prometheus"

const (
	stageCORS      = "cors"
	stageCSRF      = "csrf"
	stageRateLimit = "ratelimit"
)

// Metrics counts guard decisions by stage and outcome.
type Metrics struct {
	decisions *prometheus.CounterVec
}

// NewMetrics registers the guard counters with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "postcraft",
			Subsystem: "guard",
			Name:      "decisions_total",
			Help:      "Guard stage decisions by stage and outcome.",
		}, []string{"stage", "outcome"}),
	}
	reg.MustRegister(m.decisions)
	return m
}

func (m *Metrics) observe(stage, outcome string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(stage, outcome).Inc()
}
