package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

// Metrics exposes the gateway's admission instruments. A nil receiver is
// safe everywhere so tests can pass nothing.
type Metrics struct {
	authAttempts  *prometheus.CounterVec
	limiterDenied *prometheus.CounterVec
	fallbacks     *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "apikey",
			Name:      "auth_attempts_total",
			Help:      "Authentication attempts by outcome and rejection code.",
		}, []string{"outcome", "code"}),
		limiterDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "apikey",
			Name:      "admission_denied_total",
			Help:      "Admission denials by limiter.",
		}, []string{"limiter"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "apikey",
			Name:      "cache_fallback_total",
			Help:      "Times a distributed limiter fell back to process-local state.",
		}, []string{"backend"}),
	}
	reg.MustRegister(m.authAttempts, m.limiterDenied, m.fallbacks)
	return m
}

func NewDefault() *Metrics {
	return New(prometheus.DefaultRegisterer)
}

func (m *Metrics) AuthSucceeded() {
	if m == nil {
		return
	}
	m.authAttempts.WithLabelValues("success", "").Inc()
}

func (m *Metrics) AuthRejected(code string) {
	if m == nil {
		return
	}
	m.authAttempts.WithLabelValues("failure", code).Inc()
}

func (m *Metrics) AdmissionDenied(limiter string) {
	if m == nil {
		return
	}
	m.limiterDenied.WithLabelValues(limiter).Inc()
}

func (m *Metrics) FallbackActivated(backend string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(backend).Inc()
}

var Module = fx.Module("observability.metrics",
	fx.Provide(NewDefault),
)
