// AngelaMos | 2026
// metrics.go

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "prompt_studio"

// Recorder is the set of business counters the services emit. Nop satisfies
// it for tests and for deployments with metrics disabled.
type Recorder interface {
	PaymentSubmitted(plan, currency string, amount float64)
	PaymentDecided(decision string)
	GateDecision(allowed bool)
	Generation(kind, outcome string)
}

type Metrics struct {
	registry *prometheus.Registry

	paymentsSubmitted *prometheus.CounterVec
	paymentsDecided   *prometheus.CounterVec
	paymentAmount     *prometheus.HistogramVec
	gateDecisions     *prometheus.CounterVec
	generations       *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		paymentsSubmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "manual_payments_submitted_total",
				Help:      "Manual payments submitted for review.",
			},
			[]string{"plan"},
		),
		paymentsDecided: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "manual_payments_decided_total",
				Help:      "Manual payments approved or rejected by an admin.",
			},
			[]string{"decision"},
		),
		paymentAmount: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "manual_payment_amount",
				Help:      "Submitted manual payment amounts.",
				Buckets:   prometheus.ExponentialBuckets(100, 4, 6),
			},
			[]string{"currency"},
		),
		gateDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "usage_gate_decisions_total",
				Help:      "Usage gate outcomes for generation requests.",
			},
			[]string{"decision"},
		),
		generations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generations_total",
				Help:      "AI generation calls by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		Registry: m.registry,
	})
}

func (m *Metrics) PaymentSubmitted(plan, currency string, amount float64) {
	m.paymentsSubmitted.WithLabelValues(plan).Inc()
	m.paymentAmount.WithLabelValues(currency).Observe(amount)
}

func (m *Metrics) PaymentDecided(decision string) {
	m.paymentsDecided.WithLabelValues(decision).Inc()
}

func (m *Metrics) GateDecision(allowed bool) {
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	m.gateDecisions.WithLabelValues(decision).Inc()
}

func (m *Metrics) Generation(kind, outcome string) {
	m.generations.WithLabelValues(kind, outcome).Inc()
}

type Nop struct{}

func (Nop) PaymentSubmitted(string, string, float64) {}
func (Nop) PaymentDecided(string)                    {}
func (Nop) GateDecision(bool)                        {}
func (Nop) Generation(string, string)                {}

var (
	_ Recorder = (*Metrics)(nil)
	_ Recorder = Nop{}
)
