package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RunMetrics exposes Prometheus collectors for automation runs.
type RunMetrics struct {
	runs     *prometheus.CounterVec
	cards    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	active   prometheus.Gauge
}

// MustNewRunMetrics registers the run collectors with reg. Collectors that
// are already registered are reused so the constructor can be called more
// than once against the same registry.
func MustNewRunMetrics(reg prometheus.Registerer) *RunMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &RunMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "card_runner",
			Name:      "runs_total",
			Help:      "Automation runs by terminal status.",
		}, []string{"status"}),
		cards: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "card_runner",
			Name:      "cards_total",
			Help:      "Cards attempted by the browser script, by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "card_runner",
			Name:      "run_duration_seconds",
			Help:      "Wall time of automation runs.",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"status"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "card_runner",
			Name:      "runs_active",
			Help:      "Runs currently holding a browser.",
		}),
	}

	m.runs = register(reg, m.runs)
	m.cards = register(reg, m.cards)
	m.duration = register(reg, m.duration)
	m.active = register(reg, m.active)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// RunStarted counts a run that now holds a browser.
func (m *RunMetrics) RunStarted() {
	if m == nil {
		return
	}
	m.active.Inc()
}

// RunFinished records a terminal run and the cards it produced.
func (m *RunMetrics) RunFinished(status string, elapsed time.Duration, created, failed int) {
	if m == nil {
		return
	}
	m.active.Dec()
	m.runs.WithLabelValues(status).Inc()
	m.duration.WithLabelValues(status).Observe(elapsed.Seconds())
	m.cards.WithLabelValues("created").Add(float64(created))
	m.cards.WithLabelValues("failed").Add(float64(failed))
}
