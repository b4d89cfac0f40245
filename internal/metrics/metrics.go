// Package metrics exposes Prometheus collectors for refresh cycles and the
// resulting usage estimate.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/theirongolddev/burnmeter/internal/model"
)

const namespace = "burnmeter"

// Metrics holds the burnmeter collectors. It implements pipeline.Observer.
type Metrics struct {
	refreshTotal    *prometheus.CounterVec
	refreshDuration prometheus.Histogram
	usageRatio      *prometheus.GaugeVec
	usageTokens     *prometheus.GaugeVec
	scopeTier       *prometheus.GaugeVec
	cacheMultiplier prometheus.Gauge
	workSeconds     *prometheus.GaugeVec

	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		refreshTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "refresh_total",
				Help:      "Total number of refresh cycles",
			},
			[]string{"status"}, // "ok" / "error" / "dropped"
		),
		refreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Refresh cycle duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		}),
		usageRatio: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "usage_ratio",
				Help:      "Usage of the budget window, 0 to 1",
			},
			[]string{"scope"},
		),
		usageTokens: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "usage_tokens",
				Help:      "Tokens consumed in the budget window",
			},
			[]string{"scope"},
		),
		scopeTier: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "scope_tier",
				Help:      "1 for the confidence tier that produced the scope's figure, 0 otherwise",
			},
			[]string{"scope", "tier"},
		),
		cacheMultiplier: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_multiplier",
			Help:      "Ratio of total tokens to input+output tokens",
		}),
		workSeconds: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "work_seconds",
				Help:      "Estimated active work time",
			},
			[]string{"period"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"method", "path", "status"},
		),
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
	}

	reg.MustRegister(
		m.refreshTotal,
		m.refreshDuration,
		m.usageRatio,
		m.usageTokens,
		m.scopeTier,
		m.cacheMultiplier,
		m.workSeconds,
		m.httpRequestDuration,
		m.httpRequestsTotal,
	)
	return m
}

// ObserveRefresh records one refresh cycle.
func (m *Metrics) ObserveRefresh(est *model.UsageEstimate, elapsed time.Duration, err error) {
	m.refreshDuration.Observe(elapsed.Seconds())
	if err != nil || est == nil {
		m.refreshTotal.WithLabelValues("error").Inc()
		return
	}
	m.refreshTotal.WithLabelValues("ok").Inc()

	for _, s := range model.Scopes {
		u := est.Scope(s)
		m.usageRatio.WithLabelValues(s.String()).Set(u.Ratio)
		m.usageTokens.WithLabelValues(s.String()).Set(float64(u.Tokens))
		for _, t := range []model.Tier{model.TierStatistical, model.TierExactLocal, model.TierCalibratedLocal, model.TierAuthoritative} {
			v := 0.0
			if t == u.Tier {
				v = 1
			}
			m.scopeTier.WithLabelValues(s.String(), t.String()).Set(v)
		}
	}
	m.cacheMultiplier.Set(est.CacheMultiplier)
	m.workSeconds.WithLabelValues("today").Set(est.WorkSecondsToday)
	m.workSeconds.WithLabelValues("week").Set(est.WorkSecondsWeek)
}

// ObserveDropped counts a refresh request dropped by the reentrancy guard.
func (m *Metrics) ObserveDropped() {
	m.refreshTotal.WithLabelValues("dropped").Inc()
}
