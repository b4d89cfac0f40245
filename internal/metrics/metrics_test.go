package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/theirongolddev/burnmeter/internal/model"
)

func TestObserveRefresh_SetsGauges(t *testing.T) {
	m := New(prometheus.NewRegistry())

	est := &model.UsageEstimate{
		Weekly:          model.ScopeUsage{Ratio: 0.4, Tokens: 400, Tier: model.TierAuthoritative},
		Session:         model.ScopeUsage{Ratio: 0.1, Tier: model.TierExactLocal},
		CacheMultiplier: 10.5,
	}
	m.ObserveRefresh(est, 50*time.Millisecond, nil)

	if got := testutil.ToFloat64(m.usageRatio.WithLabelValues("weekly")); got != 0.4 {
		t.Errorf("usage_ratio{weekly} = %v, want 0.4", got)
	}
	if got := testutil.ToFloat64(m.scopeTier.WithLabelValues("weekly", "authoritative")); got != 1 {
		t.Errorf("scope_tier{weekly,authoritative} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.scopeTier.WithLabelValues("weekly", "exact-local")); got != 0 {
		t.Errorf("scope_tier{weekly,exact-local} = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.cacheMultiplier); got != 10.5 {
		t.Errorf("cache_multiplier = %v, want 10.5", got)
	}
	if got := testutil.ToFloat64(m.refreshTotal.WithLabelValues("ok")); got != 1 {
		t.Errorf("refresh_total{ok} = %v, want 1", got)
	}
}

func TestObserveRefresh_Error(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveRefresh(nil, time.Millisecond, errors.New("cancelled"))
	m.ObserveDropped()

	if got := testutil.ToFloat64(m.refreshTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("refresh_total{error} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.refreshTotal.WithLabelValues("dropped")); got != 1 {
		t.Errorf("refresh_total{dropped} = %v, want 1", got)
	}
}

func TestMiddleware_RecordsRoutePattern(t *testing.T) {
	m := New(prometheus.NewRegistry())

	r := chi.NewRouter()
	r.Use(m.Middleware())
	r.Get("/v1/estimate", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/estimate", http.NoBody))

	if got := testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "/v1/estimate", "503")); got != 1 {
		t.Errorf("http_requests_total = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(m.httpRequestDuration); n == 0 {
		t.Error("expected http_request_duration_seconds observations")
	}
}
