package daemon

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/theirongolddev/burnmeter/internal/config"
	"github.com/theirongolddev/burnmeter/internal/metrics"
	"github.com/theirongolddev/burnmeter/internal/model"
	"github.com/theirongolddev/burnmeter/internal/pipeline"
)

type stubRefresher struct {
	est *model.UsageEstimate
	err error
}

func (s *stubRefresher) Refresh(context.Context) (*model.UsageEstimate, error) {
	return s.est, s.err
}

func estimate(weeklyRatio, sessionRatio float64, weeklyTokens int64) *model.UsageEstimate {
	return &model.UsageEstimate{
		GeneratedAt: time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC),
		Weekly:      model.ScopeUsage{Ratio: weeklyRatio, Tokens: weeklyTokens, Tier: model.TierExactLocal},
		Session:     model.ScopeUsage{Ratio: sessionRatio, Tier: model.TierStatistical},
	}
}

func testThresholds() config.ThresholdsConfig {
	return config.DefaultConfig().Thresholds
}

func TestDiffSnapshots(t *testing.T) {
	prev := snapshotFromEstimate(estimate(0.10, 0.20, 1_000_000))
	curr := snapshotFromEstimate(estimate(0.15, 0.20, 1_250_000))
	curr.EquivalentCostUSD = 2.6

	delta := diffSnapshots(prev, curr)
	if delta.WeeklyTokens != 250_000 {
		t.Fatalf("WeeklyTokens delta = %d, want 250000", delta.WeeklyTokens)
	}
	if math.Abs(delta.WeeklyRatio-0.05) > 1e-9 {
		t.Fatalf("WeeklyRatio delta = %.4f, want 0.05", delta.WeeklyRatio)
	}
	if math.Abs(delta.EquivalentCostUSD-2.6) > 1e-9 {
		t.Fatalf("Cost delta = %.2f, want 2.60", delta.EquivalentCostUSD)
	}
	if delta.TierChanged {
		t.Fatal("TierChanged = true, want false")
	}
	if delta.isZero() {
		t.Fatal("delta unexpectedly reported as zero")
	}

	if !diffSnapshots(curr, curr).isZero() {
		t.Fatal("identical snapshots should give a zero delta")
	}
}

func TestPublishEventRingBuffer(t *testing.T) {
	s := New(Config{EventsBuffer: 2}, Deps{Refresher: &stubRefresher{}})

	s.publishEvent(Event{ID: 1})
	s.publishEvent(Event{ID: 2})
	s.publishEvent(Event{ID: 3})

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.events) != 2 {
		t.Fatalf("events len = %d, want 2", len(s.events))
	}
	if s.events[0].ID != 2 || s.events[1].ID != 3 {
		t.Fatalf("events ring contains IDs [%d, %d], want [2, 3]", s.events[0].ID, s.events[1].ID)
	}
}

func TestApply_EmitsEstimateAndThresholdEvents(t *testing.T) {
	s := New(Config{Thresholds: testThresholds()}, Deps{Refresher: &stubRefresher{}})

	s.apply(estimate(0.10, 0.10, 100))
	s.apply(estimate(0.10, 0.10, 100)) // unchanged: no event
	s.apply(estimate(0.70, 0.10, 700)) // weekly crosses warning
	s.apply(estimate(0.50, 0.95, 500)) // weekly back to normal, session critical

	var types []string
	var crossings []Crossing
	for _, ev := range s.events {
		types = append(types, ev.Type)
		if ev.Crossing != nil {
			crossings = append(crossings, *ev.Crossing)
		}
	}
	want := []string{"estimate", "estimate", "threshold", "estimate", "threshold", "threshold"}
	if strings.Join(types, ",") != strings.Join(want, ",") {
		t.Fatalf("event types = %v, want %v", types, want)
	}

	if crossings[0].Scope != "weekly" || crossings[0].To != LevelWarning {
		t.Errorf("first crossing = %+v, want weekly -> warning", crossings[0])
	}
	if crossings[1].Scope != "weekly" || crossings[1].From != LevelWarning || crossings[1].To != LevelNormal {
		t.Errorf("second crossing = %+v, want weekly warning -> normal", crossings[1])
	}
	if crossings[2].Scope != "session" || crossings[2].To != LevelCritical {
		t.Errorf("third crossing = %+v, want session -> critical", crossings[2])
	}
}

func TestPollOnce_CountsDroppedRefresh(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	s := New(Config{}, Deps{Refresher: &stubRefresher{err: pipeline.ErrRefreshInFlight}, Metrics: m})

	s.pollOnce(context.Background())

	st := s.snapshotStatus()
	if st.DroppedCount != 1 {
		t.Errorf("DroppedCount = %d, want 1", st.DroppedCount)
	}
	if st.PollCount != 0 {
		t.Errorf("PollCount = %d, want 0", st.PollCount)
	}
}

func TestHandler_Routes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	ref := &stubRefresher{est: estimate(0.25, 0.5, 42)}
	s := New(Config{ClaudeDir: "/tmp/claude"}, Deps{Refresher: ref, Metrics: m, Gatherer: reg})
	h := s.Handler()

	get := func(path string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, http.NoBody))
		return rr
	}

	if rr := get("/v1/estimate"); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("/v1/estimate before poll = %d, want 503", rr.Code)
	}

	s.pollOnce(context.Background())

	rr := get("/v1/estimate")
	if rr.Code != http.StatusOK {
		t.Fatalf("/v1/estimate = %d, want 200", rr.Code)
	}
	var est model.UsageEstimate
	if err := json.Unmarshal(rr.Body.Bytes(), &est); err != nil {
		t.Fatalf("decoding estimate: %v", err)
	}
	if est.Weekly.Tokens != 42 || est.Weekly.Tier != model.TierExactLocal {
		t.Errorf("estimate weekly = %+v", est.Weekly)
	}

	var st Status
	if err := json.Unmarshal(get("/v1/status").Body.Bytes(), &st); err != nil {
		t.Fatalf("decoding status: %v", err)
	}
	if st.PollCount != 1 || st.ClaudeDir != "/tmp/claude" || st.Summary.Weekly.Tier != "exact-local" {
		t.Errorf("status = %+v", st)
	}

	var events []Event
	if err := json.Unmarshal(get("/v1/events").Body.Bytes(), &events); err != nil {
		t.Fatalf("decoding events: %v", err)
	}
	if len(events) == 0 || events[0].Type != EventEstimate {
		t.Errorf("events = %+v, want a leading estimate event", events)
	}

	if rr := get("/healthz"); rr.Body.String() != "ok\n" {
		t.Errorf("/healthz body = %q", rr.Body.String())
	}
	if body := get("/metrics").Body.String(); !strings.Contains(body, "burnmeter_http_requests_total") {
		t.Error("/metrics missing burnmeter_http_requests_total")
	}
}
