// Package daemon provides the long-running background usage monitor service.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/theirongolddev/burnmeter/internal/config"
	"github.com/theirongolddev/burnmeter/internal/logger"
	"github.com/theirongolddev/burnmeter/internal/metrics"
	"github.com/theirongolddev/burnmeter/internal/model"
	"github.com/theirongolddev/burnmeter/internal/pipeline"
)

// Event types.
const (
	EventEstimate  = "estimate"
	EventThreshold = "threshold"
)

// DefaultScanRetention is how long exact-scan cache entries outlive their
// file's last modification.
const DefaultScanRetention = 31 * 24 * time.Hour

// Config controls the daemon runtime behavior.
type Config struct {
	ClaudeDir             string
	Interval              time.Duration
	Addr                  string
	EventsBuffer          int
	ScanPruneInterval     time.Duration
	ScanRetention         time.Duration
	WorktimePruneInterval time.Duration
	Watch                 bool
	Thresholds            config.ThresholdsConfig
}

// Refresher produces one estimate per call.
type Refresher interface {
	Refresh(ctx context.Context) (*model.UsageEstimate, error)
}

// ScanPruner drops stale exact-scan cache entries.
type ScanPruner interface {
	Prune(retention time.Duration) int
}

// WorkPruner drops stale work-time cache entries.
type WorkPruner interface {
	PruneCache() int
}

// Deps are the collaborators of a Service. Only Refresher is required.
type Deps struct {
	Refresher  Refresher
	ScanPruner ScanPruner
	WorkPruner WorkPruner
	Metrics    *metrics.Metrics
	Gatherer   prometheus.Gatherer
	Logger     *zap.Logger
}

// ScopeSnapshot is the compact state of one budget window.
type ScopeSnapshot struct {
	Ratio  float64 `json:"ratio"`
	Tokens int64   `json:"tokens"`
	Limit  int64   `json:"limit"`
	Tier   string  `json:"tier"`
}

// Snapshot is a compact usage state for status/event payloads.
type Snapshot struct {
	At                time.Time     `json:"at"`
	Weekly            ScopeSnapshot `json:"weekly"`
	Daily             ScopeSnapshot `json:"daily"`
	Session           ScopeSnapshot `json:"session"`
	WorkSecondsToday  float64       `json:"work_seconds_today"`
	EquivalentCostUSD float64       `json:"equivalent_cost_usd"`
}

// Delta captures snapshot deltas between polls.
type Delta struct {
	WeeklyTokens      int64   `json:"weekly_tokens"`
	DailyTokens       int64   `json:"daily_tokens"`
	SessionTokens     int64   `json:"session_tokens"`
	WeeklyRatio       float64 `json:"weekly_ratio"`
	SessionRatio      float64 `json:"session_ratio"`
	EquivalentCostUSD float64 `json:"equivalent_cost_usd"`
	TierChanged       bool    `json:"tier_changed,omitempty"`
}

func (d Delta) isZero() bool {
	return d.WeeklyTokens == 0 &&
		d.DailyTokens == 0 &&
		d.SessionTokens == 0 &&
		d.WeeklyRatio == 0 &&
		d.SessionRatio == 0 &&
		d.EquivalentCostUSD == 0 &&
		!d.TierChanged
}

// Event is emitted whenever the estimate changes or a threshold is crossed.
type Event struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Snapshot  Snapshot  `json:"snapshot"`
	Delta     Delta     `json:"delta"`
	Crossing  *Crossing `json:"crossing,omitempty"`
}

// Status is served at /v1/status.
type Status struct {
	StartedAt       time.Time `json:"started_at"`
	LastPollAt      time.Time `json:"last_poll_at"`
	PollIntervalSec int       `json:"poll_interval_sec"`
	PollCount       int64     `json:"poll_count"`
	DroppedCount    int64     `json:"dropped_count"`
	ClaudeDir       string    `json:"claude_dir"`
	Summary         Snapshot  `json:"summary"`
	LastError       string    `json:"last_error,omitempty"`
	EventCount      int       `json:"event_count"`
	SubscriberCount int       `json:"subscriber_count"`
}

// Service provides the daemon runtime and HTTP API.
type Service struct {
	cfg  Config
	deps Deps
	log  *zap.Logger

	mu           sync.RWMutex
	startedAt    time.Time
	lastPollAt   time.Time
	pollCount    int64
	droppedCount int64
	lastError    string
	estimate     *model.UsageEstimate
	snapshot     Snapshot
	nextEventID  int64
	events       []Event
	thresholds   *thresholdTracker

	nextSubID int
	subs      map[int]chan Event
}

// New returns a new daemon service with the provided config.
func New(cfg Config, deps Deps) *Service {
	if cfg.Interval < time.Second {
		cfg.Interval = 5 * time.Second
	}
	if cfg.EventsBuffer < 1 {
		cfg.EventsBuffer = 200
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8787"
	}
	if cfg.ScanPruneInterval <= 0 {
		cfg.ScanPruneInterval = time.Hour
	}
	if cfg.ScanRetention <= 0 {
		cfg.ScanRetention = DefaultScanRetention
	}
	if cfg.WorktimePruneInterval <= 0 {
		cfg.WorktimePruneInterval = 6 * time.Hour
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	return &Service{
		cfg:        cfg,
		deps:       deps,
		log:        deps.Logger,
		startedAt:  time.Now(),
		thresholds: newThresholdTracker(cfg.Thresholds),
		subs:       make(map[int]chan Event),
	}
}

// Handler returns the HTTP API.
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	if s.deps.Metrics != nil {
		r.Use(s.deps.Metrics.Middleware())
	}
	r.Get("/healthz", s.handleHealth)
	r.Get("/v1/estimate", s.handleEstimate)
	r.Get("/v1/status", s.handleStatus)
	r.Get("/v1/events", s.handleEvents)
	r.Get("/v1/stream", s.handleStream)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	return r
}

// requestLogger attaches a per-request logger tagged with the request ID.
func (s *Service) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqLog := s.log.With(zap.String("request_id", middleware.GetReqID(r.Context())))
		next.ServeHTTP(w, r.WithContext(logger.WithContext(r.Context(), reqLog)))
	})
}

// Run starts HTTP endpoints, polling, file watching and the maintenance
// timers until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	s.log.Info("daemon listening", zap.String("addr", s.cfg.Addr), zap.Duration("interval", s.cfg.Interval))

	var changes <-chan struct{}
	if s.cfg.Watch && s.cfg.ClaudeDir != "" {
		w, err := NewWatcher(s.cfg.ClaudeDir, 0, s.log)
		if err != nil {
			s.log.Warn("file watching disabled", zap.Error(err))
		} else {
			go w.Run(ctx)
			changes = w.Changes()
		}
	}

	// Seed initial estimate so status is useful immediately.
	s.pollOnce(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	scanPrune := time.NewTicker(s.cfg.ScanPruneInterval)
	defer scanPrune.Stop()
	workPrune := time.NewTicker(s.cfg.WorktimePruneInterval)
	defer workPrune.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		case <-ticker.C:
			go s.pollOnce(ctx)
		case <-changes:
			go s.pollOnce(ctx)
		case <-scanPrune.C:
			if s.deps.ScanPruner != nil {
				n := s.deps.ScanPruner.Prune(s.cfg.ScanRetention)
				s.log.Debug("pruned scan cache", zap.Int("removed", n))
			}
		case <-workPrune.C:
			if s.deps.WorkPruner != nil {
				n := s.deps.WorkPruner.PruneCache()
				s.log.Debug("pruned work-time cache", zap.Int("removed", n))
			}
		case err := <-errCh:
			return fmt.Errorf("daemon http server: %w", err)
		}
	}
}

func (s *Service) pollOnce(ctx context.Context) {
	est, err := s.deps.Refresher.Refresh(ctx)
	if errors.Is(err, pipeline.ErrRefreshInFlight) {
		s.mu.Lock()
		s.droppedCount++
		s.mu.Unlock()
		if s.deps.Metrics != nil {
			s.deps.Metrics.ObserveDropped()
		}
		return
	}
	if err != nil {
		s.mu.Lock()
		s.lastError = err.Error()
		s.lastPollAt = time.Now()
		s.pollCount++
		s.mu.Unlock()
		s.log.Warn("daemon poll error", zap.Error(err))
		return
	}

	s.apply(est)
}

// apply records a new estimate and publishes the resulting events.
func (s *Service) apply(est *model.UsageEstimate) {
	snap := snapshotFromEstimate(est)

	var pending []Event

	s.mu.Lock()
	prev := s.snapshot
	prevExists := s.estimate != nil

	s.estimate = est
	s.snapshot = snap
	s.lastPollAt = est.GeneratedAt
	s.pollCount++
	s.lastError = ""

	delta := diffSnapshots(prev, snap)
	if !prevExists || !delta.isZero() {
		if !prevExists {
			delta = Delta{}
		}
		s.nextEventID++
		pending = append(pending, Event{
			ID:        s.nextEventID,
			Type:      EventEstimate,
			Timestamp: est.GeneratedAt,
			Snapshot:  snap,
			Delta:     delta,
		})
	}
	for _, c := range s.thresholds.evaluate(est) {
		s.nextEventID++
		pending = append(pending, Event{
			ID:        s.nextEventID,
			Type:      EventThreshold,
			Timestamp: est.GeneratedAt,
			Snapshot:  snap,
			Crossing:  &c,
		})
	}
	s.mu.Unlock()

	for _, ev := range pending {
		if ev.Crossing != nil {
			s.log.Info("threshold crossed",
				zap.String("scope", ev.Crossing.Scope),
				zap.Stringer("from", ev.Crossing.From),
				zap.Stringer("to", ev.Crossing.To),
				zap.Float64("ratio", ev.Crossing.Ratio))
		}
		s.publishEvent(ev)
	}
}

func scopeSnapshot(u model.ScopeUsage) ScopeSnapshot {
	return ScopeSnapshot{Ratio: u.Ratio, Tokens: u.Tokens, Limit: u.Limit, Tier: u.Tier.String()}
}

func snapshotFromEstimate(est *model.UsageEstimate) Snapshot {
	return Snapshot{
		At:                est.GeneratedAt,
		Weekly:            scopeSnapshot(est.Weekly),
		Daily:             scopeSnapshot(est.Daily),
		Session:           scopeSnapshot(est.Session),
		WorkSecondsToday:  est.WorkSecondsToday,
		EquivalentCostUSD: est.EquivalentCostUSD,
	}
}

func diffSnapshots(prev, curr Snapshot) Delta {
	return Delta{
		WeeklyTokens:      curr.Weekly.Tokens - prev.Weekly.Tokens,
		DailyTokens:       curr.Daily.Tokens - prev.Daily.Tokens,
		SessionTokens:     curr.Session.Tokens - prev.Session.Tokens,
		WeeklyRatio:       curr.Weekly.Ratio - prev.Weekly.Ratio,
		SessionRatio:      curr.Session.Ratio - prev.Session.Ratio,
		EquivalentCostUSD: curr.EquivalentCostUSD - prev.EquivalentCostUSD,
		TierChanged: curr.Weekly.Tier != prev.Weekly.Tier ||
			curr.Daily.Tier != prev.Daily.Tier ||
			curr.Session.Tier != prev.Session.Tier,
	}
}

func (s *Service) publishEvent(ev Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	if len(s.events) > s.cfg.EventsBuffer {
		s.events = s.events[len(s.events)-s.cfg.EventsBuffer:]
	}

	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	s.mu.Unlock()
}

// Latest returns the most recent estimate, or nil before the first poll.
func (s *Service) Latest() *model.UsageEstimate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.estimate
}

func (s *Service) snapshotStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Status{
		StartedAt:       s.startedAt,
		LastPollAt:      s.lastPollAt,
		PollIntervalSec: int(s.cfg.Interval.Seconds()),
		PollCount:       s.pollCount,
		DroppedCount:    s.droppedCount,
		ClaudeDir:       s.cfg.ClaudeDir,
		Summary:         s.snapshot,
		LastError:       s.lastError,
		EventCount:      len(s.events),
		SubscriberCount: len(s.subs),
	}
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Service) handleEstimate(w http.ResponseWriter, _ *http.Request) {
	est := s.Latest()
	if est == nil {
		http.Error(w, "no estimate yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(est)
}

func (s *Service) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.snapshotStatus())
}

func (s *Service) handleEvents(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	events := make([]Event, len(s.events))
	copy(events, s.events)
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(events)
}

func (s *Service) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	log := logger.FromContext(r.Context())
	ch := make(chan Event, 16)
	id := s.addSubscriber(ch)
	log.Debug("stream subscribed", zap.Int("subscriber", id))
	defer func() {
		s.removeSubscriber(id)
		log.Debug("stream closed", zap.Int("subscriber", id))
	}()

	// Send current snapshot immediately.
	current := Event{
		Type:      EventEstimate,
		Timestamp: time.Now(),
		Snapshot:  s.snapshotStatus().Summary,
	}
	writeSSE(w, current)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-ch:
			writeSSE(w, ev)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if ev.ID > 0 {
		_, _ = fmt.Fprintf(w, "id: %d\n", ev.ID)
	}
	_, _ = fmt.Fprintf(w, "event: %s\n", ev.Type)
	_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
}

func (s *Service) addSubscriber(ch chan Event) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	id := s.nextSubID
	s.subs[id] = ch
	return id
}

func (s *Service) removeSubscriber(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
}
