package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/theirongolddev/burnmeter/internal/attribution"
	"github.com/theirongolddev/burnmeter/internal/calibration"
	"github.com/theirongolddev/burnmeter/internal/config"
	"github.com/theirongolddev/burnmeter/internal/model"
	"github.com/theirongolddev/burnmeter/internal/scan"
	"github.com/theirongolddev/burnmeter/internal/source"
)

// DefaultFetchTimeout bounds the wait for the authoritative client.
const DefaultFetchTimeout = 10 * time.Second

// ErrRefreshInFlight is returned when a refresh is requested while another
// one is still running. The request is dropped, not queued.
var ErrRefreshInFlight = errors.New("pipeline: refresh already in flight")

// Authoritative fetches ground-truth utilization.
type Authoritative interface {
	Usage(ctx context.Context) (*model.AuthoritativeUsage, error)
}

// TokenCounter is the exact-scan source.
type TokenCounter interface {
	Refresh(ctx context.Context) (scan.RefreshStats, error)
	TotalTokens(since time.Time) int64
	CurrentSessionTokens(sessionID string) int64
	ModelUsageSince(since time.Time) map[string]model.ModelTotals
}

// Calibrator records authoritative snapshots and derives effective limits.
type Calibrator interface {
	Save(ctx context.Context, snap model.CalibrationSnapshot) error
	EffectiveLimit(ctx context.Context, scope model.Scope, fallback int64) (int64, bool)
	EffectiveDailyLimit(ctx context.Context, limits model.Limits) (int64, bool)
}

// WorkTimer estimates active work time.
type WorkTimer interface {
	WorkSecondsToday() float64
	WorkSecondsThisWeek() float64
}

// ProjectAttributor splits weekly tokens across projects.
type ProjectAttributor interface {
	Attribute(projects []attribution.Project, weeklyTokens int64, totalSessions int) map[string]int64
}

// Observer receives the outcome of every refresh.
type Observer interface {
	ObserveRefresh(est *model.UsageEstimate, elapsed time.Duration, err error)
}

// Sources loads the raw counter documents.
type Sources struct {
	Stats   func() (model.StatsCache, error)
	History func() ([]model.HistoryEntry, error)
}

// FileSources reads the stats cache and history under claudeDir.
func FileSources(claudeDir string) Sources {
	return Sources{
		Stats: func() (model.StatsCache, error) {
			return source.LoadStatsCache(source.StatsCachePath(claudeDir))
		},
		History: func() ([]model.HistoryEntry, error) {
			return source.LoadHistory(source.HistoryPath(claudeDir))
		},
	}
}

// Deps are the collaborators of a Pipeline. Any of them may be nil: a nil
// Auth never answers, a nil Counter yields no exact-local tier, a nil
// Calibrator yields no calibrated tier.
type Deps struct {
	Sources    Sources
	Auth       Authoritative
	Counter    TokenCounter
	Calibrator Calibrator
	Work       WorkTimer
	Attributor ProjectAttributor
	Pricer     *config.Pricer
	// Projects returns the projects to attribute. Nil disables attribution.
	Projects func() []attribution.Project
}

// Pipeline produces one UsageEstimate per Refresh.
type Pipeline struct {
	deps         Deps
	limits       model.Limits
	fetchTimeout time.Duration
	log          *zap.Logger
	observer     Observer
	now          func() time.Time

	mu       sync.Mutex
	inFlight bool

	// lastCalibrated is the FetchedAt of the reading last paired into a
	// snapshot. Only the cycle holding inFlight touches it.
	lastCalibrated time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithFetchTimeout sets the bounded wait for the authoritative client.
func WithFetchTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.fetchTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(p *Pipeline) { p.log = l } }

// WithObserver reports every refresh to o.
func WithObserver(o Observer) Option { return func(p *Pipeline) { p.observer = o } }

// WithNow overrides the clock.
func WithNow(now func() time.Time) Option { return func(p *Pipeline) { p.now = now } }

// New creates a Pipeline.
func New(deps Deps, limits model.Limits, opts ...Option) *Pipeline {
	p := &Pipeline{
		deps:         deps,
		limits:       limits,
		fetchTimeout: DefaultFetchTimeout,
		log:          zap.NewNop(),
		now:          time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	if p.deps.Pricer == nil {
		p.deps.Pricer = config.NewPricer(config.PricingOverrides{})
	}
	return p
}

// Limits returns the configured fallback limits.
func (p *Pipeline) Limits() model.Limits { return p.limits }

type authResult struct {
	usage *model.AuthoritativeUsage
	err   error
}

// local is what the local sources measured for one cycle.
type local struct {
	exact       [3]int64
	statistical [3]int64
	scanOK      bool
}

// Refresh runs one cycle. It fails only with ErrRefreshInFlight or when ctx
// is cancelled; every source failure degrades the tier instead.
func (p *Pipeline) Refresh(ctx context.Context) (*model.UsageEstimate, error) {
	p.mu.Lock()
	if p.inFlight {
		p.mu.Unlock()
		return nil, ErrRefreshInFlight
	}
	p.inFlight = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.inFlight = false
		p.mu.Unlock()
	}()

	start := time.Now()
	est, err := p.refresh(ctx)
	if p.observer != nil {
		p.observer.ObserveRefresh(est, time.Since(start), err)
	}
	return est, err
}

func (p *Pipeline) refresh(ctx context.Context) (*model.UsageEstimate, error) {
	now := p.now()
	cycleID := uuid.NewString()
	log := p.log.With(zap.String("cycle_id", cycleID))
	started := time.Now()

	stats := p.loadStats(log)
	history := p.loadHistory(log)

	// The buffered channel lets a late fetch finish without blocking; its
	// result is never read once the timer fires.
	authCh := make(chan authResult, 1)
	if p.deps.Auth != nil {
		go func() {
			u, err := p.deps.Auth.Usage(ctx)
			authCh <- authResult{usage: u, err: err}
		}()
	}
	timer := time.NewTimer(p.fetchTimeout)
	defer timer.Stop()

	weekStart := WeekStart(now, p.limits.WeeklyResetDay)
	dayStart := StartOfDay(now)
	sessionID, sessionStart := source.CurrentSession(history)

	loc := p.measure(ctx, log, stats, history, sessionID, weekStart, dayStart)

	var auth *model.AuthoritativeUsage
	if p.deps.Auth != nil {
		r, ok, err := awaitAuth(ctx, authCh, timer.C)
		switch {
		case err != nil:
			return nil, err
		case !ok:
			log.Debug("authoritative fetch timed out", zap.Duration("timeout", p.fetchTimeout))
		case r.err != nil:
			log.Debug("authoritative fetch failed", zap.Error(r.err))
		default:
			auth = r.usage
		}
	}

	if auth != nil {
		p.saveSnapshot(ctx, log, now, auth, loc)
	}

	est := &model.UsageEstimate{
		GeneratedAt:     now,
		CycleID:         cycleID,
		SessionID:       sessionID,
		CacheMultiplier: CacheMultiplier(stats.ModelUsage),
		Windows:         Windows(stats, now, CacheMultiplier(stats.ModelUsage)),
		ModelShare:      ModelShare(stats, now),
	}

	resets := map[model.Scope]time.Time{
		model.ScopeWeekly:  NextWeeklyReset(now, p.limits.WeeklyResetDay),
		model.ScopeDaily:   dayStart.AddDate(0, 0, 1),
		model.ScopeSession: SessionResetsAt(sessionStart, now),
	}
	est.Weekly = p.resolve(ctx, model.ScopeWeekly, now, loc, auth, resets)
	est.Daily = p.resolve(ctx, model.ScopeDaily, now, loc, auth, resets)
	est.Session = p.resolve(ctx, model.ScopeSession, now, loc, auth, resets)

	if p.deps.Work != nil {
		est.WorkSecondsToday = p.deps.Work.WorkSecondsToday()
		est.WorkSecondsWeek = p.deps.Work.WorkSecondsThisWeek()
	}
	est.Projects = map[string]int64{}
	if p.deps.Attributor != nil && p.deps.Projects != nil {
		est.Projects = p.deps.Attributor.Attribute(p.deps.Projects(), est.Weekly.Tokens, stats.TotalSessions)
	}
	if p.deps.Counter != nil && loc.scanOK {
		est.EquivalentCostUSD = EquivalentCost(p.deps.Pricer, p.deps.Counter.ModelUsageSince(weekStart))
	}

	log.Debug("refresh complete",
		zap.Stringer("weekly_tier", est.Weekly.Tier),
		zap.Stringer("daily_tier", est.Daily.Tier),
		zap.Stringer("session_tier", est.Session.Tier),
		zap.Duration("elapsed", time.Since(started)),
	)
	return est, nil
}

// awaitAuth prefers a result that is already waiting over an expired timer,
// so a slow local scan never discards an answer that arrived in time.
func awaitAuth(ctx context.Context, ch <-chan authResult, expired <-chan time.Time) (authResult, bool, error) {
	select {
	case r := <-ch:
		return r, true, nil
	default:
	}
	select {
	case r := <-ch:
		return r, true, nil
	case <-expired:
		select {
		case r := <-ch:
			return r, true, nil
		default:
		}
		return authResult{}, false, nil
	case <-ctx.Done():
		return authResult{}, false, ctx.Err()
	}
}

func (p *Pipeline) loadStats(log *zap.Logger) model.StatsCache {
	if p.deps.Sources.Stats == nil {
		return model.StatsCache{}
	}
	sc, err := p.deps.Sources.Stats()
	if err != nil {
		log.Debug("stats cache unreadable", zap.Error(err))
		return model.StatsCache{}
	}
	return sc
}

func (p *Pipeline) loadHistory(log *zap.Logger) []model.HistoryEntry {
	if p.deps.Sources.History == nil {
		return nil
	}
	h, err := p.deps.Sources.History()
	if err != nil {
		log.Debug("history partly unreadable", zap.Int("entries", len(h)), zap.Error(err))
	}
	return h
}

func (p *Pipeline) measure(
	ctx context.Context,
	log *zap.Logger,
	stats model.StatsCache,
	history []model.HistoryEntry,
	sessionID string,
	weekStart, dayStart time.Time,
) local {
	var loc local

	mult := CacheMultiplier(stats.ModelUsage)
	loc.statistical[model.ScopeWeekly] = Inflate(RawTokensSince(stats, weekStart), mult)
	loc.statistical[model.ScopeDaily] = Inflate(RawTokensSince(stats, dayStart), mult)
	loc.statistical[model.ScopeSession] = SessionShare(loc.statistical[model.ScopeDaily], history, sessionID, dayStart)

	if p.deps.Counter == nil {
		return loc
	}
	rs, err := p.deps.Counter.Refresh(ctx)
	if err != nil {
		log.Debug("exact scan failed", zap.Error(err))
		return loc
	}
	if rs.FileErrors > 0 {
		log.Debug("exact scan skipped files", zap.Int("file_errors", rs.FileErrors))
	}
	loc.scanOK = true
	loc.exact[model.ScopeWeekly] = p.deps.Counter.TotalTokens(weekStart)
	loc.exact[model.ScopeDaily] = p.deps.Counter.TotalTokens(dayStart)
	if sessionID != "" {
		loc.exact[model.ScopeSession] = p.deps.Counter.CurrentSessionTokens(sessionID)
	}
	return loc
}

func (p *Pipeline) saveSnapshot(ctx context.Context, log *zap.Logger, now time.Time, auth *model.AuthoritativeUsage, loc local) {
	if p.deps.Calibrator == nil || !loc.scanOK {
		return
	}
	if !auth.FetchedAt.IsZero() {
		if !auth.FetchedAt.After(p.lastCalibrated) {
			log.Debug("authoritative reading already calibrated", zap.Time("fetched_at", auth.FetchedAt))
			return
		}
		p.lastCalibrated = auth.FetchedAt
	}
	snap := model.CalibrationSnapshot{
		Timestamp:          now,
		WeeklyPercent:      auth.WeeklyPercent,
		SessionPercent:     auth.SessionPercent,
		WeeklyResetsAt:     auth.WeeklyResetsAt,
		SessionResetsAt:    auth.SessionResetsAt,
		LocalWeeklyTokens:  loc.exact[model.ScopeWeekly],
		LocalSessionTokens: loc.exact[model.ScopeSession],
	}
	err := p.deps.Calibrator.Save(ctx, snap)
	switch {
	case err == nil:
		log.Debug("calibration snapshot saved",
			zap.Float64("weekly_percent", snap.WeeklyPercent),
			zap.Float64("session_percent", snap.SessionPercent))
	case errors.Is(err, calibration.ErrNotInformative):
	default:
		log.Warn("saving calibration snapshot", zap.Error(err))
	}
}

// resolve picks the highest-confidence source available for one scope.
func (p *Pipeline) resolve(
	ctx context.Context,
	scope model.Scope,
	now time.Time,
	loc local,
	auth *model.AuthoritativeUsage,
	resets map[model.Scope]time.Time,
) model.ScopeUsage {
	fallback := p.limits.For(scope)
	exact := loc.exact[scope]
	tokens := exact
	if tokens <= 0 {
		tokens = loc.statistical[scope]
	}

	u := model.ScopeUsage{Tokens: tokens, Limit: fallback, ResetsAt: resets[scope]}

	if pct, at, ok := authoritative(scope, auth); ok {
		u.Tier = model.TierAuthoritative
		u.Ratio = clampRatio(pct / 100)
		if !at.IsZero() {
			u.ResetsAt = at
		}
		u.ResetsIn = Until(u.ResetsAt, now)
		return u
	}

	if limit, ok := p.calibrated(ctx, scope, fallback); ok {
		u.Tier = model.TierCalibratedLocal
		u.Limit = limit
	} else if loc.scanOK && exact > 0 {
		u.Tier = model.TierExactLocal
	} else {
		u.Tier = model.TierStatistical
	}
	u.Ratio = ratio(u.Tokens, u.Limit)
	u.ResetsIn = Until(u.ResetsAt, now)
	return u
}

func (p *Pipeline) calibrated(ctx context.Context, scope model.Scope, fallback int64) (int64, bool) {
	if p.deps.Calibrator == nil {
		return 0, false
	}
	if scope == model.ScopeDaily {
		return p.deps.Calibrator.EffectiveDailyLimit(ctx, p.limits)
	}
	return p.deps.Calibrator.EffectiveLimit(ctx, scope, fallback)
}

func authoritative(scope model.Scope, auth *model.AuthoritativeUsage) (pct float64, resetsAt time.Time, ok bool) {
	if auth == nil {
		return 0, time.Time{}, false
	}
	switch scope {
	case model.ScopeWeekly:
		return auth.WeeklyPercent, auth.WeeklyResetsAt, true
	case model.ScopeSession:
		return auth.SessionPercent, auth.SessionResetsAt, true
	}
	return 0, time.Time{}, false
}

func ratio(tokens, limit int64) float64 {
	if limit <= 0 {
		return 0
	}
	return clampRatio(float64(tokens) / float64(limit))
}

func clampRatio(r float64) float64 {
	return min(max(r, 0), 1)
}
