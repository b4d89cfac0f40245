package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theirongolddev/burnmeter/internal/attribution"
	"github.com/theirongolddev/burnmeter/internal/calibration"
	"github.com/theirongolddev/burnmeter/internal/model"
	"github.com/theirongolddev/burnmeter/internal/scan"
)

// Wednesday, so a Monday reset puts the week start two days back.
var testNow = time.Date(2026, 3, 11, 12, 0, 0, 0, time.Local)

func fixedNow() time.Time { return testNow }

type fakeAuth struct {
	usage *model.AuthoritativeUsage
	err   error
	block chan struct{}
}

func (f *fakeAuth) Usage(ctx context.Context) (*model.AuthoritativeUsage, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.usage, f.err
}

type fakeCounter struct {
	weekly, daily, session int64
	err                    error
	delay                  time.Duration
	entered                chan struct{}
	release                chan struct{}
}

func (f *fakeCounter) Refresh(context.Context) (scan.RefreshStats, error) {
	time.Sleep(f.delay)
	if f.entered != nil {
		f.entered <- struct{}{}
		<-f.release
	}
	return scan.RefreshStats{}, f.err
}

func (f *fakeCounter) TotalTokens(since time.Time) int64 {
	if since.Equal(StartOfDay(testNow)) {
		return f.daily
	}
	return f.weekly
}

func (f *fakeCounter) CurrentSessionTokens(string) int64 { return f.session }

func (f *fakeCounter) ModelUsageSince(time.Time) map[string]model.ModelTotals {
	return map[string]model.ModelTotals{"claude-sonnet-4-6": {InputTokens: 1_000_000}}
}

type recordingCalibrator struct {
	mu    sync.Mutex
	saved []model.CalibrationSnapshot
}

func (r *recordingCalibrator) Save(_ context.Context, snap model.CalibrationSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, snap)
	return calibration.ErrNotInformative
}

func (r *recordingCalibrator) EffectiveLimit(context.Context, model.Scope, int64) (int64, bool) {
	return 0, false
}

func (r *recordingCalibrator) EffectiveDailyLimit(context.Context, model.Limits) (int64, bool) {
	return 0, false
}

type fakeWork struct{}

func (fakeWork) WorkSecondsToday() float64    { return 60 }
func (fakeWork) WorkSecondsThisWeek() float64 { return 600 }

type fakeAttributor struct{ gotWeekly int64 }

func (f *fakeAttributor) Attribute(_ []attribution.Project, weekly int64, _ int) map[string]int64 {
	f.gotWeekly = weekly
	return map[string]int64{"/src/a": weekly}
}

func testLimits() model.Limits {
	return model.Limits{
		WeeklyTokens:   2_000_000_000,
		DailyTokens:    300_000_000,
		SessionTokens:  200_000_000,
		WeeklyResetDay: time.Monday,
	}
}

func statsSources(sc model.StatsCache, history []model.HistoryEntry) Sources {
	return Sources{
		Stats:   func() (model.StatsCache, error) { return sc, nil },
		History: func() ([]model.HistoryEntry, error) { return history, nil },
	}
}

// scenarioAStats has a 10.5 multiplier and 1000 IO tokens this week.
func scenarioAStats() model.StatsCache {
	return model.StatsCache{
		DailyModelTokens: []model.DailyModelTokens{
			{Date: "2026-03-01", TokensByModel: map[string]int64{"claude-opus-4-6": 5000}},
			{Date: "2026-03-10", TokensByModel: map[string]int64{"claude-opus-4-6": 800}},
			{Date: "2026-03-11", TokensByModel: map[string]int64{"claude-opus-4-6": 200}},
		},
		ModelUsage: map[string]model.ModelTotals{
			"claude-opus-4-6": {
				InputTokens:              500_000,
				OutputTokens:             500_000,
				CacheReadInputTokens:     9_000_000,
				CacheCreationInputTokens: 500_000,
			},
		},
	}
}

func TestRefresh_StatisticalScenarioA(t *testing.T) {
	p := New(Deps{Sources: statsSources(scenarioAStats(), nil)}, testLimits(), WithNow(fixedNow))

	est, err := p.Refresh(context.Background())
	require.NoError(t, err)

	assert.InDelta(t, 10.5, est.CacheMultiplier, 1e-9)
	assert.Equal(t, int64(10_500), est.Weekly.Tokens)
	assert.Equal(t, int64(2_100), est.Daily.Tokens)
	assert.Equal(t, int64(2_100), est.Session.Tokens, "no history attributes all of today")
	for _, s := range model.Scopes {
		assert.Equal(t, model.TierStatistical, est.Scope(s).Tier, s.String())
	}
	assert.InDelta(t, 10_500.0/2_000_000_000, est.Weekly.Ratio, 1e-12)
	assert.Equal(t, time.Date(2026, 3, 16, 0, 0, 0, 0, time.Local), est.Weekly.ResetsAt)
	assert.NotEmpty(t, est.CycleID)
}

func TestRefresh_RatioClamped(t *testing.T) {
	counter := &fakeCounter{weekly: 5_000_000_000, daily: 1, session: 1}
	p := New(Deps{Counter: counter}, testLimits(), WithNow(fixedNow))

	est, err := p.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.TierExactLocal, est.Weekly.Tier)
	assert.Equal(t, 1.0, est.Weekly.Ratio)
	assert.Equal(t, int64(5_000_000_000), est.Weekly.Tokens, "raw over-limit amount is kept")
}

func TestRefresh_AuthoritativeWinsAndSavesSnapshot(t *testing.T) {
	resets := testNow.Add(3 * time.Hour)
	auth := &fakeAuth{usage: &model.AuthoritativeUsage{
		WeeklyPercent:   40,
		SessionPercent:  150,
		SessionResetsAt: resets,
	}}
	counter := &fakeCounter{weekly: 10, daily: 5, session: 3}
	calib := &recordingCalibrator{}
	history := []model.HistoryEntry{{SessionID: "s1", Timestamp: testNow.Add(-time.Hour)}}

	p := New(Deps{
		Sources:    statsSources(model.StatsCache{}, history),
		Auth:       auth,
		Counter:    counter,
		Calibrator: calib,
	}, testLimits(), WithNow(fixedNow))

	est, err := p.Refresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.TierAuthoritative, est.Weekly.Tier)
	assert.InDelta(t, 0.4, est.Weekly.Ratio, 1e-12)
	assert.Equal(t, model.TierAuthoritative, est.Session.Tier)
	assert.Equal(t, 1.0, est.Session.Ratio)
	assert.Equal(t, resets, est.Session.ResetsAt)
	assert.Equal(t, 3*time.Hour, est.Session.ResetsIn)
	assert.Equal(t, model.TierExactLocal, est.Daily.Tier, "daily is never authoritative")
	assert.Equal(t, "s1", est.SessionID)

	require.Len(t, calib.saved, 1)
	assert.Equal(t, int64(10), calib.saved[0].LocalWeeklyTokens)
	assert.Equal(t, int64(3), calib.saved[0].LocalSessionTokens)
	assert.Equal(t, 150.0, calib.saved[0].SessionPercent)
}

func TestRefresh_SlowScanKeepsPromptAuthoritative(t *testing.T) {
	auth := &fakeAuth{usage: &model.AuthoritativeUsage{WeeklyPercent: 25, SessionPercent: 10}}
	counter := &fakeCounter{weekly: 10, delay: 30 * time.Millisecond}
	p := New(Deps{Auth: auth, Counter: counter}, testLimits(),
		WithNow(fixedNow), WithFetchTimeout(5*time.Millisecond))

	for i := range 10 {
		est, err := p.Refresh(context.Background())
		require.NoError(t, err)
		require.Equal(t, model.TierAuthoritative, est.Weekly.Tier, "cycle %d", i)
	}
}

func TestRefresh_CalibratesEachReadingOnce(t *testing.T) {
	fetched := testNow.Add(-time.Minute)
	auth := &fakeAuth{usage: &model.AuthoritativeUsage{WeeklyPercent: 100, SessionPercent: 100, FetchedAt: fetched}}
	counter := &fakeCounter{weekly: 1_000, session: 100}
	calib := &recordingCalibrator{}
	p := New(Deps{Auth: auth, Counter: counter, Calibrator: calib}, testLimits(), WithNow(fixedNow))

	for range 5 {
		counter.weekly += 500
		est, err := p.Refresh(context.Background())
		require.NoError(t, err)
		assert.Equal(t, model.TierAuthoritative, est.Weekly.Tier, "a cached reading still reports")
	}
	require.Len(t, calib.saved, 1)
	assert.Equal(t, int64(1_500), calib.saved[0].LocalWeeklyTokens)

	auth.usage = &model.AuthoritativeUsage{WeeklyPercent: 100, SessionPercent: 100, FetchedAt: fetched.Add(30 * time.Second)}
	_, err := p.Refresh(context.Background())
	require.NoError(t, err)
	assert.Len(t, calib.saved, 2)
}

func TestRefresh_TimeoutFallsBackToCalibratedScenarioB(t *testing.T) {
	calib := calibration.New(nil, calibration.WithNow(fixedNow))
	require.NoError(t, calib.Save(context.Background(), model.CalibrationSnapshot{
		Timestamp:         testNow.Add(-time.Hour),
		WeeklyPercent:     100,
		LocalWeeklyTokens: 1_800_000_000,
	}))

	auth := &fakeAuth{block: make(chan struct{})}
	defer close(auth.block)

	p := New(Deps{
		Auth:       auth,
		Counter:    &fakeCounter{},
		Calibrator: calib,
	}, testLimits(), WithNow(fixedNow), WithFetchTimeout(20*time.Millisecond))

	est, err := p.Refresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.TierCalibratedLocal, est.Weekly.Tier)
	assert.Equal(t, int64(1_800_000_000), est.Weekly.Limit)
	assert.Equal(t, model.TierCalibratedLocal, est.Daily.Tier)
	assert.Equal(t, int64(270_000_000), est.Daily.Limit, "weekly effective scaled by daily/weekly")
	assert.Equal(t, model.TierStatistical, est.Session.Tier, "no session snapshots and no exact tokens")
}

func TestRefresh_AuthErrorDegrades(t *testing.T) {
	auth := &fakeAuth{err: errors.New("boom")}
	p := New(Deps{Auth: auth, Counter: &fakeCounter{weekly: 7, daily: 7}}, testLimits(), WithNow(fixedNow))

	est, err := p.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.TierExactLocal, est.Weekly.Tier)
	assert.Equal(t, model.TierStatistical, est.Session.Tier)
}

func TestRefresh_ScanErrorUsesStatistical(t *testing.T) {
	counter := &fakeCounter{weekly: 99, err: errors.New("no claude dir")}
	p := New(Deps{Sources: statsSources(scenarioAStats(), nil), Counter: counter}, testLimits(), WithNow(fixedNow))

	est, err := p.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.TierStatistical, est.Weekly.Tier)
	assert.Equal(t, int64(10_500), est.Weekly.Tokens)
	assert.Zero(t, est.EquivalentCostUSD)
}

func TestRefresh_DropsReentrantCall(t *testing.T) {
	counter := &fakeCounter{entered: make(chan struct{}), release: make(chan struct{})}
	p := New(Deps{Counter: counter}, testLimits(), WithNow(fixedNow))

	done := make(chan error, 1)
	go func() {
		_, err := p.Refresh(context.Background())
		done <- err
	}()
	<-counter.entered

	_, err := p.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrRefreshInFlight)

	close(counter.release)
	require.NoError(t, <-done)
}

func TestRefresh_MergesWorkProjectsAndCost(t *testing.T) {
	attrib := &fakeAttributor{}
	p := New(Deps{
		Counter:    &fakeCounter{weekly: 1000, daily: 10},
		Work:       fakeWork{},
		Attributor: attrib,
		Projects:   func() []attribution.Project { return []attribution.Project{{Path: "/src/a"}} },
	}, testLimits(), WithNow(fixedNow))

	est, err := p.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 60.0, est.WorkSecondsToday)
	assert.Equal(t, 600.0, est.WorkSecondsWeek)
	assert.Equal(t, int64(1000), attrib.gotWeekly)
	assert.Equal(t, map[string]int64{"/src/a": 1000}, est.Projects)
	assert.InDelta(t, 3.00, est.EquivalentCostUSD, 1e-9)
}

type countingObserver struct {
	calls int
	last  *model.UsageEstimate
}

func (o *countingObserver) ObserveRefresh(est *model.UsageEstimate, _ time.Duration, _ error) {
	o.calls++
	o.last = est
}

func TestRefresh_NotifiesObserver(t *testing.T) {
	obs := &countingObserver{}
	p := New(Deps{}, testLimits(), WithNow(fixedNow), WithObserver(obs))

	est, err := p.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, obs.calls)
	assert.Same(t, est, obs.last)
}
