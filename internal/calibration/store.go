// Package calibration keeps recent moments where the local token count and
// an authoritative "limit reached" reading coincided, and derives an
// effective token limit from them.
package calibration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/theirongolddev/burnmeter/internal/model"
	"github.com/theirongolddev/burnmeter/internal/store"
)

const (
	// Key is the backend key holding the serialized snapshot list.
	Key = "calibration.snapshots"
	// MaxSnapshots caps the stored list.
	MaxSnapshots = 20
	// MaxAge is the age at which a snapshot stops counting.
	MaxAge = 8 * time.Hour

	minWeight = 0.1
)

// ErrNotInformative is returned by Save when no scope of the snapshot
// pairs a reading of at least 100% with a positive local token count.
var ErrNotInformative = errors.New("calibration: snapshot is not informative")

// Backend is a key-value store holding opaque blobs. Get reports a missing
// key with store.ErrNotFound; Delete of a missing key succeeds.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Store is the calibration snapshot list and its derived limits.
type Store struct {
	backend Backend
	log     *zap.Logger
	now     func() time.Time

	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(s *Store) { s.log = l } }

// WithNow overrides the clock.
func WithNow(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// New creates a Store over backend. A nil backend keeps snapshots in memory.
func New(backend Backend, opts ...Option) *Store {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	s := &Store{backend: backend, log: zap.NewNop(), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Informative reports whether snap pins down the limit of scope.
func Informative(snap model.CalibrationSnapshot, scope model.Scope) bool {
	pct, tokens := snap.Pair(scope)
	return pct >= 100 && tokens > 0
}

// Save appends snap, dropping stale entries and keeping the newest MaxSnapshots.
func (s *Store) Save(ctx context.Context, snap model.CalibrationSnapshot) error {
	if !Informative(snap, model.ScopeWeekly) && !Informative(snap, model.ScopeSession) {
		return ErrNotInformative
	}
	if snap.Timestamp.IsZero() {
		snap.Timestamp = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snaps, err := s.load(ctx)
	if err != nil {
		return err
	}
	snaps = append(s.fresh(snaps), snap)
	if len(snaps) > MaxSnapshots {
		snaps = snaps[len(snaps)-MaxSnapshots:]
	}

	data, err := json.Marshal(snaps)
	if err != nil {
		return fmt.Errorf("encoding snapshots: %w", err)
	}
	if err := s.backend.Put(ctx, Key, data); err != nil {
		return fmt.Errorf("saving snapshots: %w", err)
	}
	return nil
}

// Snapshots returns the stored snapshots, oldest first, stale ones included.
func (s *Store) Snapshots(ctx context.Context) ([]model.CalibrationSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// Clear removes every snapshot.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.Delete(ctx, Key)
}

// EffectiveLimit derives the token limit of the weekly or session scope from
// fresh snapshots: each implies tokens/(pct/100), weighted by
// max(1-age/MaxAge, 0.1). The mean is rejected outside [fallback/2, fallback*5].
func (s *Store) EffectiveLimit(ctx context.Context, scope model.Scope, fallback int64) (int64, bool) {
	if scope == model.ScopeDaily || fallback <= 0 {
		return 0, false
	}

	s.mu.Lock()
	snaps, err := s.load(ctx)
	s.mu.Unlock()
	if err != nil {
		s.log.Debug("loading calibration snapshots", zap.Error(err))
		return 0, false
	}

	return s.weightedLimit(s.fresh(snaps), scope, fallback)
}

// EffectiveDailyLimit scales the weekly effective limit by the ratio of the
// configured daily and weekly budgets.
func (s *Store) EffectiveDailyLimit(ctx context.Context, limits model.Limits) (int64, bool) {
	if limits.WeeklyTokens <= 0 || limits.DailyTokens <= 0 {
		return 0, false
	}
	weekly, ok := s.EffectiveLimit(ctx, model.ScopeWeekly, limits.WeeklyTokens)
	if !ok {
		return 0, false
	}
	return int64(float64(weekly) * float64(limits.DailyTokens) / float64(limits.WeeklyTokens)), true
}

func (s *Store) weightedLimit(snaps []model.CalibrationSnapshot, scope model.Scope, fallback int64) (int64, bool) {
	now := s.now()
	var weightedSum, totalWeight float64
	for _, snap := range snaps {
		if !Informative(snap, scope) {
			continue
		}
		pct, tokens := snap.Pair(scope)
		age := now.Sub(snap.Timestamp)
		weight := max(1-float64(age)/float64(MaxAge), minWeight)
		implied := float64(tokens) / (pct / 100)
		weightedSum += implied * weight
		totalWeight += weight
	}
	if totalWeight == 0 {
		return 0, false
	}

	limit := int64(weightedSum / totalWeight)
	if limit < fallback/2 || limit > fallback*5 {
		return 0, false
	}
	return limit, true
}

// fresh keeps snapshots younger than MaxAge. Callers hold s.mu or own snaps.
func (s *Store) fresh(snaps []model.CalibrationSnapshot) []model.CalibrationSnapshot {
	cutoff := s.now().Add(-MaxAge)
	out := snaps[:0:0]
	for _, snap := range snaps {
		if snap.Timestamp.After(cutoff) {
			out = append(out, snap)
		}
	}
	return out
}

// load reads the stored list. A corrupt blob is treated as empty.
func (s *Store) load(ctx context.Context) ([]model.CalibrationSnapshot, error) {
	data, err := s.backend.Get(ctx, Key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading snapshots: %w", err)
	}

	var snaps []model.CalibrationSnapshot
	if err := json.Unmarshal(data, &snaps); err != nil {
		s.log.Warn("discarding corrupt calibration snapshots", zap.Error(err))
		return nil, nil
	}
	return snaps, nil
}
