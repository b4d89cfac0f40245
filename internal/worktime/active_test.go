package worktime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/theirongolddev/burnmeter/internal/source"
)

var t0 = time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)

func asst(d time.Duration) source.Event { return source.Event{At: t0.Add(d), Role: source.RoleAssistant} }
func user(d time.Duration) source.Event { return source.Event{At: t0.Add(d), Role: source.RoleUser} }

func TestActiveSecondsGapBoundaries(t *testing.T) {
	tests := []struct {
		name string
		gap  time.Duration
		want float64
	}{
		{"under min segment", 9 * time.Second, 0},
		{"exactly min segment", 10 * time.Second, 10},
		{"within threshold", 15 * time.Minute, 900},
		{"exactly threshold", 20 * time.Minute, 1200},
		{"one second past threshold", 20*time.Minute + time.Second, 300},
		{"long break", 3 * time.Hour, 300},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ActiveSeconds([]source.Event{asst(0), user(tt.gap)})
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestActiveSecondsSessionTimeline(t *testing.T) {
	events := []source.Event{
		asst(0),
		user(15 * time.Minute),
		asst(15*time.Minute + 5*time.Second),
		user(45 * time.Minute),
	}
	assert.InDelta(t, 1200, ActiveSeconds(events), 1e-9)
}

func TestActiveSecondsOnlyAssistantToUser(t *testing.T) {
	// user→assistant and assistant→assistant gaps are model time, not user time.
	events := []source.Event{user(0), asst(10 * time.Minute), asst(15 * time.Minute), user(16 * time.Minute)}
	assert.InDelta(t, 60, ActiveSeconds(events), 1e-9)
}

func TestActiveSecondsTrailingAssistant(t *testing.T) {
	assert.InDelta(t, 300, ActiveSeconds([]source.Event{user(0), asst(time.Minute)}), 1e-9)
	assert.Zero(t, ActiveSeconds([]source.Event{asst(0)}))
	assert.Zero(t, ActiveSeconds(nil))
}

func TestActiveSecondsSortsInput(t *testing.T) {
	events := []source.Event{user(15 * time.Minute), asst(0)}
	assert.InDelta(t, 900, ActiveSeconds(events), 1e-9)
	assert.Equal(t, source.RoleUser, events[0].Role, "input must not be reordered")
}

func TestWindow(t *testing.T) {
	events := []source.Event{asst(-time.Second), asst(0), user(time.Hour), user(2 * time.Hour)}
	got := Window(events, t0, t0.Add(2*time.Hour))
	assert.Len(t, got, 2)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "0min", Format(59))
	assert.Equal(t, "42min", Format(42*60+5))
	assert.Equal(t, "2h 05min", Format(2*3600+5*60))
	assert.Equal(t, "0m", FormatCompact(10))
	assert.Equal(t, "7m", FormatCompact(7*60))
	assert.Equal(t, "1h30m", FormatCompact(5400))
}
