package components

import (
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/theirongolddev/burnmeter/internal/model"
)

func TestLayoutRow(t *testing.T) {
	got := LayoutRow(10, 3)
	if len(got) != 3 || got[0] != 4 || got[1] != 3 || got[2] != 3 {
		t.Fatalf("LayoutRow(10, 3) = %v, want [4 3 3]", got)
	}
	if LayoutRow(10, 0) != nil {
		t.Fatal("LayoutRow with n=0 should be nil")
	}
}

func TestMetricCardRowWidth(t *testing.T) {
	row := MetricCardRow([]Metric{
		{Label: "24h", Value: "1.2M"},
		{Label: "7d", Value: "8.4M", Sub: "320 msgs"},
	}, 60)
	for i, line := range strings.Split(row, "\n") {
		if w := lipgloss.Width(line); w != 60 {
			t.Errorf("line %d width = %d, want 60", i, w)
		}
	}
}

func TestScopeBarContents(t *testing.T) {
	out := ScopeBar("Weekly", model.ScopeUsage{
		Ratio:    0.42,
		Tokens:   840_000_000,
		Limit:    2_000_000_000,
		Tier:     model.TierCalibratedLocal,
		ResetsIn: 50 * time.Hour,
	}, Thresholds{Warning: 0.65, Critical: 0.8}, 8, 20)

	for _, want := range []string{"Weekly", "42.0%", "840.0M / 2.0B", "calibrated", "2d 2h"} {
		if !strings.Contains(out, want) {
			t.Errorf("scope bar missing %q: %q", want, out)
		}
	}
}

func TestRenderStatusBar(t *testing.T) {
	out := RenderStatusBar(40, "[r]efresh  [q]uit", "3s ago")
	if w := lipgloss.Width(out); w != 40 {
		t.Errorf("status bar width = %d, want 40", w)
	}
	if !strings.Contains(out, "[q]uit") || !strings.Contains(out, "3s ago") {
		t.Errorf("status bar missing hints or data age: %q", out)
	}
}
