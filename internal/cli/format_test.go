package cli

import (
	"strings"
	"testing"
	"time"

	"github.com/theirongolddev/burnmeter/internal/model"
)

func TestFormatTokens(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1234, "1.2K"},
		{1_234_567, "1.2M"},
		{2_000_000_000, "2.0B"},
		{-1500, "-1.5K"},
	}
	for _, tt := range tests {
		if got := FormatTokens(tt.in); got != tt.want {
			t.Errorf("FormatTokens(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatCost(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0.5, "$0.50"},
		{12.34, "$12.3"},
		{123.4, "$123"},
		{12345.6, "$12,346"},
	}
	for _, tt := range tests {
		if got := FormatCost(tt.in); got != tt.want {
			t.Errorf("FormatCost(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatCountdown(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "now"},
		{30 * time.Second, "now"},
		{45 * time.Minute, "45m"},
		{2*time.Hour + 15*time.Minute, "2h 15m"},
		{4*24*time.Hour + 3*time.Hour + 59*time.Minute, "4d 3h"},
	}
	for _, tt := range tests {
		if got := FormatCountdown(tt.in); got != tt.want {
			t.Errorf("FormatCountdown(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatNumber(t *testing.T) {
	if got := FormatNumber(1234567); got != "1,234,567" {
		t.Errorf("FormatNumber = %q, want 1,234,567", got)
	}
	if got := FormatNumber(-1000); got != "-1,000" {
		t.Errorf("FormatNumber = %q, want -1,000", got)
	}
}

func TestFormatTier(t *testing.T) {
	if got := FormatTier(model.TierAuthoritative); got != "live" {
		t.Errorf("FormatTier(authoritative) = %q, want live", got)
	}
	if got := FormatTier(model.TierStatistical); got != "estimated" {
		t.Errorf("FormatTier(statistical) = %q, want estimated", got)
	}
}

func TestLevelColor(t *testing.T) {
	if got := LevelColor(0.5, 0.65, 0.8); got != ColorGreen {
		t.Errorf("LevelColor(0.5) = %v, want green", got)
	}
	if got := LevelColor(0.65, 0.65, 0.8); got != ColorOrange {
		t.Errorf("LevelColor(0.65) = %v, want orange", got)
	}
	if got := LevelColor(0.9, 0.65, 0.8); got != ColorRed {
		t.Errorf("LevelColor(0.9) = %v, want red", got)
	}
}

func TestRenderTable_ContainsCells(t *testing.T) {
	out := RenderTable(Table{
		Headers: []string{"Project", "Tokens"},
		Rows:    [][]string{{"alpha", "1.2K"}, {"---"}, {"total", "1.2K"}},
	})
	for _, want := range []string{"Project", "alpha", "total", "1.2K", "╭", "╯"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
	if RenderTable(Table{}) != "" {
		t.Error("empty table should render nothing")
	}
}

func TestRenderSparkline(t *testing.T) {
	if got := RenderSparkline([]float64{0, 7, 14}); got != "▁▄█" {
		t.Errorf("RenderSparkline = %q, want ▁▄█", got)
	}
}
