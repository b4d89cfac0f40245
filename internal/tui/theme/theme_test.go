package theme

import "testing"

func TestByName(t *testing.T) {
	if got := ByName("tokyo-night"); got.Name != "tokyo-night" {
		t.Errorf("ByName(tokyo-night) = %q", got.Name)
	}
	if got := ByName("nope"); got.Name != FlexokiDark.Name {
		t.Errorf("unknown theme = %q, want flexoki-dark", got.Name)
	}
}

func TestForRatio(t *testing.T) {
	th := FlexokiDark
	if got := th.ForRatio(0.1, 0.62, 0.93); got != th.Green {
		t.Errorf("ForRatio(0.1) = %v, want green", got)
	}
	if got := th.ForRatio(0.62, 0.62, 0.93); got != th.Orange {
		t.Errorf("ForRatio(0.62) = %v, want orange", got)
	}
	if got := th.ForRatio(0.95, 0.62, 0.93); got != th.Red {
		t.Errorf("ForRatio(0.95) = %v, want red", got)
	}
	if got := th.ForRatio(5, 0, 0); got != th.Green {
		t.Errorf("zero thresholds should stay green, got %v", got)
	}
}
