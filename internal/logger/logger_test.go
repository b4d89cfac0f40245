package logger

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestNew(t *testing.T) {
	for _, env := range []string{"prod", "dev", ""} {
		l, err := New(env, "warn")
		if err != nil {
			t.Fatalf("New(%q): %v", env, err)
		}
		if l.Core().Enabled(zap.InfoLevel) {
			t.Errorf("New(%q, warn) has info enabled", env)
		}
	}
	if _, err := New("mars", ""); err == nil {
		t.Error("expected error for unknown env")
	}
	if _, err := New("dev", "loud"); err == nil {
		t.Error("expected error for bad level")
	}
}

func TestContext(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Fatal("FromContext without logger returned nil")
	}
	l := zap.NewExample()
	if got := FromContext(WithContext(context.Background(), l)); got != l {
		t.Error("FromContext did not return stored logger")
	}
}
