package tor

import (
	"errors"
	"testing"
	"time"
)

func TestNewEmbeddedTor(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()

		e := NewEmbeddedTor()
		if e.startupTimeout != DefaultStartupTimeout {
			t.Errorf("expected %v, got %v", DefaultStartupTimeout, e.startupTimeout)
		}
		if e.IsRunning() || e.SocksAddr() != "" {
			t.Error("expected a stopped daemon")
		}
	})

	t.Run("startup timeout option", func(t *testing.T) {
		t.Parallel()

		if e := NewEmbeddedTor(WithStartupTimeout(5 * time.Minute)); e.startupTimeout != 5*time.Minute {
			t.Errorf("expected 5m, got %v", e.startupTimeout)
		}
		if e := NewEmbeddedTor(WithStartupTimeout(0)); e.startupTimeout != DefaultStartupTimeout {
			t.Errorf("expected zero to be ignored, got %v", e.startupTimeout)
		}
	})

	t.Run("stopped daemon", func(t *testing.T) {
		t.Parallel()

		e := NewEmbeddedTor()
		if err := e.Stop(); err != nil {
			t.Errorf("expected Stop on a stopped daemon to succeed, got %v", err)
		}
		if _, err := e.NewClient(time.Second); !errors.Is(err, ErrEmbeddedNotRunning) {
			t.Errorf("expected ErrEmbeddedNotRunning, got %v", err)
		}
	})
}
