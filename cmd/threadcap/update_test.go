package main

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/nao1215/threadcap/internal/model"
)

// initSnapshot writes a snapshot containing only the thread's root.
func initSnapshot(t *testing.T, ts *threadServer) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "thread.json")
	if err := model.WriteFile(path, model.NewThreadcap(model.ProtocolActivityPub, ts.rootURL())); err != nil {
		t.Fatalf("failed to write snapshot: %v", err)
	}
	return path
}

// TestNewUpdateCmd tests the update command creation.
func TestNewUpdateCmd(t *testing.T) {
	t.Parallel()

	cmd := NewUpdateCmd()

	t.Run("has batch flag", func(t *testing.T) {
		t.Parallel()
		flag := cmd.Flags().Lookup("batch")
		if flag == nil {
			t.Fatal("expected batch flag")
		}
		if flag.Shorthand != "b" {
			t.Errorf("expected shorthand 'b', got %q", flag.Shorthand)
		}
		if flag.DefValue != "4" {
			t.Errorf("expected default '4', got %q", flag.DefValue)
		}
	})

	t.Run("has shared fetch flags", func(t *testing.T) {
		t.Parallel()
		for _, name := range []string{"timeout", "user-agent", "start-node", "update-time", "save-history"} {
			if cmd.Flags().Lookup(name) == nil {
				t.Errorf("expected %s flag", name)
			}
		}
	})
}

// TestRunUpdateCmd tests update against a local ActivityPub server.
func TestRunUpdateCmd(t *testing.T) {
	t.Parallel()

	t.Run("updates a snapshot in place", func(t *testing.T) {
		t.Parallel()
		ts := newThreadServer(t)
		path := initSnapshot(t, ts)

		_, stderr, err := runCommand(t, "update", path, "--config", writeConfig(t, "defaults: {}\n"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		tc := readSnapshot(t, path)
		if len(tc.Nodes) != 3 {
			t.Errorf("expected 3 nodes, got %d", len(tc.Nodes))
		}
		if !strings.Contains(stderr, "Updating "+path) {
			t.Errorf("expected progress output, got %q", stderr)
		}
	})

	t.Run("keeps fresh nodes with an old update time", func(t *testing.T) {
		t.Parallel()
		ts := newThreadServer(t)
		path := initSnapshot(t, ts)
		cfg := writeConfig(t, "defaults: {}\n")

		if _, _, err := runCommand(t, "update", path, "--config", cfg); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		before := len(ts.requestHeaders())

		// Everything was fetched after 2000, so nothing is stale.
		if _, _, err := runCommand(t, "update", path, "--update-time", "2000-01-01T00:00:00.000Z", "--config", cfg); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if after := len(ts.requestHeaders()); after != before {
			t.Errorf("expected no requests, got %d", after-before)
		}
	})

	t.Run("start node must exist", func(t *testing.T) {
		t.Parallel()
		ts := newThreadServer(t)
		path := initSnapshot(t, ts)

		_, _, err := runCommand(t, "update", path, "--start-node", ts.URL+"/notes/unknown",
			"--config", writeConfig(t, "defaults: {}\n"))
		if err == nil {
			t.Fatal("expected error for unknown start node")
		}
		if len(ts.requestHeaders()) != 0 {
			t.Error("expected no requests before the precondition check")
		}
	})

	t.Run("updates several snapshots concurrently", func(t *testing.T) {
		t.Parallel()
		ts := newThreadServer(t)
		paths := []string{initSnapshot(t, ts), initSnapshot(t, ts), initSnapshot(t, ts)}

		args := append([]string{"update", "-b", "2", "--config", writeConfig(t, "defaults: {}\n")}, paths...)
		_, stderr, err := runCommand(t, args...)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		for _, path := range paths {
			if got := len(readSnapshot(t, path).Nodes); got != 3 {
				t.Errorf("%s: expected 3 nodes, got %d", path, got)
			}
		}
		if !strings.Contains(stderr, "Batch update completed") {
			t.Errorf("expected batch summary, got %q", stderr)
		}
	})

	t.Run("fails on unreadable snapshot", func(t *testing.T) {
		t.Parallel()
		_, _, err := runCommand(t, "update", filepath.Join(t.TempDir(), "missing.json"),
			"--config", writeConfig(t, "defaults: {}\n"))
		if err == nil {
			t.Fatal("expected error for missing snapshot")
		}
		if !strings.Contains(err.Error(), "failed to read snapshot") {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("requires at least one file", func(t *testing.T) {
		t.Parallel()
		if _, _, err := runCommand(t, "update"); err == nil {
			t.Fatal("expected error without arguments")
		}
	})
}
