package main

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/threadcap/internal/database"
	"github.com/nao1215/threadcap/internal/fetch"
	"github.com/nao1215/threadcap/internal/model"
)

// TestRunPruneCmd tests removal of old responses.
func TestRunPruneCmd(t *testing.T) {
	t.Parallel()

	t.Run("deletes only old responses", func(t *testing.T) {
		t.Parallel()
		dbDir := t.TempDir()
		ctx := context.Background()

		store, err := database.Open(dbDir, database.DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		resp := &fetch.Response{Status: 200, Headers: map[string]string{}, BodyText: "{}"}
		old := model.NewInstant(time.Now().Add(-48 * time.Hour))
		if err := store.Put(ctx, "https://example.social/old", old, resp); err != nil {
			t.Fatalf("failed to store response: %v", err)
		}
		if err := store.Put(ctx, "https://example.social/new", model.Now(), resp); err != nil {
			t.Fatalf("failed to store response: %v", err)
		}
		if err := store.Close(); err != nil {
			t.Fatalf("failed to close database: %v", err)
		}

		stdout, _, err := runCommand(t, "prune", "--older-than", "24h", "--db-dir", dbDir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(stdout, "Deleted 1 responses") {
			t.Errorf("unexpected output %q", stdout)
		}

		store, err = database.Open(dbDir, database.DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer store.Close()
		if got, err := store.Get(ctx, "https://example.social/old", ""); err != nil || got != nil {
			t.Errorf("expected old response to be deleted, got %v, %v", got, err)
		}
		if got, err := store.Get(ctx, "https://example.social/new", ""); err != nil || got == nil {
			t.Errorf("expected new response to be kept, got %v, %v", got, err)
		}
	})

	t.Run("rejects negative age", func(t *testing.T) {
		t.Parallel()
		_, _, err := runCommand(t, "prune", "--older-than=-1h", "--db-dir", t.TempDir())
		if err == nil {
			t.Fatal("expected error for negative age")
		}
	})

	t.Run("requires an existing database", func(t *testing.T) {
		t.Parallel()
		_, _, err := runCommand(t, "prune", "--db-dir", t.TempDir())
		if err == nil || !strings.Contains(err.Error(), "database not found") {
			t.Errorf("expected database not found, got %v", err)
		}
	})
}
