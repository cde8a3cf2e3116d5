package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/nao1215/threadcap/internal/model"
	"github.com/nao1215/threadcap/internal/tor"
)

// syncBuffer is a bytes.Buffer safe for concurrent writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// runCommand executes the root command with args and returns stdout and stderr.
func runCommand(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr syncBuffer
	cmd := NewRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// writeConfig writes a config file into a temp dir and returns its path.
// Tests always pass --config so that a user's ~/.threadcap is never read.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".threadcap")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

// threadServer serves a small ActivityPub thread: a root note with two
// replies, all written by one actor.
type threadServer struct {
	*httptest.Server

	mu      sync.Mutex
	headers []http.Header
}

func newThreadServer(t *testing.T) *threadServer {
	t.Helper()
	ts := &threadServer{}
	mux := http.NewServeMux()
	ts.Server = httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	base := ts.URL
	actor := base + "/users/alice"
	note := func(path string, replies []string) map[string]any {
		items := make([]any, 0, len(replies))
		for _, r := range replies {
			items = append(items, base+r)
		}
		return map[string]any{
			"id":           base + path,
			"type":         "Note",
			"attributedTo": actor,
			"content":      "<p>hello from " + path + "</p>",
			"published":    "2024-01-01T00:00:00Z",
			"replies": map[string]any{
				"type":  "Collection",
				"first": map[string]any{"type": "CollectionPage", "items": items},
			},
		}
	}
	docs := map[string]any{
		"/notes/root": note("/notes/root", []string{"/notes/a", "/notes/b"}),
		"/notes/a":    note("/notes/a", nil),
		"/notes/b":    note("/notes/b", nil),
		"/users/alice": map[string]any{
			"id":                actor,
			"type":              "Person",
			"name":              "Alice",
			"preferredUsername": "alice",
			"url":               base + "/@alice",
		},
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		ts.mu.Lock()
		ts.headers = append(ts.headers, r.Header.Clone())
		ts.mu.Unlock()

		doc, ok := docs[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/activity+json")
		_ = json.NewEncoder(w).Encode(doc) //nolint:errcheck // test server
	})
	return ts
}

func (ts *threadServer) rootURL() string { return ts.URL + "/notes/root" }

func (ts *threadServer) requestHeaders() []http.Header {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return append([]http.Header(nil), ts.headers...)
}

func readSnapshot(t *testing.T, path string) *model.Threadcap {
	t.Helper()
	tc, err := model.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read snapshot: %v", err)
	}
	return tc
}

// TestNewCaptureCmd tests the capture command creation.
func TestNewCaptureCmd(t *testing.T) {
	t.Parallel()

	cmd := NewCaptureCmd()

	flags := []struct {
		name      string
		shorthand string
		defValue  string
	}{
		{"output", "o", ""},
		{"protocol", "", "activitypub"},
		{"max-levels", "l", "1000"},
		{"max-nodes", "n", "0"},
		{"tor", "", "false"},
		{"sign-mode", "", "when-needed"},
	}
	for _, tt := range flags {
		t.Run("has "+tt.name+" flag", func(t *testing.T) {
			t.Parallel()
			flag := cmd.Flags().Lookup(tt.name)
			if flag == nil {
				t.Fatalf("expected %s flag", tt.name)
			}
			if flag.Shorthand != tt.shorthand {
				t.Errorf("expected shorthand %q, got %q", tt.shorthand, flag.Shorthand)
			}
			if flag.DefValue != tt.defValue {
				t.Errorf("expected default %q, got %q", tt.defValue, flag.DefValue)
			}
		})
	}
}

// TestRunCaptureCmd tests capture against a local ActivityPub server.
func TestRunCaptureCmd(t *testing.T) {
	t.Parallel()

	t.Run("captures the whole thread into a file", func(t *testing.T) {
		t.Parallel()
		ts := newThreadServer(t)
		out := filepath.Join(t.TempDir(), "thread.json")

		_, stderr, err := runCommand(t, "capture", ts.rootURL(), "-o", out,
			"--config", writeConfig(t, "defaults: {}\n"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		tc := readSnapshot(t, out)
		if len(tc.Roots) != 1 || tc.Roots[0] != ts.rootURL() {
			t.Errorf("unexpected roots %v", tc.Roots)
		}
		if tc.Protocol != model.ProtocolActivityPub {
			t.Errorf("expected activitypub protocol, got %q", tc.Protocol)
		}
		if len(tc.Nodes) != 3 {
			t.Errorf("expected 3 nodes, got %d", len(tc.Nodes))
		}
		for id, node := range tc.Nodes {
			if node.Comment == nil {
				t.Errorf("expected comment on %s, got error %q", id, node.CommentError)
			}
		}
		if len(tc.Commenters) != 1 {
			t.Errorf("expected 1 commenter, got %d", len(tc.Commenters))
		}
		if !strings.Contains(stderr, "complete") {
			t.Errorf("expected stats on stderr, got %q", stderr)
		}
	})

	t.Run("prints JSON to stdout without output file", func(t *testing.T) {
		t.Parallel()
		ts := newThreadServer(t)

		stdout, _, err := runCommand(t, "capture", ts.rootURL(),
			"--config", writeConfig(t, "defaults: {}\n"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		tc, err := model.Decode(strings.NewReader(stdout))
		if err != nil {
			t.Fatalf("stdout is not a snapshot: %v", err)
		}
		if len(tc.Nodes) != 3 {
			t.Errorf("expected 3 nodes, got %d", len(tc.Nodes))
		}
	})

	t.Run("bounded capture can be resumed", func(t *testing.T) {
		t.Parallel()
		ts := newThreadServer(t)
		out := filepath.Join(t.TempDir(), "thread.json")
		cfg := writeConfig(t, "defaults: {}\n")

		if _, _, err := runCommand(t, "capture", ts.rootURL(), "-o", out, "-n", "1", "--config", cfg); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := len(readSnapshot(t, out).Nodes); got != 1 {
			t.Fatalf("expected 1 node after bounded capture, got %d", got)
		}

		if _, _, err := runCommand(t, "capture", ts.rootURL(), "-o", out, "--config", cfg); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := len(readSnapshot(t, out).Nodes); got != 3 {
			t.Errorf("expected 3 nodes after resume, got %d", got)
		}
	})

	t.Run("sends configured headers", func(t *testing.T) {
		t.Parallel()
		ts := newThreadServer(t)
		cfg := writeConfig(t, `defaults:
  userAgent: "capture-test/1.0"
  headers:
    X-Client: threadcap-test
hosts:
  127.0.0.1:
    bearerToken: host-token
`)

		_, _, err := runCommand(t, "capture", ts.rootURL(), "--bearer-token", "global-token", "--config", cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		headers := ts.requestHeaders()
		if len(headers) == 0 {
			t.Fatal("expected requests")
		}
		for _, h := range headers {
			if got := h.Get("User-Agent"); got != "capture-test/1.0" {
				t.Errorf("expected config user agent, got %q", got)
			}
			if got := h.Get("X-Client"); got != "threadcap-test" {
				t.Errorf("expected default header, got %q", got)
			}
			if got := h.Get("Authorization"); got != "Bearer host-token" {
				t.Errorf("expected host token to win, got %q", got)
			}
			if got := h.Get("Accept"); got != "application/activity+json" {
				t.Errorf("unexpected accept header %q", got)
			}
		}
	})

	t.Run("max-levels 0 only initializes", func(t *testing.T) {
		t.Parallel()
		ts := newThreadServer(t)
		out := filepath.Join(t.TempDir(), "thread.json")

		if _, _, err := runCommand(t, "capture", ts.rootURL(), "-o", out, "-l", "0",
			"--config", writeConfig(t, "defaults: {}\n")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		tc := readSnapshot(t, out)
		if len(tc.Roots) != 1 || len(tc.Nodes) != 0 {
			t.Errorf("expected roots only, got %d roots and %d nodes", len(tc.Roots), len(tc.Nodes))
		}
	})
}

// TestRunCaptureCmdErrors tests capture failures that happen before any request.
func TestRunCaptureCmdErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		args    []string
		wantErr error
		wantMsg string
	}{
		{
			name:    "requires a url",
			args:    []string{"capture"},
			wantMsg: "accepts 1 arg",
		},
		{
			name:    "rejects v2 onion roots",
			args:    []string{"capture", "http://" + strings.Repeat("a", 16) + ".onion/notes/1"},
			wantErr: tor.ErrV2AddressDeprecated,
		},
		{
			name:    "rejects out of range max-levels",
			args:    []string{"capture", "https://example.social/notes/1", "-l", "1001"},
			wantMsg: "configuration error",
		},
		{
			name:    "rejects negative max-nodes",
			args:    []string{"capture", "https://example.social/notes/1", "--max-nodes=-1"},
			wantMsg: "configuration error",
		},
		{
			name:    "rejects invalid update time",
			args:    []string{"capture", "https://example.social/notes/1", "--update-time", "yesterday"},
			wantMsg: "configuration error",
		},
		{
			name:    "rejects incomplete signing key",
			args:    []string{"capture", "https://example.social/notes/1", "--sign-key-id", "https://example.social/users/me#main-key"},
			wantMsg: "configuration error",
		},
		{
			name:    "rejects missing explicit config file",
			args:    []string{"capture", "https://example.social/notes/1", "--config", "/nonexistent/.threadcap"},
			wantMsg: "configuration file not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, _, err := runCommand(t, tt.args...)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
			if tt.wantMsg != "" && !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("expected error containing %q, got %v", tt.wantMsg, err)
			}
		})
	}

	t.Run("onion roots require tor", func(t *testing.T) {
		t.Parallel()
		host, err := tor.ComputeV3AddressFromPublicKey(make([]byte, 32))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		_, _, err = runCommand(t, "capture", "http://"+host+"/notes/1", "--config", writeConfig(t, "defaults: {}\n"))
		if !errors.Is(err, tor.ErrTorRequired) {
			t.Errorf("expected ErrTorRequired, got %v", err)
		}
	})
}
