package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/threadcap/internal/event"
)

const testUserAgent = "threadcap-test/1.0"

func TestHTTPFetcher(t *testing.T) {
	t.Parallel()

	t.Run("returns status, lowercased headers and body", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("User-Agent") != testUserAgent {
				t.Errorf("unexpected user agent %q", r.Header.Get("User-Agent"))
			}
			if r.Header.Get("Accept") != ActivityPubMediaType {
				t.Errorf("unexpected accept %q", r.Header.Get("Accept"))
			}
			w.Header().Set("Content-Type", ActivityPubMediaType)
			w.Header().Set("X-RateLimit-Remaining", "299")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"id":"x"}`))
		}))
		defer server.Close()

		f := NewHTTPFetcher(server.Client())
		resp, err := f.Fetch(context.Background(), server.URL+"/notes/1", map[string]string{
			HeaderAccept:    ActivityPubMediaType,
			HeaderUserAgent: testUserAgent,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.Status != http.StatusOK {
			t.Errorf("expected status 200, got %d", resp.Status)
		}
		if resp.Headers["content-type"] != ActivityPubMediaType {
			t.Errorf("expected lowercased content-type header, got %v", resp.Headers)
		}
		if resp.Header("X-RateLimit-Remaining") != "299" {
			t.Errorf("expected case-insensitive header lookup, got %q", resp.Header("X-RateLimit-Remaining"))
		}
		if resp.BodyText != `{"id":"x"}` {
			t.Errorf("unexpected body %q", resp.BodyText)
		}
	})

	t.Run("non-2xx is a response, not an error", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		resp, err := NewHTTPFetcher(server.Client()).Fetch(context.Background(), server.URL, map[string]string{HeaderUserAgent: testUserAgent})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.Status != http.StatusNotFound {
			t.Errorf("expected 404, got %d", resp.Status)
		}
	})

	t.Run("requires a user agent", func(t *testing.T) {
		t.Parallel()

		_, err := NewHTTPFetcher(nil).Fetch(context.Background(), "https://example.social/", nil)
		if !errors.Is(err, ErrMissingUserAgent) {
			t.Errorf("expected ErrMissingUserAgent, got %v", err)
		}
	})

	t.Run("rejects oversized bodies", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(strings.Repeat("a", 32)))
		}))
		defer server.Close()

		f := NewHTTPFetcher(server.Client(), WithMaxBodySize(16))
		_, err := f.Fetch(context.Background(), server.URL, map[string]string{HeaderUserAgent: testUserAgent})
		if !errors.Is(err, ErrBodyTooLarge) {
			t.Errorf("expected ErrBodyTooLarge, got %v", err)
		}
	})

	t.Run("adds host headers without overriding caller headers", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-Extra") != "yes" {
				t.Errorf("expected host header, got %q", r.Header.Get("X-Extra"))
			}
			if r.Header.Get("Accept") != "application/json" {
				t.Errorf("expected caller accept to win, got %q", r.Header.Get("Accept"))
			}
		}))
		defer server.Close()

		f := NewHTTPFetcher(server.Client(), WithHostHeaders(map[string]map[string]string{
			"127.0.0.1": {"X-Extra": "yes", "Accept": "text/html"},
		}))
		_, err := f.Fetch(context.Background(), server.URL, map[string]string{
			HeaderUserAgent: testUserAgent,
			HeaderAccept:    "application/json",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("host headers win over default headers", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-Tenant") != "host" {
				t.Errorf("expected host value, got %q", r.Header.Get("X-Tenant"))
			}
			if r.Header.Get("X-Client") != "threadcap" {
				t.Errorf("expected default header, got %q", r.Header.Get("X-Client"))
			}
		}))
		defer server.Close()

		f := NewHTTPFetcher(server.Client(),
			WithDefaultHeaders(map[string]string{"X-Tenant": "default", "X-Client": "threadcap"}),
			WithHostHeaders(map[string]map[string]string{"127.0.0.1": {"X-Tenant": "host"}}),
		)
		if _, err := f.Fetch(context.Background(), server.URL, map[string]string{HeaderUserAgent: testUserAgent}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestDefaultWait(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		remaining int
		tillReset time.Duration
		want      time.Duration
	}{
		{name: "plenty remaining", remaining: 150, tillReset: time.Minute, want: 0},
		{name: "exactly 100 remaining", remaining: 100, tillReset: time.Minute, want: 0},
		{name: "none remaining waits for reset", remaining: 0, tillReset: 60000 * time.Millisecond, want: 60000 * time.Millisecond},
		{name: "spread over remaining", remaining: 50, tillReset: 60000 * time.Millisecond, want: 1200 * time.Millisecond},
		{name: "rounds to millis", remaining: 3, tillReset: 1000 * time.Millisecond, want: 333 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := DefaultWait(WaitInput{Remaining: tt.remaining, TillReset: tt.tillReset})
			if got != tt.want {
				t.Errorf("DefaultWait() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEndpointFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		url  string
		want string
	}{
		{url: "https://Example.Social/users/alice/statuses/1234567", want: "example.social"},
		{url: "https://api.twitter.com/2/tweets/1234567890/replies", want: "api.twitter.com/2/tweets/:id/replies"},
		{url: "https://api.twitter.com/2/users/123", want: "api.twitter.com/2/users/123"},
	}

	for _, tt := range tests {
		if got := EndpointFor(tt.url); got != tt.want {
			t.Errorf("EndpointFor(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

// scriptedFetcher returns canned responses and records every call.
type scriptedFetcher struct {
	mu        sync.Mutex
	calls     []map[string]string
	responses []*Response
}

func (s *scriptedFetcher) Fetch(_ context.Context, _ string, headers map[string]string) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, headers)
	if len(s.responses) == 0 {
		return &Response{Status: http.StatusOK, Headers: map[string]string{}}, nil
	}
	resp := s.responses[0]
	if len(s.responses) > 1 {
		s.responses = s.responses[1:]
	}
	return resp, nil
}

func TestRateLimited(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	t.Run("waits according to observed headers", func(t *testing.T) {
		t.Parallel()

		next := &scriptedFetcher{responses: []*Response{{
			Status: http.StatusOK,
			Headers: map[string]string{
				"x-ratelimit-limit":     "300",
				"x-ratelimit-remaining": "50",
				"x-ratelimit-reset":     now.Add(time.Minute).Format(time.RFC3339Nano),
			},
		}}}
		var slept []time.Duration
		var recorder event.Recorder
		r := NewRateLimited(next,
			WithClock(clock),
			WithRateLimitSink(&recorder),
			WithSleep(func(_ context.Context, d time.Duration) error {
				slept = append(slept, d)
				return nil
			}),
		)

		ctx := context.Background()
		if _, err := r.Fetch(ctx, "https://example.social/a", nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(slept) != 0 {
			t.Fatalf("expected no wait on first call, got %v", slept)
		}
		if _, err := r.Fetch(ctx, "https://example.social/b", nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(slept) != 1 || slept[0] != 1200*time.Millisecond {
			t.Fatalf("expected one 1.2s wait, got %v", slept)
		}

		events := recorder.Events()
		if len(events) != 1 {
			t.Fatalf("expected 1 event, got %d", len(events))
		}
		wait, ok := events[0].(event.WaitingForRateLimit)
		if !ok {
			t.Fatalf("expected WaitingForRateLimit, got %T", events[0])
		}
		if wait.Endpoint != "example.social" || wait.Remaining != 50 || wait.Limit != 300 {
			t.Errorf("unexpected event %+v", wait)
		}
	})

	t.Run("parses per-route epoch headers", func(t *testing.T) {
		t.Parallel()

		reset := now.Add(15 * time.Minute).Truncate(time.Second)
		next := &scriptedFetcher{responses: []*Response{{
			Status: http.StatusOK,
			Headers: map[string]string{
				"x-rate-limit-limit":     "900",
				"x-rate-limit-remaining": "0",
				"x-rate-limit-reset":     "1704068100",
			},
		}}}
		r := NewRateLimited(next, WithClock(clock))
		if _, err := r.Fetch(context.Background(), "https://api.twitter.com/2/tweets/12345", nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		limit, ok := r.Limit("api.twitter.com/2/tweets/:id")
		if !ok {
			t.Fatal("expected endpoint state")
		}
		if limit.Limit != 900 || limit.Remaining != 0 || !limit.Reset.Equal(reset) {
			t.Errorf("unexpected state %+v", limit)
		}
	})

	t.Run("malformed headers leave state untouched", func(t *testing.T) {
		t.Parallel()

		next := &scriptedFetcher{responses: []*Response{
			{Status: http.StatusOK, Headers: map[string]string{
				"x-ratelimit-limit":     "300",
				"x-ratelimit-remaining": "299",
				"x-ratelimit-reset":     now.Add(time.Minute).Format(time.RFC3339),
			}},
			{Status: http.StatusOK, Headers: map[string]string{
				"x-ratelimit-limit":     "300",
				"x-ratelimit-remaining": "not-a-number",
				"x-ratelimit-reset":     now.Format(time.RFC3339),
			}},
		}}
		r := NewRateLimited(next, WithClock(clock))
		for range 2 {
			if _, err := r.Fetch(context.Background(), "https://example.social/x", nil); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}
		limit, _ := r.Limit("example.social")
		if limit.Remaining != 299 {
			t.Errorf("expected remaining 299 to survive malformed headers, got %d", limit.Remaining)
		}
	})

	t.Run("cancelled wait returns the context error", func(t *testing.T) {
		t.Parallel()

		next := &scriptedFetcher{responses: []*Response{{
			Status: http.StatusOK,
			Headers: map[string]string{
				"x-ratelimit-limit":     "300",
				"x-ratelimit-remaining": "0",
				"x-ratelimit-reset":     time.Now().Add(time.Hour).Format(time.RFC3339),
			},
		}}}
		r := NewRateLimited(next)
		ctx, cancel := context.WithCancel(context.Background())
		if _, err := r.Fetch(ctx, "https://example.social/x", nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		cancel()
		if _, err := r.Fetch(ctx, "https://example.social/x", nil); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestSigningAware(t *testing.T) {
	t.Parallel()

	sign := func(_ context.Context, in SignInput) (*SignedHeaders, error) {
		return &SignedHeaders{Signature: `keyId="` + in.KeyID + `"`, Date: "Mon, 01 Jan 2024 00:00:00 GMT"}, nil
	}
	apHeaders := map[string]string{HeaderAccept: ActivityPubMediaType}

	t.Run("retries signed after 401 and remembers the host", func(t *testing.T) {
		t.Parallel()

		next := &scriptedFetcher{responses: []*Response{
			{Status: http.StatusUnauthorized},
			{Status: http.StatusOK},
		}}
		s, err := NewSigningAware(next, "https://me.example/actor#main-key", nil, sign)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		resp, err := s.Fetch(context.Background(), "https://secure.example/notes/1", apHeaders)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.Status != http.StatusOK {
			t.Errorf("expected 200 after signed retry, got %d", resp.Status)
		}
		if len(next.calls) != 2 {
			t.Fatalf("expected 2 calls, got %d", len(next.calls))
		}
		if next.calls[0][HeaderSignature] != "" {
			t.Error("expected first call to be unsigned")
		}
		if next.calls[1][HeaderSignature] == "" || next.calls[1][HeaderDate] == "" {
			t.Errorf("expected second call to be signed, got %v", next.calls[1])
		}

		// Same host again: signed immediately, one call.
		if _, err := s.Fetch(context.Background(), "https://secure.example/notes/2", apHeaders); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(next.calls) != 3 || next.calls[2][HeaderSignature] == "" {
			t.Errorf("expected pre-emptive signing, got %d calls", len(next.calls))
		}
	})

	t.Run("ignores non-ActivityPub requests", func(t *testing.T) {
		t.Parallel()

		next := &scriptedFetcher{responses: []*Response{{Status: http.StatusUnauthorized}}}
		s, err := NewSigningAware(next, "key", nil, sign, WithSignMode(SignAlways))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		resp, err := s.Fetch(context.Background(), "https://secure.example/", map[string]string{HeaderAccept: "text/html"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.Status != http.StatusUnauthorized || len(next.calls) != 1 || next.calls[0][HeaderSignature] != "" {
			t.Errorf("expected a single unsigned pass-through call")
		}
	})

	t.Run("always mode signs the first request", func(t *testing.T) {
		t.Parallel()

		next := &scriptedFetcher{}
		s, err := NewSigningAware(next, "key", nil, sign, WithSignMode(SignAlways))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := s.Fetch(context.Background(), "https://open.example/", apHeaders); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(next.calls) != 1 || next.calls[0][HeaderSignature] == "" {
			t.Errorf("expected one signed call")
		}
	})

	t.Run("requires a sign function", func(t *testing.T) {
		t.Parallel()

		if _, err := NewSigningAware(&scriptedFetcher{}, "key", nil, nil); !errors.Is(err, ErrNoSignFunc) {
			t.Errorf("expected ErrNoSignFunc, got %v", err)
		}
	})
}
