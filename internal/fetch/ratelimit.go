package fetch

import (
	"context"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nao1215/threadcap/internal/event"
)

// Rate limit header names. Mastodon-style servers send an ISO-8601 reset,
// per-route APIs send epoch seconds.
const (
	headerRateLimit          = "x-ratelimit-limit"
	headerRateRemaining      = "x-ratelimit-remaining"
	headerRateReset          = "x-ratelimit-reset"
	headerRouteRateLimit     = "x-rate-limit-limit"
	headerRouteRateRemaining = "x-rate-limit-remaining"
	headerRouteRateReset     = "x-rate-limit-reset"
)

// perRouteHost is rate limited per path template rather than per host.
const perRouteHost = "api.twitter.com"

var numericIDPattern = regexp.MustCompile(`\d{4,}`)

// RateLimit is the last observed limit state of one endpoint.
type RateLimit struct {
	Limit     int
	Remaining int
	Reset     time.Time
}

// WaitInput is passed to a WaitFunc before each call to a known endpoint.
type WaitInput struct {
	Endpoint  string
	Limit     int
	Remaining int
	Reset     time.Time
	TillReset time.Duration
}

// WaitFunc decides how long to wait before calling an endpoint.
// A non-positive result means no wait.
type WaitFunc func(in WaitInput) time.Duration

// DefaultWait spreads the remaining budget evenly over the time until reset.
// No wait while 100 or more calls remain; wait for the full reset when none
// remain.
func DefaultWait(in WaitInput) time.Duration {
	switch {
	case in.Remaining >= 100:
		return 0
	case in.Remaining > 0:
		millis := math.Round(float64(in.TillReset.Milliseconds()) / float64(in.Remaining))
		return time.Duration(millis) * time.Millisecond
	default:
		return in.TillReset
	}
}

// EndpointFor returns the rate limit bucket of rawURL: its hostname, or for
// per-route hosts the host plus the path with numeric ids masked as ":id".
func EndpointFor(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	host := strings.ToLower(u.Hostname())
	if host == perRouteHost {
		return host + numericIDPattern.ReplaceAllString(u.Path, ":id")
	}
	return host
}

// RateLimited wraps a Fetcher and paces calls per endpoint.
//
// Design decision: State is learned from response headers only; there is
// no client-side budget. A server that sends no rate limit headers is never
// throttled, and malformed headers leave the previous state in place.
type RateLimited struct {
	next  Fetcher
	wait  WaitFunc
	sink  event.Sink
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu     sync.Mutex
	limits map[string]RateLimit
}

// RateLimitedOption configures a RateLimited fetcher.
type RateLimitedOption func(*RateLimited)

// WithWaitFunc replaces DefaultWait.
func WithWaitFunc(fn WaitFunc) RateLimitedOption {
	return func(r *RateLimited) {
		if fn != nil {
			r.wait = fn
		}
	}
}

// WithRateLimitSink sets the sink that receives waiting-for-rate-limit events.
func WithRateLimitSink(sink event.Sink) RateLimitedOption {
	return func(r *RateLimited) {
		r.sink = sink
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) RateLimitedOption {
	return func(r *RateLimited) {
		if now != nil {
			r.now = now
		}
	}
}

// WithSleep overrides how waits are performed.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) RateLimitedOption {
	return func(r *RateLimited) {
		if sleep != nil {
			r.sleep = sleep
		}
	}
}

// NewRateLimited wraps next.
func NewRateLimited(next Fetcher, opts ...RateLimitedOption) *RateLimited {
	r := &RateLimited{
		next:   next,
		wait:   DefaultWait,
		now:    time.Now,
		sleep:  sleepContext,
		limits: make(map[string]RateLimit),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Fetch implements Fetcher.
func (r *RateLimited) Fetch(ctx context.Context, url string, headers map[string]string) (*Response, error) {
	endpoint := EndpointFor(url)

	r.mu.Lock()
	limit, known := r.limits[endpoint]
	r.mu.Unlock()

	if known {
		in := WaitInput{
			Endpoint:  endpoint,
			Limit:     limit.Limit,
			Remaining: limit.Remaining,
			Reset:     limit.Reset,
			TillReset: limit.Reset.Sub(r.now()),
		}
		if wait := r.wait(in); wait > 0 {
			event.Emit(r.sink, event.WaitingForRateLimit{
				Endpoint:  endpoint,
				Wait:      wait,
				TillReset: in.TillReset,
				Limit:     in.Limit,
				Remaining: in.Remaining,
				Reset:     in.Reset,
			})
			if err := r.sleep(ctx, wait); err != nil {
				return nil, err
			}
		}
	}

	resp, err := r.next.Fetch(ctx, url, headers)
	if err != nil {
		return nil, err
	}
	if limit, ok := parseRateLimit(resp); ok {
		r.mu.Lock()
		r.limits[endpoint] = limit
		r.mu.Unlock()
	}
	return resp, nil
}

// Limit returns the last observed state of endpoint.
func (r *RateLimited) Limit(endpoint string) (RateLimit, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	limit, ok := r.limits[endpoint]
	return limit, ok
}

// parseRateLimit reads the rate limit headers of resp.
// It succeeds only when limit, remaining and reset all parse.
func parseRateLimit(resp *Response) (RateLimit, bool) {
	if resp.Header(headerRateLimit) != "" {
		return parseLimitHeaders(resp, headerRateLimit, headerRateRemaining, headerRateReset, parseISOReset)
	}
	if resp.Header(headerRouteRateLimit) != "" {
		return parseLimitHeaders(resp, headerRouteRateLimit, headerRouteRateRemaining, headerRouteRateReset, parseEpochReset)
	}
	return RateLimit{}, false
}

func parseLimitHeaders(resp *Response, limitName, remainingName, resetName string, parseReset func(string) (time.Time, bool)) (RateLimit, bool) {
	limit, err := strconv.Atoi(strings.TrimSpace(resp.Header(limitName)))
	if err != nil {
		return RateLimit{}, false
	}
	remaining, err := strconv.Atoi(strings.TrimSpace(resp.Header(remainingName)))
	if err != nil {
		return RateLimit{}, false
	}
	reset, ok := parseReset(strings.TrimSpace(resp.Header(resetName)))
	if !ok {
		return RateLimit{}, false
	}
	return RateLimit{Limit: limit, Remaining: remaining, Reset: reset}, true
}

func parseISOReset(value string) (time.Time, bool) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func parseEpochReset(value string) (time.Time, bool) {
	seconds, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(seconds, 0), true
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
