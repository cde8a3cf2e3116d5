package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultMaxBodySize is the default response body limit (5 MiB).
// ActivityPub documents are small; anything larger is almost certainly
// not a JSON object we want.
const DefaultMaxBodySize int64 = 5 * 1024 * 1024

// DefaultTimeout is the timeout used when HTTPFetcher creates its own client.
const DefaultTimeout = 30 * time.Second

// HTTPFetcher is the concrete Fetcher backed by an *http.Client.
//
// Design decision: The client is injected so that the same fetcher works
// over a direct connection and over Tor (see internal/tor). The fetcher
// itself knows nothing about proxies.
type HTTPFetcher struct {
	// client performs the requests.
	client *http.Client

	// maxBodySize limits how much of a body is read.
	maxBodySize int64

	// defaultHeaders are sent to every host.
	defaultHeaders map[string]string

	// hostHeaders holds extra request headers keyed by lowercased host.
	// They never override headers set by the caller.
	hostHeaders map[string]map[string]string
}

// HTTPFetcherOption configures an HTTPFetcher.
type HTTPFetcherOption func(*HTTPFetcher)

// WithMaxBodySize sets the response body limit. Non-positive values are ignored.
func WithMaxBodySize(size int64) HTTPFetcherOption {
	return func(f *HTTPFetcher) {
		if size > 0 {
			f.maxBodySize = size
		}
	}
}

// WithHostHeaders adds extra headers for requests to specific hosts.
func WithHostHeaders(headers map[string]map[string]string) HTTPFetcherOption {
	return func(f *HTTPFetcher) {
		for host, h := range headers {
			f.hostHeaders[strings.ToLower(host)] = h
		}
	}
}

// WithDefaultHeaders adds extra headers for requests to every host.
// Host headers take precedence over them.
func WithDefaultHeaders(headers map[string]string) HTTPFetcherOption {
	return func(f *HTTPFetcher) {
		f.defaultHeaders = headers
	}
}

// NewHTTPFetcher creates a fetcher using client, or a client with
// DefaultTimeout when client is nil.
func NewHTTPFetcher(client *http.Client, opts ...HTTPFetcherOption) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	f := &HTTPFetcher{
		client:      client,
		maxBodySize: DefaultMaxBodySize,
		hostHeaders: make(map[string]map[string]string),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string, headers map[string]string) (*Response, error) {
	if headerValue(headers, HeaderUserAgent) == "" {
		return nil, ErrMissingUserAgent
	}
	host, err := hostname(url)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidURL, url)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range f.defaultHeaders {
		req.Header.Set(k, v)
	}
	for k, v := range f.hostHeaders[host] {
		req.Header.Set(k, v)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	// Read one extra byte so an exactly-at-limit body is distinguishable
	// from an oversized one.
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > f.maxBodySize {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrBodyTooLarge, url, f.maxBodySize)
	}

	out := &Response{
		Status:   resp.StatusCode,
		Headers:  make(map[string]string, len(resp.Header)),
		BodyText: string(body),
	}
	for k, values := range resp.Header {
		out.Headers[strings.ToLower(k)] = strings.Join(values, ", ")
	}
	return out, nil
}
