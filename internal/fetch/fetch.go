package fetch

import (
	"context"
	"net/url"
	"strings"
)

// Common header names, lowercased as they appear in Response.Headers.
const (
	HeaderAccept        = "accept"
	HeaderUserAgent     = "user-agent"
	HeaderAuthorization = "authorization"
	HeaderContentType   = "content-type"
	HeaderSignature     = "signature"
	HeaderDate          = "date"
)

// ActivityPubMediaType is the media type requested for ActivityPub objects.
const ActivityPubMediaType = "application/activity+json"

// Response is the cached unit: status, lowercased headers and body text.
type Response struct {
	Status   int               `json:"status"`
	Headers  map[string]string `json:"headers"`
	BodyText string            `json:"bodyText"`
}

// Header returns the value of a response header, case-insensitively.
func (r *Response) Header(name string) string {
	if r == nil || r.Headers == nil {
		return ""
	}
	return r.Headers[strings.ToLower(name)]
}

// Fetcher performs a GET of url with the given request headers.
//
// A Fetcher returns an error only when no response was obtained at all.
// Non-2xx responses are returned as values; interpreting the status is
// the caller's job.
type Fetcher interface {
	Fetch(ctx context.Context, url string, headers map[string]string) (*Response, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, url string, headers map[string]string) (*Response, error)

// Fetch implements Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context, url string, headers map[string]string) (*Response, error) {
	return f(ctx, url, headers)
}

// headerValue looks up a request header case-insensitively.
func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// hostname returns the lowercased host of rawURL without the port.
func hostname(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Hostname() == "" {
		return "", ErrInvalidURL
	}
	return strings.ToLower(u.Hostname()), nil
}
