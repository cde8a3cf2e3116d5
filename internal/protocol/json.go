package protocol

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nao1215/threadcap/internal/fetch"
	"github.com/nao1215/threadcap/internal/model"
)

// FindOrFetchJSON returns the JSON object at url.
//
// A cached response fetched strictly after after is used as-is; otherwise
// the document is fetched live and cached with the current instant, or one
// millisecond past env.UpdateTime when the clock has not yet moved beyond
// it. Lookups bounded by the pass's update time then fetch each url at most
// once per pass. Cached
// responses go through the same status and content type checks as live
// ones, so a cached 404 fails the same way the live one did.
func FindOrFetchJSON(ctx context.Context, env *Env, url string, after model.Instant, accept string) (map[string]any, error) {
	resp, err := findOrFetch(ctx, env, url, after, accept)
	if err != nil {
		return nil, err
	}
	if resp.Status != http.StatusOK {
		return nil, fmt.Errorf("%w for %s, found %d", ErrUnexpectedStatus, url, resp.Status)
	}
	contentType := resp.Header(fetch.HeaderContentType)
	if !isJSONContentType(contentType) {
		if contentType == "" {
			contentType = "<none>"
		}
		return nil, fmt.Errorf("%w for %s, found %s", ErrNotJSON, url, contentType)
	}

	decoder := json.NewDecoder(bytes.NewReader([]byte(resp.BodyText)))
	var obj map[string]any
	if err := decoder.Decode(&obj); err != nil {
		return nil, fmt.Errorf("%w for %s: %w", ErrNotJSONObject, url, err)
	}
	if obj == nil {
		return nil, fmt.Errorf("%w for %s: null", ErrNotJSONObject, url)
	}
	return obj, nil
}

func findOrFetch(ctx context.Context, env *Env, url string, after model.Instant, accept string) (*fetch.Response, error) {
	if env.Cache != nil {
		cached, err := env.Cache.Get(ctx, url, after)
		if err != nil {
			return nil, fmt.Errorf("cache lookup for %s failed: %w", url, err)
		}
		if cached != nil {
			return cached, nil
		}
	}

	headers := map[string]string{
		fetch.HeaderAccept:    accept,
		fetch.HeaderUserAgent: env.UserAgent,
	}
	if env.BearerToken != "" {
		headers[fetch.HeaderAuthorization] = "Bearer " + env.BearerToken
	}
	resp, err := env.Fetcher.Fetch(ctx, url, headers)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}

	if env.Cache != nil {
		fetched := env.Current()
		if !env.UpdateTime.IsZero() && !fetched.After(env.UpdateTime) {
			fetched = env.UpdateTime.Add(time.Millisecond)
		}
		if err := env.Cache.Put(ctx, url, fetched, resp); err != nil {
			return nil, fmt.Errorf("cache store for %s failed: %w", url, err)
		}
	}
	return resp, nil
}

// isJSONContentType accepts the ActivityPub and JSON-LD media types and
// anything else that mentions json.
func isJSONContentType(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "json")
}
