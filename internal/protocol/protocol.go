package protocol

import (
	"context"
	"sync"

	"github.com/nao1215/threadcap/internal/cache"
	"github.com/nao1215/threadcap/internal/event"
	"github.com/nao1215/threadcap/internal/fetch"
	"github.com/nao1215/threadcap/internal/model"
)

// Implementation is the four-operation contract of a protocol.
//
// FetchComment, FetchCommenter and FetchReplies report failures by
// returning an error; the engine records the error text on the node and
// carries on. Init errors are preconditions and abort before any snapshot
// exists.
type Implementation interface {
	// Init fetches the root at url and returns a new snapshot rooted at
	// the root's canonical id.
	Init(ctx context.Context, env *Env, url string) (*model.Threadcap, error)

	// FetchComment returns the normalized comment for id.
	FetchComment(ctx context.Context, env *Env, id string) (*model.Comment, error)

	// FetchCommenter returns the normalized author for attributedTo.
	FetchCommenter(ctx context.Context, env *Env, attributedTo string) (*model.Commenter, error)

	// FetchReplies returns the direct reply ids of id, in collection order.
	FetchReplies(ctx context.Context, env *Env, id string) ([]string, error)
}

// Env carries the collaborators of one update pass.
type Env struct {
	// Fetcher performs live requests. Usually a rate limited and signing
	// aware stack over an HTTPFetcher.
	Fetcher fetch.Fetcher

	// Cache holds raw responses across passes.
	Cache cache.Cache

	// State is scratch space shared by the operations of one pass.
	State *State

	// Sink receives warnings. May be nil.
	Sink event.Sink

	// UserAgent is sent with every request.
	UserAgent string

	// BearerToken, when set, is sent as an Authorization header.
	BearerToken string

	// UpdateTime is the freshness bound of the pass.
	UpdateTime model.Instant

	// Now returns the current instant. Defaults to model.Now.
	Now func() model.Instant
}

// Current returns the current instant from env.Now or the wall clock.
func (env *Env) Current() model.Instant {
	if env.Now != nil {
		return env.Now()
	}
	return model.Now()
}

// Warn emits a warning event to the env's sink.
func (env *Env) Warn(nodeID, url, message string, object any) {
	event.Emit(env.Sink, event.Warning{NodeID: nodeID, URL: url, Message: message, Object: object})
}

// State is per-run scratch state, keyed by string.
// It is safe for concurrent use.
type State struct {
	mu     sync.Mutex
	values map[string]any
}

// NewState creates empty scratch state.
func NewState() *State {
	return &State{values: make(map[string]any)}
}

// Get returns the value stored under key.
func (s *State) Get(key string) (any, bool) {
	if s == nil {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// Set stores value under key.
func (s *State) Set(key string, value any) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// SetIfAbsent stores value under key unless a value is already present.
// It reports whether value was stored.
func (s *State) SetIfAbsent(key string, value any) bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; ok {
		return false
	}
	s.values[key] = value
	return true
}

// String returns the string stored under key, or "".
func (s *State) String(key string) string {
	v, _ := s.Get(key)
	str, _ := v.(string)
	return str
}
