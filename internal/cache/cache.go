package cache

import (
	"context"
	"sync"

	"github.com/nao1215/threadcap/internal/fetch"
	"github.com/nao1215/threadcap/internal/model"
)

// Cache stores raw responses keyed by URL.
type Cache interface {
	// Get returns the stored response for id if it was fetched strictly
	// after after, or nil.
	Get(ctx context.Context, id string, after model.Instant) (*fetch.Response, error)

	// Put stores resp for id, replacing any previous entry.
	Put(ctx context.Context, id string, fetched model.Instant, resp *fetch.Response) error
}

type entry struct {
	fetched model.Instant
	resp    fetch.Response
}

// Memory is a mutex-guarded in-memory Cache.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]entry)}
}

// Get implements Cache.
func (m *Memory) Get(_ context.Context, id string, after model.Instant) (*fetch.Response, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	if !ok || !e.fetched.After(after) {
		return nil, nil //nolint:nilnil // a miss is not an error
	}
	resp := e.resp
	return &resp, nil
}

// Put implements Cache.
func (m *Memory) Put(_ context.Context, id string, fetched model.Instant, resp *fetch.Response) error {
	if resp == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[id] = entry{fetched: fetched, resp: *resp}
	return nil
}

// Len returns the number of stored entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
