// Package cache defines the freshness-windowed response cache consulted
// before every remote fetch, and an in-memory implementation.
//
// A cached response is usable for an update pass only if it was fetched
// strictly after the pass's "after" instant. Re-running an update with the
// same update time therefore hits the cache for everything the first run
// fetched, while a later update time forces fresh fetches.
package cache
