// Package protocol defines the contract between the update engine and the
// protocol-specific code that talks to remote servers.
//
// # Architecture
//
// A protocol implementation provides four operations: Init creates a new
// snapshot from a root URL, FetchComment and FetchCommenter normalize one
// comment and its author, and FetchReplies returns the direct reply ids of
// a node. Everything an operation needs from the outside world arrives in
// an Env: the fetcher stack, the response cache, the event sink and the
// per-run scratch State.
//
// Design decision: The set of protocols is closed. The engine resolves the
// implementation from the snapshot's protocol tag with a switch instead of
// a registry, so an unknown tag is a precondition error rather than a
// silent no-op.
//
// # Fetching
//
// FindOrFetchJSON is the single path by which implementations read remote
// documents. It consults the cache with the caller's freshness bound,
// performs the live fetch on a miss, stores the result and then enforces
// a 200 status and a JSON content type.
package protocol
