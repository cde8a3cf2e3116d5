// Package fetch provides the "GET with headers" abstraction used by every
// protocol implementation, and the decorators layered on top of it.
//
// The stack is built from the inside out:
//
//	HTTPFetcher            plain or Tor-routed *http.Client
//	  -> SigningAware      signs ActivityPub requests for hosts that require it
//	  -> RateLimited       paces requests per endpoint from x-ratelimit headers
//
// Every decorator is safe for concurrent use so that one stack can serve
// several snapshot updates at once. Responses are plain values
// (status, lowercased headers, body text) so they can be cached as-is.
package fetch
