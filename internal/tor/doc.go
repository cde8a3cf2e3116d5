// Package tor routes Threadcap's HTTP traffic through the Tor network.
//
// Some federated servers are only reachable as onion services, and some
// users prefer not to reveal their address to the servers whose threads
// they capture. This package provides:
//   - Client, an *http.Client factory over a SOCKS5 proxy (golang.org/x/net/proxy)
//   - EmbeddedTor, a tornago-managed Tor daemon for when no proxy is running
//   - onion root validation with the v3 address checksum
//
// The fetch package knows nothing about Tor; it receives the *http.Client
// built here.
package tor
