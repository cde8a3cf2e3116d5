// Package main provides the entry point for the Threadcap CLI.
//
// Threadcap captures the reply tree of a post on a federated social network
// into a JSON snapshot, and refreshes that snapshot incrementally.
//
// Usage:
//
//	threadcap capture <root-post-url> -o thread.json
//	threadcap update thread.json
//	threadcap show thread.json
//
// See --help for all available options.
package main

// main is the entry point for Threadcap.
func main() {
	Execute()
}
