// Package log provides secure logging functionality with automatic sanitization
// of sensitive information, built on top of the standard slog package.
//
// Threadcap talks to servers that may require bearer tokens or HTTP
// signatures. The SecureHandler masks those credentials in log output:
//   - Authorization, Signature and Cookie headers, also inside header maps
//   - Bearer tokens, JWTs and PEM private keys detected by pattern
//   - Attributes whose key names a secret (token, password, private key)
//
// Key ids used for HTTP signatures are public actor URLs and are logged as is.
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	logger.Info("fetching", "url", u, "headers", headers)
//	slog.SetDefault(logger)
//
// The same logger is handed to tornago when an embedded Tor daemon is used.
package log
