// Package httpsig signs outgoing ActivityPub requests with HTTP signatures
// (draft-cavage-http-signatures), as required by servers running in
// "authorized fetch" mode.
//
// The signed components are "(request-target) host date". RSA keys produce
// rsa-sha256 signatures; Ed25519 keys produce ed25519 signatures. Signing
// is done by github.com/go-fed/httpsig.
package httpsig
