package httpsig

import "errors"

var (
	// ErrNoPEMBlock is returned when the key file has no PEM block.
	ErrNoPEMBlock = errors.New("no PEM block found")

	// ErrUnsupportedKeyType is returned for keys other than RSA and Ed25519.
	ErrUnsupportedKeyType = errors.New("unsupported private key type")

	// ErrMissingKeyID is returned when a request is signed without a key id.
	ErrMissingKeyID = errors.New("key id is required")

	// ErrMissingPrivateKey is returned when a request is signed without a key.
	ErrMissingPrivateKey = errors.New("private key is required")
)
