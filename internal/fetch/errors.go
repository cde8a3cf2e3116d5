package fetch

import "errors"

var (
	// ErrInvalidURL is returned when a URL cannot be parsed or has no host.
	ErrInvalidURL = errors.New("invalid url")

	// ErrMissingUserAgent is returned when a request carries no user-agent header.
	ErrMissingUserAgent = errors.New("user-agent header is required")

	// ErrBodyTooLarge is returned when a response body exceeds the configured limit.
	ErrBodyTooLarge = errors.New("response body too large")

	// ErrNoSignFunc is returned when signing is requested without a sign function.
	ErrNoSignFunc = errors.New("sign function is required")
)
