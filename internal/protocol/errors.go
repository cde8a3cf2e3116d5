package protocol

import "errors"

var (
	// ErrUnexpectedStatus is returned when a document is not served with 200.
	ErrUnexpectedStatus = errors.New("expected 200 response")

	// ErrNotJSON is returned when a document has a non-JSON content type.
	ErrNotJSON = errors.New("expected json response")

	// ErrNotJSONObject is returned when a JSON document is not an object.
	ErrNotJSONObject = errors.New("expected json object")
)
