package crawler

import "errors"

var (
	// ErrInvalidStartNode is returned when the start node is not in the snapshot.
	ErrInvalidStartNode = errors.New("start node is not in the threadcap")

	// ErrUnsupportedProtocol is returned for protocol tags without an implementation.
	ErrUnsupportedProtocol = errors.New("unsupported protocol")

	// ErrInvalidUpdateTime is returned when the update time is not an RFC 3339 timestamp.
	ErrInvalidUpdateTime = errors.New("invalid update time")

	// ErrNilThreadcap is returned when Update is called without a snapshot.
	ErrNilThreadcap = errors.New("threadcap is nil")
)
