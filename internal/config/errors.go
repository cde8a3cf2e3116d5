package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and provide specific
// information about what is wrong with the configuration.
//
// Design decision: We use package-level sentinel errors rather than
// creating new error instances in Validate(). This allows callers to use
// errors.Is() for programmatic error handling while still providing
// human-readable messages.
var (
	// ErrNoTarget is returned when no root URL or snapshot file is specified.
	ErrNoTarget = errors.New("no target specified: provide a root post url or a snapshot file")

	// ErrInvalidTimeout is returned when the timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidMaxLevels is returned when max levels is outside [0, 1000].
	ErrInvalidMaxLevels = errors.New("invalid max levels: must be between 0 and 1000")

	// ErrInvalidMaxNodes is returned when max nodes is negative.
	// Zero is allowed and makes the update a no-op.
	ErrInvalidMaxNodes = errors.New("invalid max nodes: must be non-negative")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrInvalidSignMode is returned when the signing mode is not "always" or "when-needed".
	ErrInvalidSignMode = errors.New("invalid sign mode: must be always or when-needed")

	// ErrSigningKeyIncomplete is returned when only one of key id and
	// private key file is configured.
	ErrSigningKeyIncomplete = errors.New("incomplete signing key: both keyId and privateKeyFile are required")

	// ErrConflictingOutputFormats is returned when both --json and --markdown
	// are specified. Only one output format can be used at a time.
	ErrConflictingOutputFormats = errors.New("conflicting output formats: --json and --markdown cannot be used together")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrInvalidUpdateTime is returned when the update time is not an ISO-8601 instant.
	ErrInvalidUpdateTime = errors.New("invalid update time: must be an ISO-8601 timestamp")
)
