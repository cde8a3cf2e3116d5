package model

import (
	"fmt"
	"time"
)

// instantLayout is fixed-width UTC with millisecond precision, so that
// lexical order of Instant values matches chronological order.
const instantLayout = "2006-01-02T15:04:05.000Z"

// Instant is an opaque, comparable timestamp string.
// The zero value means "never".
type Instant string

// NewInstant formats t as an Instant.
func NewInstant(t time.Time) Instant {
	return Instant(t.UTC().Format(instantLayout))
}

// Now returns the current time as an Instant.
func Now() Instant {
	return NewInstant(time.Now())
}

// IsZero reports whether the instant is unset.
func (i Instant) IsZero() bool {
	return i == ""
}

// Before reports whether i is strictly earlier than other.
func (i Instant) Before(other Instant) bool {
	return i < other
}

// After reports whether i is strictly later than other.
func (i Instant) After(other Instant) bool {
	return i > other
}

// IsStale reports whether something last refreshed at i needs a refresh for
// an update pass running at updateTime.
func (i Instant) IsStale(updateTime Instant) bool {
	return i.IsZero() || i.Before(updateTime)
}

// Add returns i shifted by d. An instant that does not parse is returned
// unchanged.
func (i Instant) Add(d time.Duration) Instant {
	t, err := i.Time()
	if err != nil {
		return i
	}
	return NewInstant(t.Add(d))
}

// Time parses the instant back into a time.Time.
func (i Instant) Time() (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, string(i))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid instant %q: %w", string(i), err)
	}
	return t, nil
}

// String implements fmt.Stringer.
func (i Instant) String() string {
	return string(i)
}

// ParseInstant parses an RFC 3339 timestamp and normalizes it to the
// Instant layout.
func ParseInstant(s string) (Instant, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return "", fmt.Errorf("invalid instant %q: %w", s, err)
	}
	return NewInstant(t), nil
}
