package event

import (
	"log/slog"
	"sync"
	"time"
)

// Kind tags an event.
type Kind string

// Event kinds.
const (
	KindWarning             Kind = "warning"
	KindProcessLevel        Kind = "process-level"
	KindNodesRemaining      Kind = "nodes-remaining"
	KindNodeProcessed       Kind = "node-processed"
	KindWaitingForRateLimit Kind = "waiting-for-rate-limit"
)

// Event is implemented by every event type in this package.
type Event interface {
	Kind() Kind
}

// Warning reports a structural condition that was handled with a default
// rather than treated as an error.
type Warning struct {
	// NodeID is the node being processed, if any.
	NodeID string

	// URL is the remote document the condition was found in.
	URL string

	// Message describes the condition.
	Message string

	// Object is the offending value, for diagnostics.
	Object any
}

// Kind implements Event.
func (Warning) Kind() Kind { return KindWarning }

// Phase marks the start or end of a level.
type Phase string

// Level phases.
const (
	PhaseBefore Phase = "before"
	PhaseAfter  Phase = "after"
)

// ProcessLevel is emitted before and after each breadth-first level.
// Level is 1-based: the root set is level 1.
type ProcessLevel struct {
	Phase Phase
	Level int
}

// Kind implements Event.
func (ProcessLevel) Kind() Kind { return KindProcessLevel }

// NodesRemaining reports the running count of known but unprocessed nodes.
type NodesRemaining struct {
	Remaining int
}

// Kind implements Event.
func (NodesRemaining) Kind() Kind { return KindNodesRemaining }

// Part names which half of a node was processed.
type Part string

// Node parts.
const (
	PartComment Part = "comment"
	PartReplies Part = "replies"
)

// NodeProcessed is emitted after the comment or replies of a node were
// considered. Updated is false when the staleness gate skipped the fetch.
type NodeProcessed struct {
	NodeID  string
	Part    Part
	Updated bool
}

// Kind implements Event.
func (NodeProcessed) Kind() Kind { return KindNodeProcessed }

// WaitingForRateLimit is emitted before the rate-limited fetcher sleeps.
type WaitingForRateLimit struct {
	Endpoint  string
	Wait      time.Duration
	TillReset time.Duration
	Limit     int
	Remaining int
	Reset     time.Time
}

// Kind implements Event.
func (WaitingForRateLimit) Kind() Kind { return KindWaitingForRateLimit }

// Sink receives events.
type Sink interface {
	OnEvent(e Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(e Event)

// OnEvent implements Sink.
func (f SinkFunc) OnEvent(e Event) {
	f(e)
}

// Emit sends e to s if s is not nil.
func Emit(s Sink, e Event) {
	if s != nil {
		s.OnEvent(e)
	}
}

// Multi fans events out to every non-nil sink in order.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(e Event) {
		for _, s := range sinks {
			Emit(s, e)
		}
	})
}

// Recorder keeps every event it receives. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// OnEvent implements Sink.
func (r *Recorder) OnEvent(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Warnings returns the recorded warnings.
func (r *Recorder) Warnings() []Warning {
	var warnings []Warning
	for _, e := range r.Events() {
		if w, ok := e.(Warning); ok {
			warnings = append(warnings, w)
		}
	}
	return warnings
}

// NewLogSink returns a sink that writes events to logger.
// Warnings are logged at warn level, rate-limit waits at info level and
// traversal progress at debug level.
func NewLogSink(logger *slog.Logger) Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return SinkFunc(func(e Event) {
		switch ev := e.(type) {
		case Warning:
			logger.Warn(ev.Message, "node", ev.NodeID, "url", ev.URL)
		case WaitingForRateLimit:
			logger.Info("waiting for rate limit",
				"endpoint", ev.Endpoint,
				"wait", ev.Wait,
				"tillReset", ev.TillReset,
				"limit", ev.Limit,
				"remaining", ev.Remaining,
			)
		case ProcessLevel:
			logger.Debug("process level", "phase", ev.Phase, "level", ev.Level)
		case NodesRemaining:
			logger.Debug("nodes remaining", "remaining", ev.Remaining)
		case NodeProcessed:
			logger.Debug("node processed", "node", ev.NodeID, "part", ev.Part, "updated", ev.Updated)
		}
	})
}
