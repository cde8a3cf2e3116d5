// Package event defines the observability events emitted while a snapshot
// is being captured, and sinks that receive them.
//
// Events form a closed tagged union: every concrete type implements Event
// and reports its Kind. Sinks are optional everywhere; Emit tolerates a nil
// sink so producers never need to check.
package event
