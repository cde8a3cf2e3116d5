// Package report renders threadcap snapshots for people and tools.
//
// This package contains writers for different output formats:
//   - SimpleWriter: indented text tree for terminal display
//   - MarkdownWriter: thread document with a summary table for sharing
//   - JSONWriter: the snapshot itself, compact or indented
//
// It also computes summaries of a snapshot and differences between two
// snapshots of the same thread.
//
// Design decision: Comment content is stored as the HTML the remote server
// produced. Writers convert it to plain text and pick one language from the
// content map, so rendering never needs network access.
package report
