// Package model defines the snapshot data structures shared by every Threadcap
// package.
//
// This package contains the following main types:
//   - Threadcap: the persisted, resumable snapshot of one reply tree
//   - Node: one captured comment plus its reply id list
//   - Comment, Attachment: normalized comment content
//   - Commenter, Icon: normalized author information
//   - Instant: the comparable timestamp used for staleness checks
//
// Design decision: The tree is stored as an arena (maps keyed by stable,
// protocol-specific ids) rather than as pointer-linked nodes because:
//  1. The snapshot must serialize losslessly to JSON
//  2. Replies are discovered partially and out of order across passes
//  3. Several nodes may share one commenter entry
//
// The JSON shape distinguishes absent fields from empty ones: a node whose
// replies were fetched and found empty serializes "replies": [], while a
// node whose replies were never fetched omits the field entirely.
package model
