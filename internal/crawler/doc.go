// Package crawler provides the update engine that builds and refreshes
// threadcap snapshots.
//
// # Architecture
//
// The package is designed around the Updater type. Init creates a snapshot
// from a root URL; Update walks the snapshot's reply graph level by level
// and writes comments, commenters and reply lists back into it.
//
// Design decision: The traversal is an explicit queue of levels rather than
// recursion, and nodes within a level are processed strictly one at a time
// because:
//  1. The point at which MaxNodes truncates the run must be deterministic
//  2. Rate limit bookkeeping assumes one in-flight request per snapshot
//  3. Level order is visible to callers through events and truncation
//
// # Staleness
//
// Every comment, reply list and commenter carries the instant it was last
// attempted. A pass with update time T refreshes only what is unset or
// older than T, so re-running a finished pass with the same T performs no
// fetches at all, and an interrupted pass can be resumed with the same T.
//
// # Failures
//
// A failed comment or reply fetch is recorded on the node as an error
// string and the traversal continues. The comment and its commenter are one
// unit: if the commenter cannot be fetched the comment is cleared as well.
//
// # Usage
//
//	updater := crawler.NewUpdater(fetcher, cache.NewMemory(), crawler.WithUserAgent(ua))
//	tc, err := updater.Init(ctx, "https://example.social/@alice/1", model.ProtocolActivityPub)
//	stats, err := updater.Update(ctx, tc, crawler.WithMaxLevels(3))
package crawler
