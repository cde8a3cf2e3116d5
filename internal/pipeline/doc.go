// Package pipeline provides a framework for executing capture steps in sequence.
//
// A Job is one snapshot: loaded from a file or initialized from a root URL,
// updated, written back and optionally recorded in the history database.
// Each stage is implemented as a Step that receives the job and can modify it.
//
// Design decision: We use a pipeline pattern instead of direct function calls
// because:
// 1. It allows easy addition/removal of steps without modifying core logic
// 2. It provides consistent error handling and logging across steps
// 3. It supports cancellation via context for long-running updates
//
// The pipeline supports both individual jobs and batch processing with
// concurrency control using errgroup. Jobs in a batch share one fetcher
// stack, whose rate limit and signing state is synchronized.
package pipeline
