package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/nao1215/threadcap/internal/config"
	"github.com/nao1215/threadcap/internal/model"
	"github.com/nao1215/threadcap/internal/pipeline"
	"github.com/spf13/cobra"
)

// NewUpdateCmd creates the update command.
func NewUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <snapshot-file>...",
		Short: "Refresh existing snapshots",
		Long: `Update refreshes one or more snapshot files in place.

Only comments, commenters and reply lists older than the update time are
fetched again, and newly discovered replies are added. Several files are
updated concurrently and share rate limits.

Examples:
  # Refresh a snapshot
  threadcap update thread.json

  # Continue a capture that was stopped by --max-nodes, 200 nodes at a time
  threadcap update -n 200 thread.json

  # Keep the update time of a previous run to resume it exactly
  threadcap update --update-time 2024-05-01T10:00:00.000Z thread.json

  # Refresh only the replies below one comment
  threadcap update --start-node https://mastodon.example/users/bob/statuses/2 thread.json

  # Refresh many files, 8 at a time
  threadcap update -b 8 threads/*.json`,
		Args: cobra.MinimumNArgs(1),
		RunE: runUpdateCmd,
	}

	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of snapshot files updated concurrently")
	addFetchFlags(cmd)

	return cmd
}

// runUpdateCmd executes the update command.
func runUpdateCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	if cfg.BatchSize, err = cmd.Flags().GetInt("batch"); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cmd.ErrOrStderr(), cfg)
	ctx, cancel := signalContext(logger)
	defer cancel()

	return runUpdate(ctx, cmd, cfg, logger)
}

// runUpdate loads every snapshot up front, so that a broken file or a
// missing Tor setup is reported before any request is made.
func runUpdate(ctx context.Context, cmd *cobra.Command, cfg *config.Config, logger *slog.Logger) error {
	jobs := make([]*pipeline.Job, 0, len(cfg.Targets))
	var roots []string
	for _, path := range cfg.Targets {
		tc, err := model.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read snapshot %s: %w", path, err)
		}
		jobs = append(jobs, &pipeline.Job{Path: path, Threadcap: tc})
		roots = append(roots, tc.Roots...)
	}

	sess, err := newSession(ctx, cfg, logger, roots...)
	if err != nil {
		return err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			logger.Error("failed to release resources", "error", err)
		}
	}()

	opts, err := updateOptions(ctx, cfg)
	if err != nil {
		return err
	}
	factory := func() *pipeline.Pipeline {
		return sess.newPipeline(ctx, opts, "")
	}

	detached := context.WithoutCancel(ctx)
	if len(jobs) > 1 && cfg.BatchSize > 1 {
		return runBatchUpdate(detached, cmd.ErrOrStderr(), cfg, factory, jobs, logger)
	}
	return runSequentialUpdate(detached, cmd.ErrOrStderr(), factory, jobs, logger)
}

// runSequentialUpdate updates the snapshots one at a time.
func runSequentialUpdate(ctx context.Context, out io.Writer, factory func() *pipeline.Pipeline, jobs []*pipeline.Job, logger *slog.Logger) error {
	var failed []error
	for _, job := range jobs {
		fmt.Fprintf(out, "Updating %s...\n", job.Name())
		if err := factory().Execute(ctx, job); err != nil {
			logger.Error("update failed", "file", job.Path, "error", err)
			failed = append(failed, fmt.Errorf("%s: %w", job.Path, err))
			continue
		}
		printStats(out, job.Name(), job.Stats)
	}
	return errors.Join(failed...)
}

// runBatchUpdate updates the snapshots concurrently using BatchProcessor.
func runBatchUpdate(ctx context.Context, out io.Writer, cfg *config.Config, factory func() *pipeline.Pipeline, jobs []*pipeline.Job, logger *slog.Logger) error {
	fmt.Fprintf(out, "Starting batch update of %d snapshots (concurrency: %d)...\n\n",
		len(jobs), cfg.BatchSize)
	startTime := time.Now()

	bp := pipeline.NewBatchProcessor(factory,
		pipeline.WithConcurrency(cfg.BatchSize),
		pipeline.WithBatchLogger(logger),
	)

	var mu sync.Mutex
	var failed []error
	err := bp.ProcessBatchWithCallback(ctx, jobs, func(job *pipeline.Job, index int) {
		mu.Lock()
		defer mu.Unlock()

		if job.Err != nil {
			fmt.Fprintf(out, "[%d/%d] Update failed: %s: %v\n", index+1, len(jobs), job.Name(), job.Err)
			failed = append(failed, fmt.Errorf("%s: %w", job.Path, job.Err))
			return
		}
		fmt.Fprintf(out, "[%d/%d] ", index+1, len(jobs))
		printStats(out, job.Name(), job.Stats)
	})

	fmt.Fprintf(out, "\nBatch update completed in %s\n", time.Since(startTime).Round(time.Millisecond))
	return errors.Join(append(failed, err)...)
}
