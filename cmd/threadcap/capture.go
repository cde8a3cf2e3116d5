package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nao1215/threadcap/internal/config"
	"github.com/nao1215/threadcap/internal/crawler"
	"github.com/nao1215/threadcap/internal/model"
	"github.com/nao1215/threadcap/internal/pipeline"
	"github.com/nao1215/threadcap/internal/report"
	"github.com/nao1215/threadcap/internal/tor"
	"github.com/spf13/cobra"
)

// NewCaptureCmd creates the capture command.
func NewCaptureCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "capture <root-post-url>",
		Short: "Capture the reply tree below a root post",
		Long: `Capture fetches a root post and every reply below it, and writes the
result as a JSON snapshot.

If the output file already exists, the snapshot in it is resumed instead of
starting over, so a bounded or interrupted capture can simply be repeated.

Examples:
  # Capture a Mastodon thread into a file
  threadcap capture https://mastodon.example/users/alice/statuses/1 -o thread.json

  # Capture at most 100 nodes and 3 levels, printing JSON to stdout
  threadcap capture -n 100 -l 3 https://mastodon.example/users/alice/statuses/1

  # Capture an onion-hosted thread through a running Tor proxy
  threadcap capture --tor-proxy 127.0.0.1:9050 http://<56 chars>.onion/notes/1 -o thread.json

  # Keep history in the database for later comparison
  threadcap capture --save-history https://mastodon.example/users/alice/statuses/1 -o thread.json`,
		Args: cobra.ExactArgs(1),
		RunE: runCaptureCmd,
	}

	cmd.Flags().StringP("output", "o", "",
		"Snapshot file to write (default: print JSON to stdout)")
	cmd.Flags().String("protocol", string(model.ProtocolActivityPub),
		"Protocol of the root post")
	addFetchFlags(cmd)

	return cmd
}

// runCaptureCmd executes the capture command.
func runCaptureCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	if cfg.Output, err = cmd.Flags().GetString("output"); err != nil {
		return err
	}
	protocol, err := cmd.Flags().GetString("protocol")
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	rootURL := cfg.Targets[0]
	if err := tor.ValidateRootURL(rootURL); err != nil {
		return fmt.Errorf("invalid root url %q: %w", rootURL, err)
	}

	logger := setupLogger(cmd.ErrOrStderr(), cfg)
	ctx, cancel := signalContext(logger)
	defer cancel()

	return runCapture(ctx, cmd, cfg, logger, rootURL, model.Protocol(protocol))
}

// runCapture initializes or resumes a snapshot and runs one update pass.
func runCapture(ctx context.Context, cmd *cobra.Command, cfg *config.Config, logger *slog.Logger, rootURL string, protocol model.Protocol) error {
	sess, err := newSession(ctx, cfg, logger, rootURL)
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

	job := &pipeline.Job{Path: cfg.Output, RootURL: rootURL}
	p := sess.newPipeline(ctx, opts, protocol)

	logger.Info("starting capture", "url", rootURL, "output", cfg.Output)

	// The pipeline runs detached from ctx so that an interrupted traversal
	// is still saved. Only the update step observes the interrupt.
	if err := p.Execute(context.WithoutCancel(ctx), job); err != nil {
		return fmt.Errorf("capture failed for %s: %w", rootURL, err)
	}

	if cfg.Output == "" {
		if _, err := report.NewJSONWriter(cmd.OutOrStdout(), report.WithPrettyPrint()).Write(job.Threadcap); err != nil {
			return fmt.Errorf("failed to write snapshot: %w", err)
		}
	}

	printStats(cmd.ErrOrStderr(), job.Name(), job.Stats)
	if job.SnapshotID != "" {
		logger.Info("snapshot saved to database", "id", job.SnapshotID)
	}
	return nil
}

// newPipeline builds the load, init, update, save and history pipeline
// shared by capture and update.
func (s *session) newPipeline(interrupt context.Context, opts []crawler.UpdateOption, protocol model.Protocol) *pipeline.Pipeline {
	p := pipeline.New(pipeline.WithLogger(s.logger))
	p.AddSteps(
		pipeline.LoadStep{},
		&pipeline.InitStep{Updater: s.updater, Protocol: protocol},
		&pipeline.UpdateStep{Updater: s.updater, Options: opts, Interrupt: interrupt},
		pipeline.SaveStep{},
	)
	if s.store != nil {
		p.AddStep(&pipeline.HistoryStep{Store: s.store})
	}
	return p
}
