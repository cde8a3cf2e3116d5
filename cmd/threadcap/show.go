package main

import (
	"fmt"

	"github.com/nao1215/threadcap/internal/config"
	"github.com/nao1215/threadcap/internal/model"
	"github.com/spf13/cobra"
)

// NewShowCmd creates the show command.
func NewShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <snapshot-file>",
		Short: "Render a snapshot as text, Markdown or JSON",
		Long: `Show renders a snapshot file without contacting any server.

The default output is an indented text tree of the thread followed by a
summary. Comment content is converted from HTML to plain text, and the
content language is chosen from --lang when a comment has several.

Examples:
  # Print the thread as a text tree
  threadcap show thread.json

  # Write a Markdown report
  threadcap show --markdown -o thread.md thread.json

  # Prefer German, then English content
  threadcap show --lang de --lang en thread.json`,
		Args: cobra.ExactArgs(1),
		RunE: runShowCmd,
	}

	cmd.Flags().BoolP("json", "j", false,
		"Output the snapshot as indented JSON (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output a Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write the report to the specified file path (creates directories if needed)")
	cmd.Flags().StringSlice("lang", nil,
		"Preferred content languages, best first (BCP 47 tags)")

	return cmd
}

// runShowCmd executes the show command.
func runShowCmd(cmd *cobra.Command, args []string) error {
	cfg := config.NewConfig()
	cfg.Targets = args
	cfg.Verbose = persistentBool(cmd, "verbose")

	var err error
	if cfg.JSONReport, err = cmd.Flags().GetBool("json"); err != nil {
		return err
	}
	if cfg.MarkdownReport, err = cmd.Flags().GetBool("markdown"); err != nil {
		return err
	}
	if cfg.ReportFile, err = cmd.Flags().GetString("output"); err != nil {
		return err
	}
	if cfg.Languages, err = cmd.Flags().GetStringSlice("lang"); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	tc, err := model.ReadFile(cfg.Targets[0])
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}

	out, closeOutput, err := openOutput(cmd.OutOrStdout(), cfg.ReportFile)
	if err != nil {
		return err
	}
	defer closeOutput() //nolint:errcheck // close error after a successful write is not actionable

	writer, err := newReportWriter(out, cfg)
	if err != nil {
		return err
	}
	if _, err := writer.Write(tc); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
