package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for Threadcap.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "threadcap",
		Short: "Capture and refresh reply trees from federated social networks",
		Long: `Threadcap builds a snapshot of the whole reply tree below a root post on a
federated social network (ActivityPub) and refreshes it incrementally.

Snapshots are plain JSON files. An update only refetches what is older than
the update time, so interrupted or bounded runs can be resumed at any time.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON lines")
	cmd.PersistentFlags().StringP("config", "c", "",
		"Configuration file path (default: .threadcap in current or home directory)")

	cmd.AddCommand(NewCaptureCmd())
	cmd.AddCommand(NewUpdateCmd())
	cmd.AddCommand(NewShowCmd())
	cmd.AddCommand(NewCompareCmd())
	cmd.AddCommand(NewPruneCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
