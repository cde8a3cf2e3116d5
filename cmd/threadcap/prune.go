package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nao1215/threadcap/internal/config"
	"github.com/nao1215/threadcap/internal/database"
	"github.com/nao1215/threadcap/internal/model"
	"github.com/spf13/cobra"
)

// DefaultPruneAge is the default age of stored responses removed by prune.
const DefaultPruneAge = 30 * 24 * time.Hour

// NewPruneCmd creates the prune command.
func NewPruneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old responses from the history database",
		Long: `Prune deletes stored HTTP responses older than the given age from the
history database. Recorded snapshots are kept.

Examples:
  # Delete responses older than 30 days
  threadcap prune

  # Delete responses older than one week
  threadcap prune --older-than 168h`,
		Args: cobra.NoArgs,
		RunE: runPruneCmd,
	}

	cmd.Flags().Duration("older-than", DefaultPruneAge,
		"Delete responses fetched before now minus this duration")
	cmd.Flags().String("db-dir", "",
		"Directory of the history database (default: XDG data directory)")

	return cmd
}

// runPruneCmd executes the prune command.
func runPruneCmd(cmd *cobra.Command, _ []string) error {
	olderThan, err := cmd.Flags().GetDuration("older-than")
	if err != nil {
		return err
	}
	if olderThan < 0 {
		return errors.New("--older-than must not be negative")
	}
	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return err
	}
	if dbDir == "" {
		dbDir = config.XDGDataDir()
	}

	db, err := database.Open(dbDir, database.Options{EnableWAL: true})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	before := model.NewInstant(time.Now().Add(-olderThan))
	deleted, err := db.PruneResponses(context.Background(), before)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d responses fetched before %s\n", deleted, before)
	return nil
}
