package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/threadcap/internal/config"
	"github.com/nao1215/threadcap/internal/database"
	"github.com/nao1215/threadcap/internal/model"
	"github.com/nao1215/threadcap/internal/report"
	"github.com/spf13/cobra"
)

// NewCompareCmd creates the compare command.
// This command compares two snapshots, either from files or from the
// history database.
func NewCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare [older-file newer-file]",
		Short: "Compare two snapshots of a thread",
		Long: `Compare shows what changed between two snapshots of the same thread:
- New nodes that were discovered
- Comments that failed in the newer snapshot but not in the older one
- Comments that failed before and were fetched successfully now
- New commenters

The snapshots are either two files, or the history recorded with
'threadcap capture --save-history' / 'threadcap update --save-history'.

Examples:
  # Compare two snapshot files
  threadcap compare monday.json tuesday.json

  # Compare the latest two recorded snapshots of a thread
  threadcap compare --root https://mastodon.example/users/alice/statuses/1

  # Compare the latest snapshot with a specific recorded one
  threadcap compare --root https://mastodon.example/users/alice/statuses/1 --with-snapshot-id 01J...

  # List the recorded snapshots of a thread
  threadcap compare --list --root https://mastodon.example/users/alice/statuses/1

  # List all threads in the database
  threadcap compare --list-roots`,
		Args: cobra.RangeArgs(0, 2),
		RunE: runCompareCmd,
	}

	// History flags
	cmd.Flags().StringP("root", "r", "",
		"Compare recorded snapshots of the thread with this root id")
	cmd.Flags().BoolP("list", "l", false,
		"List recorded snapshots for --root")
	cmd.Flags().BoolP("list-roots", "L", false,
		"List all threads in the history database")
	cmd.Flags().StringP("with-snapshot-id", "i", "",
		"Compare the latest snapshot with this recorded snapshot (use --list to see ids)")
	cmd.Flags().String("db-dir", "",
		"Directory of the history database (default: XDG data directory)")

	// Output format flags
	cmd.Flags().BoolP("json", "j", false,
		"Output the comparison in JSON format")

	return cmd
}

// compareRequest holds the parsed compare flags.
type compareRequest struct {
	files          []string
	root           string
	list           bool
	listRoots      bool
	withSnapshotID string
	dbDir          string
	jsonOutput     bool
}

// ComparisonResult holds the result of comparing two snapshots.
type ComparisonResult struct {
	// Older names the older snapshot (file path or snapshot id).
	Older string `json:"older"`

	// Newer names the newer snapshot (file path or snapshot id).
	Newer string `json:"newer"`

	// OlderSummary counts the contents of the older snapshot.
	OlderSummary report.Summary `json:"olderSummary"`

	// NewerSummary counts the contents of the newer snapshot.
	NewerSummary report.Summary `json:"newerSummary"`

	// Diff lists the changed ids.
	Diff report.Diff `json:"diff"`
}

// runCompareCmd executes the compare command.
func runCompareCmd(cmd *cobra.Command, args []string) error {
	req, err := parseCompareFlags(cmd, args)
	if err != nil {
		return err
	}

	// Validate arguments before opening the database.
	if err := req.validate(); err != nil {
		return err
	}

	ctx := context.Background()
	out := cmd.OutOrStdout()

	if len(req.files) == 2 {
		return compareFiles(out, req)
	}

	// Existing history is required; do not create an empty database.
	db, err := database.Open(req.dbDir, database.Options{EnableWAL: true})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	switch {
	case req.listRoots:
		return listRoots(ctx, out, db)
	case req.list:
		return listHistory(ctx, out, db, req.root)
	default:
		return compareHistory(ctx, out, db, req)
	}
}

// parseCompareFlags reads the compare flags.
func parseCompareFlags(cmd *cobra.Command, args []string) (*compareRequest, error) {
	req := &compareRequest{files: args, dbDir: config.XDGDataDir()}
	flags := cmd.Flags()
	var err error

	if req.root, err = flags.GetString("root"); err != nil {
		return nil, err
	}
	if req.list, err = flags.GetBool("list"); err != nil {
		return nil, err
	}
	if req.listRoots, err = flags.GetBool("list-roots"); err != nil {
		return nil, err
	}
	if req.withSnapshotID, err = flags.GetString("with-snapshot-id"); err != nil {
		return nil, err
	}
	if req.jsonOutput, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	dbDir, err := flags.GetString("db-dir")
	if err != nil {
		return nil, err
	}
	if dbDir != "" {
		req.dbDir = dbDir
	}
	return req, nil
}

// validate checks that exactly one comparison source was given.
func (r *compareRequest) validate() error {
	switch {
	case r.listRoots:
		return nil
	case len(r.files) == 1:
		return errors.New("two snapshot files are required for comparison")
	case len(r.files) == 2 && r.root != "":
		return errors.New("specify either two snapshot files or --root, not both")
	case len(r.files) == 2:
		return nil
	case r.root == "":
		return errors.New("two snapshot files or --root is required (use --list-roots to see recorded threads)")
	}
	return nil
}

// compareFiles compares two snapshot files.
func compareFiles(out io.Writer, req *compareRequest) error {
	older, err := model.ReadFile(req.files[0])
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}
	newer, err := model.ReadFile(req.files[1])
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}
	return writeComparison(out, newComparison(req.files[0], older, req.files[1], newer), req.jsonOutput)
}

// listRoots lists all threads that have recorded snapshots.
func listRoots(ctx context.Context, out io.Writer, db *database.Store) error {
	roots, err := db.ListRoots(ctx)
	if err != nil {
		return fmt.Errorf("failed to list roots: %w", err)
	}

	if len(roots) == 0 {
		fmt.Fprintln(out, "No recorded threads found in the database.")
		fmt.Fprintln(out, "\nUse 'threadcap capture --save-history <url>' to record a thread.")
		return nil
	}

	fmt.Fprintf(out, "Recorded threads (%d):\n\n", len(roots))
	for _, root := range roots {
		fmt.Fprintf(out, "  • %s\n", root)
	}
	fmt.Fprintln(out, "\nUse 'threadcap compare --list --root <id>' to see the snapshots of a thread.")
	return nil
}

// listHistory lists all recorded snapshots of one thread, newest first.
func listHistory(ctx context.Context, out io.Writer, db *database.Store, root string) error {
	history, err := db.History(ctx, root)
	if err != nil {
		return fmt.Errorf("failed to get snapshot history: %w", err)
	}

	if len(history) == 0 {
		fmt.Fprintf(out, "No snapshots found for %s\n", root)
		return nil
	}

	fmt.Fprintf(out, "Snapshot history for %s (%d snapshots):\n\n", root, len(history))
	fmt.Fprintf(out, "  %-26s  %-20s  %s\n", "ID", "Date", "Nodes")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 60))
	for _, meta := range history {
		fmt.Fprintf(out, "  %-26s  %-20s  %d\n",
			meta.ID,
			meta.Taken.Format("2006-01-02 15:04:05"),
			meta.NodeCount,
		)
	}

	fmt.Fprintln(out, "\nUse 'threadcap compare --root <id>' to compare the latest two snapshots.")
	return nil
}

// compareHistory compares the latest recorded snapshot of a thread with the
// previous one, or with the snapshot named by --with-snapshot-id.
func compareHistory(ctx context.Context, out io.Writer, db *database.Store, req *compareRequest) error {
	history, err := db.History(ctx, req.root)
	if err != nil {
		return fmt.Errorf("failed to get snapshot history: %w", err)
	}
	if len(history) == 0 {
		return fmt.Errorf("no snapshots found for %s", req.root)
	}

	newerID := history[0].ID
	olderID := req.withSnapshotID
	if olderID == "" {
		if len(history) < 2 {
			return fmt.Errorf("at least 2 snapshots are required for comparison (found %d)", len(history))
		}
		olderID = history[1].ID
	}

	older, err := loadRecorded(ctx, db, olderID, req.root)
	if err != nil {
		return err
	}
	newer, err := loadRecorded(ctx, db, newerID, req.root)
	if err != nil {
		return err
	}
	return writeComparison(out, newComparison(olderID, older, newerID, newer), req.jsonOutput)
}

// loadRecorded loads a recorded snapshot and checks that it belongs to root.
func loadRecorded(ctx context.Context, db *database.Store, id, root string) (*model.Threadcap, error) {
	tc, err := db.GetSnapshotByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot %s: %w", id, err)
	}
	if tc == nil {
		return nil, fmt.Errorf("snapshot %s not found", id)
	}
	if len(tc.Roots) == 0 || tc.Roots[0] != root {
		return nil, fmt.Errorf("snapshot %s does not belong to %s", id, root)
	}
	return tc, nil
}

// newComparison builds a ComparisonResult.
func newComparison(olderName string, older *model.Threadcap, newerName string, newer *model.Threadcap) ComparisonResult {
	return ComparisonResult{
		Older:        olderName,
		Newer:        newerName,
		OlderSummary: report.Summarize(older),
		NewerSummary: report.Summarize(newer),
		Diff:         report.Compare(older, newer),
	}
}

// writeComparison outputs the comparison as JSON or text.
func writeComparison(out io.Writer, result ComparisonResult, jsonOutput bool) error {
	if jsonOutput {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(result)
	}

	fmt.Fprintf(out, "Comparing %s -> %s\n\n", result.Older, result.Newer)
	fmt.Fprintf(out, "  %-16s %8s %8s\n", "", "older", "newer")
	rows := []struct {
		label        string
		older, newer int
	}{
		{"Nodes", result.OlderSummary.Nodes, result.NewerSummary.Nodes},
		{"Comments", result.OlderSummary.Comments, result.NewerSummary.Comments},
		{"Comment errors", result.OlderSummary.CommentErrors, result.NewerSummary.CommentErrors},
		{"Replies errors", result.OlderSummary.RepliesErrors, result.NewerSummary.RepliesErrors},
		{"Commenters", result.OlderSummary.Commenters, result.NewerSummary.Commenters},
		{"Max depth", result.OlderSummary.MaxDepth, result.NewerSummary.MaxDepth},
	}
	for _, row := range rows {
		fmt.Fprintf(out, "  %-16s %8d %8d\n", row.label, row.older, row.newer)
	}
	fmt.Fprintln(out)

	_, err := report.WriteDiff(out, result.Diff)
	return err
}
