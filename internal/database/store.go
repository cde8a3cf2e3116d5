package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/threadcap/internal/cache"
	"github.com/nao1215/threadcap/internal/fetch"
	"github.com/nao1215/threadcap/internal/model"
)

// FileName is the database file created inside the database directory.
const FileName = "threadcap.db"

// Store provides SQLite-based storage for responses and snapshot history.
// It implements cache.Cache.
//
// Design decision: Responses and snapshots share one database file. A
// snapshot is only meaningful together with the responses it was built
// from, and one file is easier to back up or delete.
type Store struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

var _ cache.Cache = (*Store)(nil)

// Options configures Store behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// ErrNotFound is returned when a requested database file does not exist.
var ErrNotFound = errors.New("database not found")

// Open opens or creates a Store in dbDir.
func Open(dbDir string, opts Options) (*Store, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("%w at %s", ErrNotFound, dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// mode=rw refuses to create a new file, mode=rwc allows it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer. Several snapshot updates may share
	// the store, so serialize on one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// createTables creates the database schema if it doesn't exist.
func (s *Store) createTables() error {
	schema := `
	-- Responses back the freshness-windowed cache. fetched is an Instant,
	-- whose fixed layout makes string comparison chronological.
	CREATE TABLE IF NOT EXISTS responses (
		id TEXT PRIMARY KEY,
		fetched TEXT NOT NULL,
		status INTEGER NOT NULL,
		headers TEXT NOT NULL,
		body TEXT NOT NULL
	);

	-- Snapshots record the state of a threadcap after each update pass.
	-- ids are ULIDs, so ordering by id is ordering by time.
	CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY,
		root TEXT NOT NULL,
		run_id TEXT,
		update_time TEXT,
		taken TEXT NOT NULL,
		node_count INTEGER DEFAULT 0,
		threadcap_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_root ON snapshots(root);
	`

	_, err := s.db.ExecContext(context.Background(), schema)
	return err
}

// Get implements cache.Cache.
func (s *Store) Get(ctx context.Context, id string, after model.Instant) (*fetch.Response, error) {
	query := `
	SELECT status, headers, body FROM responses
	WHERE id = ? AND fetched > ?
	`

	var resp fetch.Response
	var headersJSON string
	err := s.db.QueryRowContext(ctx, query, id, string(after)).Scan(&resp.Status, &headersJSON, &resp.BodyText)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // a miss is not an error
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get response: %w", err)
	}
	if err := json.Unmarshal([]byte(headersJSON), &resp.Headers); err != nil {
		return nil, fmt.Errorf("failed to parse response headers: %w", err)
	}
	return &resp, nil
}

// Put implements cache.Cache.
func (s *Store) Put(ctx context.Context, id string, fetched model.Instant, resp *fetch.Response) error {
	if resp == nil {
		return nil
	}
	headers := resp.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	headersJSON, err := json.Marshal(headers)
	if err != nil {
		return fmt.Errorf("failed to serialize headers: %w", err)
	}

	query := `
	INSERT INTO responses (id, fetched, status, headers, body)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		fetched = excluded.fetched,
		status = excluded.status,
		headers = excluded.headers,
		body = excluded.body
	`

	if _, err := s.db.ExecContext(ctx, query, id, string(fetched), resp.Status, string(headersJSON), resp.BodyText); err != nil {
		return fmt.Errorf("failed to store response: %w", err)
	}
	return nil
}

// PruneResponses deletes responses fetched at or before before.
// It returns the number of deleted rows.
func (s *Store) PruneResponses(ctx context.Context, before model.Instant) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM responses WHERE fetched <= ?`, string(before))
	if err != nil {
		return 0, fmt.Errorf("failed to prune responses: %w", err)
	}
	return result.RowsAffected()
}

// SnapshotMetadata describes one stored snapshot without loading it.
type SnapshotMetadata struct {
	// ID is the ULID of the snapshot row.
	ID string

	// Root is the first root id of the threadcap.
	Root string

	// RunID is the update pass that produced the snapshot.
	RunID string

	// UpdateTime is the freshness bound of that pass.
	UpdateTime model.Instant

	// Taken is when the snapshot was stored.
	Taken time.Time

	// NodeCount is the number of nodes in the snapshot.
	NodeCount int
}

// SaveSnapshot stores tc and returns the new snapshot id.
func (s *Store) SaveSnapshot(ctx context.Context, tc *model.Threadcap, runID string, updateTime model.Instant) (string, error) {
	if tc == nil || len(tc.Roots) == 0 {
		return "", model.ErrNoRoots
	}
	tcJSON, err := json.Marshal(tc)
	if err != nil {
		return "", fmt.Errorf("failed to serialize threadcap: %w", err)
	}

	id := ulid.Make().String()
	query := `
	INSERT INTO snapshots (id, root, run_id, update_time, taken, node_count, threadcap_json)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	taken := time.Now().UTC().Format(time.RFC3339)
	if _, err := s.db.ExecContext(ctx, query, id, tc.Roots[0], runID, string(updateTime), taken, len(tc.Nodes), string(tcJSON)); err != nil {
		return "", fmt.Errorf("failed to save snapshot: %w", err)
	}
	return id, nil
}

// LatestSnapshot returns the most recent snapshot of root, or nil.
func (s *Store) LatestSnapshot(ctx context.Context, root string) (*model.Threadcap, error) {
	query := `
	SELECT threadcap_json FROM snapshots
	WHERE root = ?
	ORDER BY id DESC
	LIMIT 1
	`
	return s.loadSnapshot(ctx, query, root)
}

// GetSnapshotByID returns the snapshot with the given id, or nil.
func (s *Store) GetSnapshotByID(ctx context.Context, id string) (*model.Threadcap, error) {
	return s.loadSnapshot(ctx, `SELECT threadcap_json FROM snapshots WHERE id = ?`, id)
}

func (s *Store) loadSnapshot(ctx context.Context, query string, arg string) (*model.Threadcap, error) {
	var tcJSON string
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&tcJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	var tc model.Threadcap
	if err := json.Unmarshal([]byte(tcJSON), &tc); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	return &tc, nil
}

// History returns the snapshot metadata of root, newest first.
func (s *Store) History(ctx context.Context, root string) ([]SnapshotMetadata, error) {
	query := `
	SELECT id, root, run_id, update_time, taken, node_count
	FROM snapshots
	WHERE root = ?
	ORDER BY id DESC
	`

	rows, err := s.db.QueryContext(ctx, query, root)
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot history: %w", err)
	}
	defer rows.Close()

	var results []SnapshotMetadata
	for rows.Next() {
		var meta SnapshotMetadata
		var runID, updateTime sql.NullString
		var taken string
		if err := rows.Scan(&meta.ID, &meta.Root, &runID, &updateTime, &taken, &meta.NodeCount); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot metadata: %w", err)
		}
		meta.RunID = runID.String
		meta.UpdateTime = model.Instant(updateTime.String)
		meta.Taken = parseTimestamp(taken)
		results = append(results, meta)
	}
	return results, rows.Err()
}

// ListRoots returns every root with at least one snapshot.
func (s *Store) ListRoots(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT root FROM snapshots ORDER BY root`)
	if err != nil {
		return nil, fmt.Errorf("failed to list roots: %w", err)
	}
	defer rows.Close()

	var roots []string
	for rows.Next() {
		var root string
		if err := rows.Scan(&root); err != nil {
			return nil, fmt.Errorf("failed to scan root: %w", err)
		}
		roots = append(roots, root)
	}
	return roots, rows.Err()
}

// timestampFormats contains the timestamp formats that may be stored.
var timestampFormats = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
}

// parseTimestamp parses a stored timestamp, or returns the zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
