package frontier

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/onioncrawl/internal/model"
)

// Store is the SQLite-backed frontier. A single Store is shared by all
// worker goroutines of a process; SQLite's single-writer discipline plus
// the UPSERT-based Register make identifier registration atomic across
// processes sharing the same database file.
type Store struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// maxDepth is the configured depth cap. Targets beyond it are
	// recorded but never queued.
	maxDepth int
}

// Options configures Store behavior.
type Options struct {
	// MaxDepth caps the hop count from a seed.
	MaxDepth int

	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent
	// performance. Recommended for most use cases.
	EnableWAL bool
}

// DefaultOptions returns the default store options.
func DefaultOptions(maxDepth int) Options {
	return Options{
		MaxDepth:          maxDepth,
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the frontier database under dataDir.
// If CreateIfNotExists is false and the database doesn't exist, an error
// is returned instead of silently creating an empty frontier.
func Open(dataDir string, opts Options) (*Store, error) {
	dbPath := filepath.Join(dataDir, "frontier.db")

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("frontier database not found at %s", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check frontier path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dataDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	// modernc.org/sqlite connection string: mode=rw prevents creating new
	// files, mode=rwc allows creation.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open frontier database: %w", err)
	}

	// SQLite only supports one writer; a single pooled connection avoids
	// SQLITE_BUSY churn under concurrent workers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, maxDepth: opts.MaxDepth}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create frontier schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// MaxDepth returns the configured depth cap.
func (s *Store) MaxDepth() int {
	return s.maxDepth
}

// createTables creates the frontier schema if it doesn't exist.
func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS targets (
		identifier TEXT PRIMARY KEY,
		parent TEXT NOT NULL DEFAULT '',
		depth INTEGER NOT NULL DEFAULT 0,
		state TEXT NOT NULL DEFAULT 'discovered',
		attempts INTEGER NOT NULL DEFAULT 0,
		first_seen DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_targets_state ON targets(state);
	CREATE INDEX IF NOT EXISTS idx_targets_parent ON targets(parent);
	`

	_, err := s.db.ExecContext(context.Background(), schema)
	return err
}

// Register records a discovered identifier. It returns true when this call
// created the record ("new") and false when the identifier was already
// known ("duplicate"). The INSERT ... ON CONFLICT DO NOTHING form makes
// the check-and-insert a single atomic statement, so concurrent discovery
// of the same identifier yields exactly one "new".
//
// Identifiers beyond the depth cap are still recorded for provenance; the
// cap is enforced when the target is asked to transition to queued.
func (s *Store) Register(ctx context.Context, identifier, parent string, depth int) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
	INSERT INTO targets (identifier, parent, depth) VALUES (?, ?, ?)
	ON CONFLICT(identifier) DO NOTHING
	`, identifier, parent, depth)
	if err != nil {
		return false, fmt.Errorf("failed to register target: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read register result: %w", err)
	}
	return affected == 1, nil
}

// allowedTransition reports whether a target may move from one state to
// the other. The lifecycle is monotonic except failed -> queued.
func allowedTransition(from, to model.TargetState) bool {
	if from == to {
		return true
	}
	switch from {
	case model.TargetDiscovered:
		return to == model.TargetQueued
	case model.TargetQueued:
		return to == model.TargetFetching || to == model.TargetDead
	case model.TargetFetching:
		return to == model.TargetFetched || to == model.TargetFailed || to == model.TargetDead
	case model.TargetFailed:
		return to == model.TargetQueued || to == model.TargetDead
	case model.TargetFetched, model.TargetDead:
		return false
	}
	return false
}

// Mark transitions a target to the given state and records the attempt
// count. It enforces the lifecycle rules: ErrNotFound for unknown
// identifiers, ErrDead when reviving a dead target, ErrDepthExceeded when
// queueing a beyond-cap target, and ErrBadTransition otherwise.
func (s *Store) Mark(ctx context.Context, identifier string, state model.TargetState, attempts int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	var current string
	var depth int
	err = tx.QueryRowContext(ctx,
		"SELECT state, depth FROM targets WHERE identifier = ?", identifier,
	).Scan(&current, &depth)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to query target state: %w", err)
	}

	from := model.ParseTargetState(current)
	if state == model.TargetQueued && depth > s.maxDepth {
		return ErrDepthExceeded
	}
	if from == model.TargetDead && state != model.TargetDead {
		return ErrDead
	}
	if !allowedTransition(from, state) {
		return fmt.Errorf("%w: %s -> %s", ErrBadTransition, from, state)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE targets SET state = ?, attempts = ? WHERE identifier = ?",
		state.String(), attempts, identifier,
	); err != nil {
		return fmt.Errorf("failed to update target state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit target state: %w", err)
	}
	return nil
}

// RecordFailure applies the fetch failure policy: the attempt counter is
// incremented and the target transitions to failed, or to dead once the
// attempt budget is spent. It returns the new attempt count and whether
// the target is now dead.
func (s *Store) RecordFailure(ctx context.Context, identifier string, maxAttempts int) (attempts int, dead bool, err error) {
	target, err := s.Query(ctx, identifier)
	if err != nil {
		return 0, false, err
	}
	if target == nil {
		return 0, false, ErrNotFound
	}

	attempts = target.Attempts + 1
	if attempts >= maxAttempts {
		if err := s.Mark(ctx, identifier, model.TargetDead, attempts); err != nil {
			return attempts, false, err
		}
		return attempts, true, nil
	}

	if err := s.Mark(ctx, identifier, model.TargetFailed, attempts); err != nil {
		return attempts, false, err
	}
	return attempts, false, nil
}

// Query retrieves a target by identifier. It returns nil when absent.
func (s *Store) Query(ctx context.Context, identifier string) (*model.Target, error) {
	var target model.Target
	var state, firstSeen string

	err := s.db.QueryRowContext(ctx, `
	SELECT identifier, parent, depth, state, attempts, first_seen
	FROM targets WHERE identifier = ?
	`, identifier).Scan(
		&target.Identifier,
		&target.Parent,
		&target.Depth,
		&state,
		&target.Attempts,
		&firstSeen,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query target: %w", err)
	}

	target.State = model.ParseTargetState(state)
	target.FirstSeen = parseTimestamp(firstSeen)
	return &target, nil
}

// Stats returns the number of targets per state, for operational
// reporting.
func (s *Store) Stats(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT state, COUNT(*) FROM targets GROUP BY state")
	if err != nil {
		return nil, fmt.Errorf("failed to query frontier stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, fmt.Errorf("failed to scan frontier stats: %w", err)
		}
		stats[state] = count
	}
	return stats, rows.Err()
}

// timestampFormats contains the timestamp formats SQLite may return,
// depending on version and configuration. More specific formats first.
var timestampFormats = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999",
}

// parseTimestamp attempts to parse a timestamp string using multiple
// formats, returning zero time if none match.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
