package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/onioncrawl/internal/model"
)

// mutateRetries bounds how often a read-modify-write cycle retries on a
// version conflict before giving up.
const mutateRetries = 5

// PageStore is the SQLite-backed document store for page records.
type PageStore struct {
	db     *sql.DB
	dbPath string
}

// Options configures PageStore behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default page store options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the page store under dataDir.
func Open(dataDir string, opts Options) (*PageStore, error) {
	dbPath := filepath.Join(dataDir, "pages.db")

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("page store not found at %s", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check page store path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dataDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	// mode=rw prevents creating new files when creation is disallowed.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open page store: %w", err)
	}

	// SQLite supports one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &PageStore{db: db, dbPath: dbPath}

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
func (s *PageStore) Close() error {
	return s.db.Close()
}

// Ping verifies the store is reachable. Worker pools call this at
// startup and refuse to start when it fails.
func (s *PageStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("page store unreachable: %w", err)
	}
	return nil
}

// createTables creates the schema if it doesn't exist.
func (s *PageStore) createTables() error {
	schema := `
	-- Pages store fetched page records as JSON documents. The version
	-- column guards read-modify-write cycles; the record JSON carries a
	-- matching copy for consumers.
	CREATE TABLE IF NOT EXISTS pages (
		id TEXT PRIMARY KEY,
		target TEXT NOT NULL UNIQUE,
		record TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		terminal INTEGER NOT NULL DEFAULT 0,
		fetched_at DATETIME NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_pages_target ON pages(target);
	CREATE INDEX IF NOT EXISTS idx_pages_terminal ON pages(terminal);
	`

	_, err := s.db.ExecContext(context.Background(), schema)
	return err
}

// Create inserts a new page record with version 1. A target may own at
// most one page; a second create for the same target returns
// ErrDuplicatePage.
func (s *PageStore) Create(ctx context.Context, page *model.Page) error {
	page.Version = 1

	record, err := json.Marshal(page)
	if err != nil {
		return fmt.Errorf("failed to serialize page: %w", err)
	}

	query := `
	INSERT INTO pages (id, target, record, version, terminal, fetched_at)
	VALUES (?, ?, ?, 1, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		page.ID,
		page.Target,
		string(record),
		boolToInt(page.Enrichment.Terminal()),
		page.FetchedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicatePage, page.Target)
		}
		return fmt.Errorf("failed to insert page: %w", err)
	}
	return nil
}

// Get retrieves a page by its identifier.
func (s *PageStore) Get(ctx context.Context, id string) (*model.Page, error) {
	return s.getBy(ctx, "id", id)
}

// GetByTarget retrieves a page by its owning target identifier.
func (s *PageStore) GetByTarget(ctx context.Context, target string) (*model.Page, error) {
	return s.getBy(ctx, "target", target)
}

func (s *PageStore) getBy(ctx context.Context, column, value string) (*model.Page, error) {
	query := fmt.Sprintf("SELECT record, version FROM pages WHERE %s = ?", column)

	var record string
	var version int64
	err := s.db.QueryRowContext(ctx, query, value).Scan(&record, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, value)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get page: %w", err)
	}

	var page model.Page
	if err := json.Unmarshal([]byte(record), &page); err != nil {
		return nil, fmt.Errorf("failed to parse page record: %w", err)
	}
	// The column is authoritative; the JSON copy may lag one write.
	page.Version = version
	return &page, nil
}

// Mutate applies fn to the page in a version-guarded read-modify-write
// cycle. On a version conflict the cycle re-reads and re-applies fn, so
// concurrent mutations of different fields both land. fn must be safe to
// run more than once.
func (s *PageStore) Mutate(ctx context.Context, id string, fn func(*model.Page) error) (*model.Page, error) {
	var lastErr error
	for attempt := 0; attempt < mutateRetries; attempt++ {
		page, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}

		expected := page.Version
		if err := fn(page); err != nil {
			return nil, err
		}

		if err := s.update(ctx, page, expected); err != nil {
			if errors.Is(err, ErrConflict) {
				lastErr = err
				continue
			}
			return nil, err
		}
		return page, nil
	}
	return nil, lastErr
}

// update writes the page back, requiring the stored version to still be
// expected. The write bumps the version.
func (s *PageStore) update(ctx context.Context, page *model.Page, expected int64) error {
	page.Version = expected + 1

	record, err := json.Marshal(page)
	if err != nil {
		return fmt.Errorf("failed to serialize page: %w", err)
	}

	query := `
	UPDATE pages
	SET record = ?, version = ?, terminal = ?, updated_at = CURRENT_TIMESTAMP
	WHERE id = ? AND version = ?
	`
	result, err := s.db.ExecContext(ctx, query,
		string(record),
		page.Version,
		boolToInt(page.Enrichment.Terminal()),
		page.ID,
		expected,
	)
	if err != nil {
		return fmt.Errorf("failed to update page: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s at version %d", ErrConflict, page.ID, expected)
	}
	return nil
}

// Stats returns page counts for operational reporting.
func (s *PageStore) Stats(ctx context.Context) (total, terminal int64, err error) {
	query := `SELECT COUNT(*), COALESCE(SUM(terminal), 0) FROM pages`
	if err := s.db.QueryRowContext(ctx, query).Scan(&total, &terminal); err != nil {
		return 0, 0, fmt.Errorf("failed to read page stats: %w", err)
	}
	return total, terminal, nil
}

// isUniqueViolation reports whether the error is a SQLite unique
// constraint failure. modernc.org/sqlite has no exported sentinel, so we
// match the message.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
