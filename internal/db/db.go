package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/hpungsan/arag/internal/errors"
	"github.com/hpungsan/arag/internal/vfs"
	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// FileName is the chunk store's file name inside a corpus.
const FileName = "corpus.db"

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Rollback journal keeps the store a single self-contained file, which is what
// gets packaged.
func dsn(path string) string {
	return path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(DELETE)"
}

// Create creates a new chunk store at path and applies migrations.
// The caller is responsible for removing any previous store first.
func Create(path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, errors.NewAlreadyExists(path)
	}
	return open(path)
}

// Open opens an existing chunk store for reading and writing.
func Open(path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewMissingPrerequisite(fmt.Sprintf("no chunk store at %s; run build first", path))
		}
		return nil, errors.NewInternal(err)
	}
	return open(path)
}

func open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := verifyRollbackJournal(db); err != nil {
		db.Close()
		return nil, err
	}

	// Run migrations (this creates the file if it doesn't exist)
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// ReadOnly is a chunk store opened through a RandomAccessReader.
type ReadOnly struct {
	*sql.DB
	reg *vfs.Registration
}

// Close closes the connection pool and unregisters the storage adapter.
// The reader itself stays open and belongs to the caller.
func (r *ReadOnly) Close() error {
	dbErr := r.DB.Close()
	regErr := r.reg.Close()
	if dbErr != nil {
		return dbErr
	}
	return regErr
}

// OpenReader opens a chunk store read-only through rd, which may be a stored
// archive member. No schema changes are attempted.
func OpenReader(rd vfs.RandomAccessReader) (*ReadOnly, error) {
	reg, err := vfs.Register(FileName, rd)
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	db, err := sql.Open("sqlite", reg.DSN())
	if err != nil {
		reg.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: every connection would otherwise re-open the reader.
	db.SetMaxOpenConns(1)

	version, err := GetUserVersion(db)
	if err != nil {
		db.Close()
		reg.Close()
		return nil, err
	}
	if version > CurrentSchemaVersion {
		db.Close()
		reg.Close()
		return nil, errors.NewUnsupportedConfiguration(
			fmt.Sprintf("chunk store schema version %d is newer than supported version %d", version, CurrentSchemaVersion))
	}

	return &ReadOnly{DB: db, reg: reg}, nil
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: Initial schema (v1)
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS chunks (
		  id          INTEGER PRIMARY KEY AUTOINCREMENT,
		  file_path   TEXT NOT NULL,
		  chunk_order INTEGER NOT NULL,
		  content     TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_chunks_path_order
		ON chunks(file_path, chunk_order);

		CREATE TABLE IF NOT EXISTS sources (
		  file_path   TEXT PRIMARY KEY,
		  chunk_count INTEGER NOT NULL,
		  skip_reason TEXT
		);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(db, 1); err != nil {
			return err
		}
	}

	// Future migrations go here:
	// if version < 2 { ... }

	return nil
}

// verifyRollbackJournal checks that the store is not in WAL mode. A WAL store
// keeps committed pages in a side file that packaging would leave behind.
func verifyRollbackJournal(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if strings.EqualFold(journalMode, "wal") {
		return fmt.Errorf("expected rollback journal, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the current schema version (user_version pragma).
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func SetUserVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}
