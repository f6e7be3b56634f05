package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/protocol-recon/backend/pkg/logger"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Client is the snapshot store. Snapshots are immutable once committed; the
// only mutations after creation are whole-snapshot deletions.
type Client struct {
	db  *sql.DB
	now func() time.Time
}

func NewClient(dbPath string) (*Client, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db, now: time.Now}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source TEXT NOT NULL CHECK (source IN ('APSA', 'ACONEX')),
		filename TEXT NOT NULL,
		file_hash TEXT,
		loaded_at INTEGER NOT NULL,
		row_count INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_snapshots_order ON snapshots(source, loaded_at DESC, id DESC);
	CREATE INDEX IF NOT EXISTS idx_snapshots_hash ON snapshots(source, file_hash);

	CREATE TABLE IF NOT EXISTS primary_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		snapshot_id INTEGER NOT NULL,
		code TEXT NOT NULL DEFAULT '' CHECK (length(code) <= 120),
		category TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		tag TEXT NOT NULL DEFAULT '' CHECK (length(tag) <= 120),
		subsystem TEXT NOT NULL DEFAULT '' CHECK (length(subsystem) <= 60),
		discipline TEXT NOT NULL DEFAULT '' CHECK (length(discipline) <= 10),
		status TEXT NOT NULL DEFAULT '' CHECK (length(status) <= 30),
		code_norm TEXT NOT NULL DEFAULT '',
		subsystem_norm TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (snapshot_id) REFERENCES snapshots(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_primary_code ON primary_records(snapshot_id, code_norm);
	CREATE INDEX IF NOT EXISTS idx_primary_core ON primary_records(snapshot_id, subsystem, discipline, status);

	CREATE TABLE IF NOT EXISTS secondary_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		snapshot_id INTEGER NOT NULL,
		document_no TEXT NOT NULL DEFAULT '' CHECK (length(document_no) <= 120),
		title TEXT NOT NULL DEFAULT '',
		discipline TEXT NOT NULL DEFAULT '' CHECK (length(discipline) <= 60),
		function TEXT NOT NULL DEFAULT '' CHECK (length(function) <= 120),
		subsystem_text TEXT NOT NULL DEFAULT '' CHECK (length(subsystem_text) <= 255),
		subsystem_code TEXT NOT NULL DEFAULT '' CHECK (length(subsystem_code) <= 60),
		system_no TEXT NOT NULL DEFAULT '' CHECK (length(system_no) <= 60),
		file_name TEXT NOT NULL DEFAULT '' CHECK (length(file_name) <= 255),
		equipment_tag TEXT NOT NULL DEFAULT '' CHECK (length(equipment_tag) <= 120),
		date_received TEXT NOT NULL DEFAULT '' CHECK (length(date_received) <= 30),
		revision TEXT NOT NULL DEFAULT '' CHECK (length(revision) <= 30),
		transmitted TEXT NOT NULL DEFAULT '' CHECK (length(transmitted) <= 60),
		document_no_norm TEXT NOT NULL DEFAULT '',
		subsystem_code_norm TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (snapshot_id) REFERENCES snapshots(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_secondary_doc ON secondary_records(snapshot_id, document_no_norm);
	CREATE INDEX IF NOT EXISTS idx_secondary_core ON secondary_records(snapshot_id, subsystem_code, function, discipline);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

// readTx runs fn inside a single transaction so that every read it performs
// sees the same committed state, even while an ingestion purges old snapshots.
func (c *Client) readTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin read transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
