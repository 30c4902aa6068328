package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Database is a connection to the archive catalog
type Database struct {
	db   *sql.DB
	path string
}

// DatabaseOptions configures database creation and connection behavior
type DatabaseOptions struct {
	// Path to the SQLite database file
	Path string

	// WALMode enables Write-Ahead Logging mode for better concurrency
	WALMode bool

	// ForeignKeys enables foreign key constraint checking
	ForeignKeys bool

	// BusyTimeout sets the timeout for locked database operations
	BusyTimeout time.Duration
}

// DefaultDatabaseOptions returns sensible default options for database connections
func DefaultDatabaseOptions(path string) *DatabaseOptions {
	return &DatabaseOptions{
		Path:        path,
		WALMode:     true,
		ForeignKeys: true,
		BusyTimeout: 30 * time.Second,
	}
}

// NewDatabase creates a new database connection with the given options
func NewDatabase(options *DatabaseOptions) (*Database, error) {
	if options == nil {
		return nil, fmt.Errorf("database options cannot be nil")
	}

	if options.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}

	if err := ensureDirectory(options.Path); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", buildConnectionString(options))
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", options.Path, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("testing database connection: %w", err)
	}

	return &Database{db: db, path: options.Path}, nil
}

// OpenCatalog opens the catalog at path with default options and makes sure
// its tables exist
func OpenCatalog(ctx context.Context, path string) (*Database, error) {
	db, err := NewDatabase(DefaultDatabaseOptions(path))
	if err != nil {
		return nil, err
	}
	if err := NewDDLManager(db).CreateSchemas(ctx, nil); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating catalog schema: %w", err)
	}
	return db, nil
}

// Path returns the database file path
func (d *Database) Path() string { return d.path }

// errClosed is returned by every operation after Close
var errClosed = errors.New("catalog database is closed")

// Close closes the database connection. Closing twice is a no-op.
func (d *Database) Close() error {
	if d.db == nil {
		return nil
	}
	db := d.db
	d.db = nil
	if err := db.Close(); err != nil {
		return fmt.Errorf("closing catalog %s: %w", d.path, err)
	}
	return nil
}

// BeginTx starts a transaction
func (d *Database) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	if d.db == nil {
		return nil, errClosed
	}
	tx, err := d.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	return tx, nil
}

// Exec runs a statement that returns no rows
func (d *Database) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if d.db == nil {
		return nil, errClosed
	}
	res, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing statement: %w", err)
	}
	return res, nil
}

// Query runs a query returning rows; the caller closes them
func (d *Database) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if d.db == nil {
		return nil, errClosed
	}
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	return rows, nil
}

// QueryRow runs a query expected to return at most one row. It must not be
// called after Close.
func (d *Database) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return d.db.QueryRowContext(ctx, query, args...)
}

// ListTables returns the names of user tables in the database
func (d *Database) ListTables(ctx context.Context) ([]string, error) {
	rows, err := d.Query(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning table name: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// Column describes one column reported by PRAGMA table_info
type Column struct {
	Name       string
	Type       string
	NotNull    bool
	Default    any
	PrimaryKey bool
}

// TableInfo returns the columns of table
func (d *Database) TableInfo(ctx context.Context, table string) ([]Column, error) {
	rows, err := d.Query(ctx, `SELECT name, type, "notnull", dflt_value, pk FROM pragma_table_info(?)`, table)
	if err != nil {
		return nil, fmt.Errorf("getting schema for table %s: %w", table, err)
	}
	defer rows.Close()

	var columns []Column
	for rows.Next() {
		var c Column
		var notNull, pk int
		if err := rows.Scan(&c.Name, &c.Type, &notNull, &c.Default, &pk); err != nil {
			return nil, fmt.Errorf("scanning schema row: %w", err)
		}
		c.NotNull = notNull != 0
		c.PrimaryKey = pk != 0
		columns = append(columns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating schema: %w", err)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("table %s does not exist", table)
	}
	return columns, nil
}

// buildConnectionString constructs the SQLite connection string with pragmas
func buildConnectionString(options *DatabaseOptions) string {
	var pragmas []string

	if options.WALMode {
		pragmas = append(pragmas, "_journal_mode=WAL")
	}

	if options.ForeignKeys {
		pragmas = append(pragmas, "_foreign_keys=on")
	}

	if options.BusyTimeout > 0 {
		pragmas = append(pragmas, fmt.Sprintf("_busy_timeout=%d", int(options.BusyTimeout.Milliseconds())))
	}

	pragmas = append(pragmas, "_synchronous=NORMAL")

	connStr := "file:" + options.Path
	if len(pragmas) > 0 {
		connStr += "?" + strings.Join(pragmas, "&")
	}

	return connStr
}

// ensureDirectory creates the directory for the database file if it doesn't exist
func ensureDirectory(dbPath string) error {
	dir := filepath.Dir(dbPath)
	if dir == "." || dir == "" {
		return nil
	}

	return os.MkdirAll(dir, 0755)
}
