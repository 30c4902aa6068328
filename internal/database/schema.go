package database

import (
	"context"
	"fmt"
	"strings"
)

// SchemaProgressCallback is called during schema creation to report progress
type SchemaProgressCallback func(current int, total int, description string)

// DDLRequest is one schema statement
type DDLRequest struct {
	TableName   string
	DDL         string
	Description string
}

// catalogSchema lists the catalog tables in creation order. Child tables
// reference archives and are removed with it.
var catalogSchema = []DDLRequest{
	{
		TableName:   "archives",
		Description: "indexed .tmod files",
		DDL: `CREATE TABLE IF NOT EXISTS "archives" (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    path TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL,
    version TEXT NOT NULL,
    format_version TEXT NOT NULL,
    legacy INTEGER NOT NULL,
    hash TEXT NOT NULL,
    digest TEXT,
    size INTEGER NOT NULL,
    entry_count INTEGER NOT NULL,
    display_name TEXT,
    author TEXT,
    side TEXT,
    indexed_at TEXT NOT NULL
)`,
	},
	{
		TableName:   "entries",
		Description: "archive entry tables",
		DDL: `CREATE TABLE IF NOT EXISTS "entries" (
    archive_id INTEGER NOT NULL REFERENCES "archives"(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    path TEXT NOT NULL,
    extension TEXT NOT NULL,
    uncompressed_length INTEGER NOT NULL,
    compressed_length INTEGER NOT NULL,
    compressed INTEGER NOT NULL,
    content_hash TEXT NOT NULL,
    PRIMARY KEY (archive_id, path)
)`,
	},
	{
		TableName:   "mod_references",
		Description: "dependencies declared in build info",
		DDL: `CREATE TABLE IF NOT EXISTS "mod_references" (
    archive_id INTEGER NOT NULL REFERENCES "archives"(id) ON DELETE CASCADE,
    kind TEXT NOT NULL,
    name TEXT NOT NULL,
    version TEXT,
    PRIMARY KEY (archive_id, kind, name)
)`,
	},
	{
		TableName:   "entries_by_extension",
		Description: "entry extension index",
		DDL:         `CREATE INDEX IF NOT EXISTS "entries_by_extension" ON "entries" (extension)`,
	},
	{
		TableName:   "entries_by_content",
		Description: "entry content hash index",
		DDL:         `CREATE INDEX IF NOT EXISTS "entries_by_content" ON "entries" (content_hash)`,
	},
}

// DDLManager creates the catalog schema
type DDLManager struct {
	db *Database
}

// NewDDLManager creates a new DDL manager
func NewDDLManager(db *Database) *DDLManager {
	return &DDLManager{db: db}
}

// CreateSchemas creates every catalog table in a single transaction
func (dm *DDLManager) CreateSchemas(ctx context.Context, progressCallback SchemaProgressCallback) error {
	return dm.executeDDLTransaction(ctx, catalogSchema, "catalog", progressCallback)
}

// executeDDLTransaction executes DDL statements in a single transaction with progress reporting
func (dm *DDLManager) executeDDLTransaction(ctx context.Context, ddlRequests []DDLRequest, description string, progressCallback SchemaProgressCallback) error {
	if len(ddlRequests) == 0 {
		return nil
	}

	tx, err := dm.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction for %s: %w", description, err)
	}
	defer tx.Rollback() // Safe to call even after commit

	for i, req := range ddlRequests {
		if _, err := tx.ExecContext(ctx, req.DDL); err != nil {
			return fmt.Errorf("executing DDL for %s in %s: %w", req.TableName, description, err)
		}

		if progressCallback != nil {
			progressCallback(i+1, len(ddlRequests), req.Description)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing DDL transaction for %s: %w", description, err)
	}

	return nil
}

// quoteSQLIdentifier quotes SQL identifiers to prevent conflicts with reserved words
func quoteSQLIdentifier(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}
