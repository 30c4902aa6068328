package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// BulkInserter writes archive records into the catalog
type BulkInserter struct {
	db        *Database
	batchSize int
}

// BulkInsertOptions configures bulk insertion behavior
type BulkInsertOptions struct {
	// BatchSize determines how many rows go into one INSERT statement
	BatchSize int
}

// DefaultBulkInsertOptions returns sensible defaults for bulk insertion
func DefaultBulkInsertOptions() *BulkInsertOptions {
	return &BulkInsertOptions{
		BatchSize: 500,
	}
}

// NewBulkInserter creates a new bulk inserter with the given database and options
func NewBulkInserter(db *Database, options *BulkInsertOptions) *BulkInserter {
	if options == nil || options.BatchSize <= 0 {
		options = DefaultBulkInsertOptions()
	}

	return &BulkInserter{
		db:        db,
		batchSize: options.BatchSize,
	}
}

// ArchiveRecord is one indexed archive with its entries and references
type ArchiveRecord struct {
	Path          string
	Name          string
	Version       string
	FormatVersion string
	Legacy        bool
	Hash          string
	Digest        string
	Size          int64
	DisplayName   string
	Author        string
	Side          string
	IndexedAt     time.Time

	Entries    []EntryRecord
	References []ReferenceRecord
}

// EntryRecord is one row of an archive's entry table
type EntryRecord struct {
	Position           int
	Path               string
	UncompressedLength uint32
	CompressedLength   uint32
	// ContentHash is the hex BLAKE3 sum of the uncompressed content.
	ContentHash string
}

// ReferenceRecord is a mod dependency taken from build info
type ReferenceRecord struct {
	Kind    string
	Name    string
	Version string
}

var (
	archiveColumns   = []string{"path", "name", "version", "format_version", "legacy", "hash", "digest", "size", "entry_count", "display_name", "author", "side", "indexed_at"}
	entryColumns     = []string{"archive_id", "position", "path", "extension", "uncompressed_length", "compressed_length", "compressed", "content_hash"}
	referenceColumns = []string{"archive_id", "kind", "name", "version"}
)

// InsertArchive stores rec, replacing any earlier record for the same path,
// and returns the new archive id. All rows are written in one transaction.
func (bi *BulkInserter) InsertArchive(ctx context.Context, rec *ArchiveRecord) (int64, error) {
	if rec == nil {
		return 0, fmt.Errorf("archive record cannot be nil")
	}
	if rec.IndexedAt.IsZero() {
		rec.IndexedAt = time.Now().UTC()
	}

	tx, err := bi.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() // Safe to call even after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM "archives" WHERE path = ?`, rec.Path); err != nil {
		return 0, fmt.Errorf("removing previous record for %s: %w", rec.Path, err)
	}

	res, err := tx.ExecContext(ctx, generateInsertSQL("archives", archiveColumns, 1),
		rec.Path, rec.Name, rec.Version, rec.FormatVersion, rec.Legacy, rec.Hash, nullString(rec.Digest), rec.Size,
		len(rec.Entries), rec.DisplayName, rec.Author, rec.Side, rec.IndexedAt.Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("inserting archive %s: %w", rec.Path, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading archive id: %w", err)
	}

	entryRows := make([][]any, len(rec.Entries))
	for i, e := range rec.Entries {
		entryRows[i] = []any{id, e.Position, e.Path, extension(e.Path), e.UncompressedLength, e.CompressedLength, e.CompressedLength != e.UncompressedLength, e.ContentHash}
	}
	if err := bi.insertRows(ctx, tx, "entries", entryColumns, entryRows); err != nil {
		return 0, err
	}

	refRows := make([][]any, len(rec.References))
	for i, r := range rec.References {
		refRows[i] = []any{id, r.Kind, r.Name, nullString(r.Version)}
	}
	if err := bi.insertRows(ctx, tx, "mod_references", referenceColumns, refRows); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}

	slog.Debug("Cataloged archive",
		"path", rec.Path,
		"id", id,
		"entries", len(rec.Entries),
		"references", len(rec.References))

	return id, nil
}

// insertRows inserts rows in multi-row batches
func (bi *BulkInserter) insertRows(ctx context.Context, tx *sql.Tx, table string, columns []string, rows [][]any) error {
	for i := 0; i < len(rows); i += bi.batchSize {
		end := min(i+bi.batchSize, len(rows))
		batch := rows[i:end]

		args := make([]any, 0, len(batch)*len(columns))
		for _, row := range batch {
			args = append(args, row...)
		}

		if _, err := tx.ExecContext(ctx, generateInsertSQL(table, columns, len(batch)), args...); err != nil {
			return fmt.Errorf("inserting batch %d-%d into %s: %w", i, end-1, table, err)
		}
	}
	return nil
}

// generateInsertSQL creates an INSERT statement with placeholders for n rows
func generateInsertSQL(table string, columns []string, n int) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quoteSQLIdentifier(c)
	}
	row := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"
	rows := make([]string, n)
	for i := range rows {
		rows[i] = row
	}

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		quoteSQLIdentifier(table),
		strings.Join(quoted, ", "),
		strings.Join(rows, ", "))
}

func extension(p string) string {
	i := strings.LastIndexByte(p, '.')
	if i < 0 || strings.Contains(p[i:], "/") {
		return ""
	}
	return strings.ToLower(p[i:])
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
