package database

import (
	"context"
	_ "crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"

	"github.com/opencontainers/go-digest"
	"github.com/zeebo/blake3"

	"github.com/jchantrell/tmodpack/internal/buildinfo"
	"github.com/jchantrell/tmodpack/internal/tmod"
)

// NewArchiveRecord describes an opened archive for the catalog. Every entry
// is decoded to hash its content. Build info is read from the Info entry
// when present; a malformed one is logged and skipped.
func NewArchiveRecord(path string, size int64, a *tmod.Archive) (*ArchiveRecord, error) {
	hash := a.Hash()
	rec := &ArchiveRecord{
		Path:          path,
		Name:          a.Name(),
		Version:       a.Version(),
		FormatVersion: a.FormatVersion(),
		Legacy:        a.Legacy(),
		Hash:          hex.EncodeToString(hash[:]),
		Size:          size,
	}

	var info []byte
	for i, e := range a.Entries() {
		data, err := a.GetFile(e.Path)
		if err != nil {
			return nil, fmt.Errorf("reading entry %s: %w", e.Path, err)
		}
		if e.Path == tmod.InfoEntry {
			info = data
		}
		sum := blake3.Sum256(data)
		rec.Entries = append(rec.Entries, EntryRecord{
			Position:           i,
			Path:               e.Path,
			UncompressedLength: e.UncompressedLength,
			CompressedLength:   e.CompressedLength,
			ContentHash:        hex.EncodeToString(sum[:]),
		})
	}

	if info == nil {
		return rec, nil
	}
	meta, err := buildinfo.Decode(info)
	if err != nil {
		slog.Warn("Ignoring unreadable build info", "path", path, "error", err)
		return rec, nil
	}

	rec.DisplayName = meta.DisplayName
	rec.Author = meta.Author
	rec.Side = meta.Side.String()
	for _, r := range meta.ModReferences {
		rec.References = append(rec.References, ReferenceRecord{Kind: "mod", Name: r.Name, Version: r.Version})
	}
	for _, r := range meta.WeakReferences {
		rec.References = append(rec.References, ReferenceRecord{Kind: "weak", Name: r.Name, Version: r.Version})
	}
	for _, dll := range meta.DLLReferences {
		rec.References = append(rec.References, ReferenceRecord{Kind: "dll", Name: dll})
	}
	return rec, nil
}

// FileDigest returns the sha256 digest of the file at path
func FileDigest(path string) (digest.Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	d, err := digest.SHA256.FromReader(f)
	if err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return d, nil
}

// ArchiveSummary is one row of ListArchives
type ArchiveSummary struct {
	ID            int64
	Path          string
	Name          string
	Version       string
	FormatVersion string
	EntryCount    int
	Size          int64
}

// ListArchives returns every cataloged archive ordered by name and version
func (d *Database) ListArchives(ctx context.Context) ([]ArchiveSummary, error) {
	rows, err := d.Query(ctx, `SELECT id, path, name, version, format_version, entry_count, size FROM "archives" ORDER BY name, version, path`)
	if err != nil {
		return nil, fmt.Errorf("listing archives: %w", err)
	}
	defer rows.Close()

	var out []ArchiveSummary
	for rows.Next() {
		var s ArchiveSummary
		if err := rows.Scan(&s.ID, &s.Path, &s.Name, &s.Version, &s.FormatVersion, &s.EntryCount, &s.Size); err != nil {
			return nil, fmt.Errorf("scanning archive row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// EntryMatch is an entry found by FindEntries
type EntryMatch struct {
	ArchivePath        string
	ArchiveName        string
	Path               string
	UncompressedLength uint32
	Compressed         bool
}

// FindEntries returns entries whose path matches the SQLite GLOB pattern
func (d *Database) FindEntries(ctx context.Context, pattern string) ([]EntryMatch, error) {
	rows, err := d.Query(ctx, `
		SELECT a.path, a.name, e.path, e.uncompressed_length, e.compressed
		FROM "entries" e JOIN "archives" a ON a.id = e.archive_id
		WHERE e.path GLOB ?
		ORDER BY a.name, e.position`, pattern)
	if err != nil {
		return nil, fmt.Errorf("finding entries: %w", err)
	}
	defer rows.Close()

	var out []EntryMatch
	for rows.Next() {
		var m EntryMatch
		if err := rows.Scan(&m.ArchivePath, &m.ArchiveName, &m.Path, &m.UncompressedLength, &m.Compressed); err != nil {
			return nil, fmt.Errorf("scanning entry row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Dependents returns the names of cataloged mods that reference name
func (d *Database) Dependents(ctx context.Context, name string) ([]string, error) {
	rows, err := d.Query(ctx, `
		SELECT DISTINCT a.name FROM "mod_references" r JOIN "archives" a ON a.id = r.archive_id
		WHERE r.name = ? AND r.kind IN ('mod', 'weak')
		ORDER BY a.name`, name)
	if err != nil {
		return nil, fmt.Errorf("finding dependents of %s: %w", name, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scanning dependent: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// DuplicateEntry is content stored by more than one cataloged archive
type DuplicateEntry struct {
	ContentHash        string
	UncompressedLength uint32
	Locations          []EntryMatch
}

// Duplicates returns entry contents that appear in at least two different
// archives, largest first.
func (d *Database) Duplicates(ctx context.Context) ([]DuplicateEntry, error) {
	rows, err := d.Query(ctx, `
		SELECT e.content_hash, a.path, a.name, e.path, e.uncompressed_length, e.compressed
		FROM "entries" e JOIN "archives" a ON a.id = e.archive_id
		WHERE e.content_hash IN (
			SELECT content_hash FROM "entries"
			GROUP BY content_hash HAVING COUNT(DISTINCT archive_id) > 1
		)
		ORDER BY e.uncompressed_length DESC, e.content_hash, a.name, e.path`)
	if err != nil {
		return nil, fmt.Errorf("finding duplicate entries: %w", err)
	}
	defer rows.Close()

	var out []DuplicateEntry
	for rows.Next() {
		var hash string
		var m EntryMatch
		if err := rows.Scan(&hash, &m.ArchivePath, &m.ArchiveName, &m.Path, &m.UncompressedLength, &m.Compressed); err != nil {
			return nil, fmt.Errorf("scanning duplicate row: %w", err)
		}
		if n := len(out); n == 0 || out[n-1].ContentHash != hash {
			out = append(out, DuplicateEntry{ContentHash: hash, UncompressedLength: m.UncompressedLength})
		}
		out[len(out)-1].Locations = append(out[len(out)-1].Locations, m)
	}
	return out, rows.Err()
}
