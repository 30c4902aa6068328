package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jchantrell/tmodpack/internal/buildinfo"
	"github.com/jchantrell/tmodpack/internal/tmod"
)

func openTestCatalog(t *testing.T) *Database {
	t.Helper()
	db, err := OpenCatalog(context.Background(), filepath.Join(t.TempDir(), "sub", "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testArchive(t *testing.T, name string, refs ...buildinfo.ModReference) *tmod.Archive {
	t.Helper()
	meta := buildinfo.New()
	meta.DisplayName = name + " Display"
	meta.Author = "tester"
	meta.ModReferences = refs
	meta.DLLReferences = []string{"Helper"}

	b, err := tmod.NewBuilder("2024.8.3.0", name, "1.0")
	require.NoError(t, err)
	require.NoError(t, b.AddFile(tmod.InfoEntry, meta.Encode()))
	require.NoError(t, b.AddFile(name+".dll", make([]byte, 4096)))
	require.NoError(t, b.AddFile("Items/Sword.rawimg", []byte("img")))
	a, err := b.ToReadOnly()
	require.NoError(t, err)
	return a
}

func TestOpenCatalog_Schema(t *testing.T) {
	db := openTestCatalog(t)
	ctx := context.Background()

	tables, err := db.ListTables(ctx)
	require.NoError(t, err)
	assert.Contains(t, tables, "archives")
	assert.Contains(t, tables, "entries")
	assert.Contains(t, tables, "mod_references")

	cols, err := db.TableInfo(ctx, "entries")
	require.NoError(t, err)
	assert.Equal(t, "archive_id", cols[0].Name)
	assert.True(t, cols[0].PrimaryKey)

	_, err = db.TableInfo(ctx, "nope")
	assert.Error(t, err)

	// creating the schema twice is harmless
	require.NoError(t, NewDDLManager(db).CreateSchemas(ctx, nil))
}

func TestNewArchiveRecord(t *testing.T) {
	a := testArchive(t, "Alpha", buildinfo.ModReference{Name: "Lib", Version: "1.2"})
	rec, err := NewArchiveRecord("/mods/Alpha.tmod", 1234, a)
	require.NoError(t, err)

	assert.Equal(t, "Alpha", rec.Name)
	assert.Equal(t, "Alpha Display", rec.DisplayName)
	assert.Equal(t, "Both", rec.Side)
	assert.Len(t, rec.Hash, 40)
	require.Len(t, rec.Entries, 3)
	assert.Len(t, rec.Entries[1].ContentHash, 64)
	assert.NotEqual(t, rec.Entries[1].ContentHash, rec.Entries[2].ContentHash)
	assert.Equal(t, "Alpha.dll", rec.Entries[1].Path)
	assert.Equal(t, []ReferenceRecord{
		{Kind: "mod", Name: "Lib", Version: "1.2"},
		{Kind: "dll", Name: "Helper"},
	}, rec.References)
}

func TestNewArchiveRecord_NoInfo(t *testing.T) {
	b, err := tmod.NewBuilder("2024.8.3.0", "Bare", "1.0")
	require.NoError(t, err)
	require.NoError(t, b.AddFile("a.txt", []byte("a")))
	a, err := b.ToReadOnly()
	require.NoError(t, err)

	rec, err := NewArchiveRecord("Bare.tmod", 1, a)
	require.NoError(t, err)
	assert.Empty(t, rec.References)
	assert.Empty(t, rec.DisplayName)
}

func TestInsertArchive(t *testing.T) {
	db := openTestCatalog(t)
	ctx := context.Background()
	inserter := NewBulkInserter(db, &BulkInsertOptions{BatchSize: 2})

	alpha, err := NewArchiveRecord("/mods/Alpha.tmod", 100, testArchive(t, "Alpha", buildinfo.ModReference{Name: "Lib"}))
	require.NoError(t, err)
	beta, err := NewArchiveRecord("/mods/Beta.tmod", 200, testArchive(t, "Beta", buildinfo.ModReference{Name: "Lib"}, buildinfo.ModReference{Name: "Alpha"}))
	require.NoError(t, err)

	_, err = inserter.InsertArchive(ctx, alpha)
	require.NoError(t, err)
	_, err = inserter.InsertArchive(ctx, beta)
	require.NoError(t, err)

	// re-indexing replaces the earlier record and its children
	_, err = inserter.InsertArchive(ctx, alpha)
	require.NoError(t, err)

	archives, err := db.ListArchives(ctx)
	require.NoError(t, err)
	require.Len(t, archives, 2)
	assert.Equal(t, "Alpha", archives[0].Name)
	assert.Equal(t, 3, archives[0].EntryCount)
	assert.Equal(t, int64(200), archives[1].Size)

	var entryCount int
	require.NoError(t, db.QueryRow(ctx, `SELECT COUNT(*) FROM entries`).Scan(&entryCount))
	assert.Equal(t, 6, entryCount)

	matches, err := db.FindEntries(ctx, "*.dll")
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "Alpha.dll", matches[0].Path)
	assert.True(t, matches[0].Compressed)
	assert.Equal(t, uint32(4096), matches[0].UncompressedLength)

	deps, err := db.Dependents(ctx, "Lib")
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha", "Beta"}, deps)

	deps, err = db.Dependents(ctx, "Helper")
	require.NoError(t, err)
	assert.Empty(t, deps)

	// both archives carry the same 4096 zero bytes and sword image
	dups, err := db.Duplicates(ctx)
	require.NoError(t, err)
	require.Len(t, dups, 2)
	assert.Equal(t, uint32(4096), dups[0].UncompressedLength)
	require.Len(t, dups[0].Locations, 2)
	assert.Equal(t, "Alpha.dll", dups[0].Locations[0].Path)
	assert.Equal(t, "Beta.dll", dups[0].Locations[1].Path)
	assert.Equal(t, "Items/Sword.rawimg", dups[1].Locations[0].Path)
}

func TestFileDigest(t *testing.T) {
	p := filepath.Join(t.TempDir(), "a.tmod")
	require.NoError(t, os.WriteFile(p, []byte("abc"), 0644))

	d, err := FileDigest(p)
	require.NoError(t, err)
	assert.Equal(t, "sha256:ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", d.String())

	_, err = FileDigest(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestInsertArchive_Nil(t *testing.T) {
	db := openTestCatalog(t)
	_, err := NewBulkInserter(db, nil).InsertArchive(context.Background(), nil)
	assert.Error(t, err)
}

func TestGenerateInsertSQL(t *testing.T) {
	got := generateInsertSQL("t", []string{"a", "b"}, 2)
	assert.Equal(t, `INSERT INTO "t" ("a", "b") VALUES (?, ?), (?, ?)`, got)
	assert.Equal(t, `"we""ird"`, quoteSQLIdentifier(`we"ird`))
	assert.Equal(t, ".rawimg", extension("Items/Sword.rawimg"))
	assert.Equal(t, "", extension("dir.d/file"))
}

func TestClose(t *testing.T) {
	db, err := NewDatabase(DefaultDatabaseOptions(filepath.Join(t.TempDir(), "c.db")))
	require.NoError(t, err)
	require.NoError(t, db.Close())
	require.NoError(t, db.Close())

	_, err = db.Exec(context.Background(), "SELECT 1")
	assert.Error(t, err)

	_, err = NewDatabase(nil)
	assert.Error(t, err)
	_, err = NewDatabase(&DatabaseOptions{})
	assert.Error(t, err)
}
