package main

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jchantrell/tmodpack/internal/cache"
	"github.com/jchantrell/tmodpack/internal/database"
	"github.com/jchantrell/tmodpack/internal/tmod"
	"github.com/jchantrell/tmodpack/internal/utils"
)

var (
	catalogList       bool
	catalogFind       string
	catalogDependents string
	catalogDuplicates bool
)

var catalogCmd = &cobra.Command{
	Use:   "catalog [path]...",
	Short: "Index archives into the SQLite catalog and search it",
	Long: `Catalog records the header, entry table and build info of every
.tmod file found under the given paths. Directories are walked
recursively. Re-indexing an archive replaces its earlier record.

With --list, --find, --dependents or --duplicates the catalog is searched
instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		db, err := database.OpenCatalog(ctx, cfg.Catalog)
		if err != nil {
			return err
		}
		defer db.Close()

		switch {
		case catalogList:
			return printArchives(ctx, db)
		case catalogFind != "":
			return printEntryMatches(ctx, db, catalogFind)
		case catalogDependents != "":
			return printDependents(ctx, db, catalogDependents)
		case catalogDuplicates:
			return printDuplicates(ctx, db)
		}

		if len(args) == 0 {
			return fmt.Errorf("no paths given, use --list, --find, --dependents or --duplicates to search the catalog")
		}
		return indexArchives(ctx, db, args)
	},
}

func indexArchives(ctx context.Context, db *database.Database, roots []string) error {
	start := time.Now()

	var paths []string
	for _, root := range roots {
		found, err := findArchives(root)
		if err != nil {
			return err
		}
		paths = append(paths, found...)
	}
	if len(paths) == 0 {
		return fmt.Errorf("no .tmod files found")
	}

	slog.Info("Indexing archives", "count", len(paths), "catalog", db.Path())

	inserter := database.NewBulkInserter(db, database.DefaultBulkInsertOptions())
	progress := newProgress(len(paths))

	var entries, failed int
	for i, p := range paths {
		n, err := indexArchive(ctx, inserter, p)
		if err != nil {
			slog.Error("Failed to index archive", "path", p, "error", err)
			failed++
		}
		entries += n
		progress.Update(i+1, filepath.Base(p))
	}
	progress.Finish()

	fmt.Printf("Indexed %s archives (%s entries) in %s\n",
		utils.Number(int64(len(paths)-failed)),
		utils.Number(int64(entries)),
		utils.Duration(time.Since(start)))
	if failed > 0 {
		return fmt.Errorf("%d archives could not be indexed", failed)
	}
	return nil
}

func indexArchive(ctx context.Context, inserter *database.BulkInserter, p string) (int, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return 0, err
	}
	a, err := tmod.OpenFile(abs)
	if err != nil {
		return 0, err
	}
	defer a.Close()

	rec, err := database.NewArchiveRecord(abs, cache.CacheManager().GetFileSize(abs), a)
	if err != nil {
		return 0, err
	}
	d, err := database.FileDigest(abs)
	if err != nil {
		return 0, err
	}
	rec.Digest = d.String()
	if _, err := inserter.InsertArchive(ctx, rec); err != nil {
		return 0, err
	}
	return len(rec.Entries), nil
}

// findArchives returns root itself when it is a file, or every .tmod file
// below it when it is a directory.
func findArchives(root string) ([]string, error) {
	st, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !st.IsDir() {
		return []string{root}, nil
	}

	var out []string
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(p), ".tmod") {
			out = append(out, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}
	return out, nil
}

func printArchives(ctx context.Context, db *database.Database) error {
	archives, err := db.ListArchives(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("%-24s %-10s %-12s %-8s %-10s %s\n", "Name", "Version", "Format", "Entries", "Size", "Path")
	fmt.Println(strings.Repeat("-", 90))
	for _, a := range archives {
		fmt.Printf("%-24s %-10s %-12s %-8d %-10s %s\n",
			a.Name, a.Version, a.FormatVersion, a.EntryCount, utils.Bytes(a.Size), a.Path)
	}
	return nil
}

func printEntryMatches(ctx context.Context, db *database.Database, pattern string) error {
	matches, err := db.FindEntries(ctx, pattern)
	if err != nil {
		return err
	}
	for _, m := range matches {
		fmt.Printf("%-24s %-10s %s\n", m.ArchiveName, utils.Bytes(int64(m.UncompressedLength)), m.Path)
	}
	fmt.Printf("%s matches\n", utils.Number(int64(len(matches))))
	return nil
}

func printDependents(ctx context.Context, db *database.Database, name string) error {
	deps, err := db.Dependents(ctx, name)
	if err != nil {
		return err
	}
	if len(deps) == 0 {
		fmt.Printf("No cataloged mods reference %s\n", name)
		return nil
	}
	fmt.Printf("Mods referencing %s:\n", name)
	for _, d := range deps {
		fmt.Printf("  %s\n", d)
	}
	return nil
}

func printDuplicates(ctx context.Context, db *database.Database) error {
	dups, err := db.Duplicates(ctx)
	if err != nil {
		return err
	}

	var wasted int64
	for _, d := range dups {
		fmt.Printf("%s %s\n", d.ContentHash[:12], utils.Bytes(int64(d.UncompressedLength)))
		for _, m := range d.Locations {
			fmt.Printf("  %-24s %s\n", m.ArchiveName, m.Path)
		}
		wasted += int64(d.UncompressedLength) * int64(len(d.Locations)-1)
	}
	fmt.Printf("%s duplicated contents, %s repeated\n", utils.Number(int64(len(dups))), utils.Bytes(wasted))
	return nil
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.Flags().BoolVar(&catalogList, "list", false, "list cataloged archives")
	catalogCmd.Flags().StringVar(&catalogFind, "find", "", "find entries matching a GLOB pattern")
	catalogCmd.Flags().StringVar(&catalogDependents, "dependents", "", "list mods that reference the named mod")
	catalogCmd.Flags().BoolVar(&catalogDuplicates, "duplicates", false, "list entry contents shared by several archives")
}
