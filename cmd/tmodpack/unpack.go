package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/jchantrell/tmodpack/internal/cache"
	"github.com/jchantrell/tmodpack/internal/export"
	"github.com/jchantrell/tmodpack/internal/tmod"
	"github.com/jchantrell/tmodpack/internal/utils"
)

var (
	unpackRaw    bool
	unpackVerify bool
	unpackFiles  []string
)

var unpackCmd = &cobra.Command{
	Use:   "unpack <archive.tmod>",
	Short: "Extract the entries of an archive",
	Long: `Unpack writes every entry of an archive below the output directory,
or ~/.tmodpack/unpacked/<name>/<version> when no output is configured.
The Info entry is written back as build.txt and description.txt, and
.rawimg entries are converted to .png unless --raw is given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		start := time.Now()

		a, err := tmod.OpenFile(args[0])
		if err != nil {
			return err
		}
		defer a.Close()

		if unpackVerify {
			if err := a.Verify(); err != nil {
				return fmt.Errorf("verifying %s: %w", args[0], err)
			}
		}

		dir := cache.CacheManager().GetUnpackDir(a.Name(), a.Version())
		if cmd.Flags().Changed("output") {
			dir = cfg.OutputDir
		}

		if err := cache.CacheManager().EnsureDir(dir); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}

		files := a.ListEntries()
		if len(unpackFiles) > 0 {
			files = unpackFiles
		}

		slog.Info("Unpacking archive", "name", a.Name(), "version", a.Version(), "entries", len(files), "output", dir)

		progress := newProgress(len(files))
		n, err := export.NewExporter(a, dir, !unpackRaw).ExportFiles(files, func(current, total int, description string) {
			progress.Update(current, description)
		})
		progress.Finish()
		if err != nil {
			return err
		}

		fmt.Printf("Extracted %s entries to %s in %s\n", utils.Number(int64(n)), dir, utils.Duration(time.Since(start)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(unpackCmd)
	unpackCmd.Flags().BoolVar(&unpackRaw, "raw", false, "write .rawimg entries as stored")
	unpackCmd.Flags().BoolVar(&unpackVerify, "verify", false, "check the content hash before extracting")
	unpackCmd.Flags().StringSliceVar(&unpackFiles, "files", nil, "comma-separated list of entries to extract")
}
