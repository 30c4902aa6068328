package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/jchantrell/tmodpack/internal/cache"
	"github.com/jchantrell/tmodpack/internal/pack"
	"github.com/jchantrell/tmodpack/internal/tmod"
	"github.com/jchantrell/tmodpack/internal/utils"
)

var packCmd = &cobra.Command{
	Use:   "pack <mod-dir>...",
	Short: "Pack mod source directories into .tmod archives",
	Long: `Pack reads build.txt and every resource file below each mod source
directory and writes <output>/<dir name>.tmod. Source code, build output
and version control directories are skipped, as are paths matching the
buildIgnore patterns from build.txt.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		policy, err := cfg.Policy()
		if err != nil {
			return fmt.Errorf("building compression policy: %w", err)
		}

		for _, dir := range args {
			start := time.Now()
			previous := existingVersion(dir)
			progress := newProgress(0)

			summary, err := pack.Dir(ctx, dir, cfg.OutputDir, pack.Options{
				FormatVersion: cfg.FormatVersion,
				Workers:       cfg.Workers,
				Policy:        policy,
				Transcoders:   cfg.Transcoders(),
				Progress: func(current, total int, description string) {
					progress.SetTotal(total)
					progress.Update(current, description)
				},
			})
			progress.Finish()
			if err != nil {
				return fmt.Errorf("packing %s: %w", dir, err)
			}

			if previous != "" {
				if c, err := utils.CompareVersions(summary.Metadata.Version, previous); err == nil && c < 0 {
					slog.Warn("Version is lower than the archive it replaced",
						"mod", summary.Builder.Name(),
						"version", summary.Metadata.Version,
						"previous", previous)
				}
			}
			if n := len(summary.Diagnostics); n > 0 {
				slog.Warn("Manifest had problems", "mod", summary.Builder.Name(), "count", n)
			}

			fmt.Printf("%s %s -> %s\n", summary.Builder.Name(), summary.Metadata.Version, summary.Output)
			fmt.Printf("  Files: %s (%s entries)\n", utils.Number(int64(summary.Files)), utils.Number(int64(summary.Builder.Len())))
			fmt.Printf("  Size: %s of %s source (%s)\n",
				utils.Bytes(summary.Bytes),
				utils.Bytes(summary.SourceBytes),
				utils.Ratio(summary.Bytes, summary.SourceBytes))
			fmt.Printf("  Duration: %s\n", utils.Duration(time.Since(start)))
		}
		return nil
	},
}

// existingVersion returns the version of the archive a pack of dir would
// overwrite, or "" when there is none.
func existingVersion(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return ""
	}
	output := filepath.Join(cfg.OutputDir, filepath.Base(abs)+".tmod")
	if !cache.CacheManager().FileExists(output) {
		return ""
	}
	a, err := tmod.OpenFile(output)
	if err != nil {
		slog.Debug("Ignoring unreadable previous archive", "path", output, "error", err)
		return ""
	}
	defer a.Close()
	return a.Version()
}

func init() {
	rootCmd.AddCommand(packCmd)
}
