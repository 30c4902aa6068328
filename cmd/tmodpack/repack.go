package main

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jchantrell/tmodpack/internal/cache"
	"github.com/jchantrell/tmodpack/internal/tmod"
	"github.com/jchantrell/tmodpack/internal/utils"
)

var repackRecompress bool

var repackCmd = &cobra.Command{
	Use:   "repack <archive.tmod>",
	Short: "Rewrite an archive in the current format",
	Long: `Repack writes a copy of an archive to the output directory. Stored
payloads are copied unchanged and the header is rebuilt, which clears the
signature block. Legacy archives, or any archive when --recompress is
given, are decoded and compressed again with the configured policy and
written with the configured format version.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := tmod.OpenFile(args[0])
		if err != nil {
			return err
		}
		defer a.Close()

		output := filepath.Join(cfg.OutputDir, a.Name()+".tmod")
		in, _ := filepath.Abs(args[0])
		out, _ := filepath.Abs(output)
		if in == out {
			return fmt.Errorf("output %s would overwrite the input archive, choose another --output", output)
		}

		policy, err := cfg.Policy()
		if err != nil {
			return fmt.Errorf("building compression policy: %w", err)
		}
		opts := []tmod.BuilderOption{tmod.WithPolicy(policy)}

		var b *tmod.Builder
		if a.Legacy() || repackRecompress {
			b, err = tmod.NewBuilder(cfg.FormatVersion, a.Name(), a.Version(), opts...)
			if err != nil {
				return err
			}
			progress := newProgress(a.Len())
			for i, name := range a.ListEntries() {
				data, err := a.GetFile(name)
				if err != nil {
					progress.Finish()
					return err
				}
				err = b.AddFile(name, data)
				if errors.Is(err, tmod.ErrEmptyEntry) {
					slog.Warn("Dropping empty entry", "path", name)
				} else if err != nil {
					progress.Finish()
					return fmt.Errorf("adding %s: %w", name, err)
				}
				progress.Update(i+1, name)
			}
			progress.Finish()
		} else {
			b, err = tmod.NewBuilderFrom(a, opts...)
			if err != nil {
				return err
			}
		}

		if err := cache.CacheManager().EnsureDir(cfg.OutputDir); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
		n, err := b.SaveFile(output)
		if err != nil {
			return err
		}

		slog.Info("Repacked archive",
			"name", a.Name(),
			"from", a.FormatVersion(),
			"to", b.FormatVersion(),
			"output", output)
		fmt.Printf("%s -> %s (%s)\n", args[0], output, utils.Bytes(n))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(repackCmd)
	repackCmd.Flags().BoolVar(&repackRecompress, "recompress", false, "decode and compress every entry again")
}
