package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/jchantrell/tmodpack/internal/config"
	"github.com/jchantrell/tmodpack/internal/utils"
)

var (
	cfg     *config.Config
	cfgFile string

	formatVersion string
	outputDir     string
	catalogPath   string
	workers       int
	rawImg        bool
	logLevel      string
	logFormat     string
	noProgress    bool
)

var rootCmd = &cobra.Command{
	Use:   "tmodpack",
	Short: "Build, inspect and extract tModLoader .tmod archives",
	Long: `tmodpack reads and writes the .tmod mod archive format.

It packs a mod source directory into an archive, lists and extracts
archive contents, verifies content hashes and keeps a SQLite catalog
of the archives it has seen.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		if cmd.Flags().Changed("format-version") {
			cfg.FormatVersion = formatVersion
		}
		if cmd.Flags().Changed("output") {
			cfg.OutputDir = outputDir
		}
		if cmd.Flags().Changed("catalog") {
			cfg.Catalog = catalogPath
		}
		if cmd.Flags().Changed("workers") {
			cfg.Workers = workers
		}
		if cmd.Flags().Changed("rawimg") {
			cfg.RawImg = rawImg
		}
		if cmd.Flags().Changed("log-level") {
			cfg.LogLevel = logLevel
		}
		if cmd.Flags().Changed("log-format") {
			cfg.LogFormat = logFormat
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		var level slog.Level
		switch strings.ToLower(cfg.LogLevel) {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}

		var handler slog.Handler
		if strings.ToLower(cfg.LogFormat) == "json" {
			handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
				Level: level,
			})
		} else {
			handler = tint.NewHandler(os.Stderr, &tint.Options{
				Level: level,
			})
		}
		slog.SetDefault(slog.New(handler))

		slog.Debug("Configuration",
			"format_version", cfg.FormatVersion,
			"output_dir", cfg.OutputDir,
			"catalog", cfg.Catalog,
			"workers", cfg.Workers,
			"rawimg", cfg.RawImg,
			"compression", cfg.Compression,
			"log_level", cfg.LogLevel,
			"log_format", cfg.LogFormat)

		return nil
	},
}

// newProgress returns a progress bar that stays quiet when output is meant
// for machines or is already noisy.
func newProgress(total int) *utils.Progress {
	return utils.NewProgress(total, !(noProgress || cfg.LogFormat == "json" || cfg.LogLevel == "debug"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is tmodpack.yaml in home or pwd)")
	rootCmd.PersistentFlags().StringVar(&formatVersion, "format-version", "", "format version written to new archives")
	rootCmd.PersistentFlags().StringVarP(&outputDir, "output", "o", "", "output directory")
	rootCmd.PersistentFlags().StringVar(&catalogPath, "catalog", "", "catalog database path")
	rootCmd.PersistentFlags().IntVarP(&workers, "workers", "j", 0, "number of compression workers")
	rootCmd.PersistentFlags().BoolVar(&rawImg, "rawimg", false, "convert png files to rawimg when packing")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (text, json)")
	rootCmd.PersistentFlags().BoolVar(&noProgress, "no-progress", false, "disable progress bar")
}
