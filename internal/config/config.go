package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/viper"

	"github.com/jchantrell/tmodpack/internal/cache"
	"github.com/jchantrell/tmodpack/internal/tmod"
)

type Config struct {
	FormatVersion string      `mapstructure:"format_version"`
	OutputDir     string      `mapstructure:"output_dir"`
	Catalog       string      `mapstructure:"catalog"`
	LogLevel      string      `mapstructure:"log_level"`
	LogFormat     string      `mapstructure:"log_format"`
	Workers       int         `mapstructure:"workers"`
	RawImg        bool        `mapstructure:"rawimg"`
	Compression   Compression `mapstructure:"compression"`
}

// Compression mirrors tmod.CompressionPolicy in config form
type Compression struct {
	MinSize  int      `mapstructure:"min_size"`
	Tradeoff float64  `mapstructure:"tradeoff"`
	Level    string   `mapstructure:"level"`
	Exclude  []string `mapstructure:"exclude"`
}

// DefaultFormatVersion is the header version written by pack
const DefaultFormatVersion = "2024.8.3.0"

// Load initializes and loads configuration from file
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	cache := cache.CacheManager()

	// Set defaults
	v.SetDefault("format_version", DefaultFormatVersion)
	v.SetDefault("output_dir", cache.GetOutputDir())
	v.SetDefault("catalog", cache.GetCatalogPath())
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("workers", runtime.NumCPU())
	v.SetDefault("rawimg", false)
	v.SetDefault("compression.min_size", tmod.DefaultMinCompressSize)
	v.SetDefault("compression.tradeoff", tmod.DefaultTradeoff)
	v.SetDefault("compression.level", tmod.LevelOptimal.String())
	v.SetDefault("compression.exclude", tmod.DefaultExcludedExtensions)

	v.SetEnvPrefix("TMODPACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file handling
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}

		v.AddConfigPath(home)
		v.AddConfigPath(".")
		v.SetConfigName("tmodpack")
		v.SetConfigType("yaml")
	}

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks values that can also be overridden from flags
func (c *Config) Validate() error {
	if err := validateFormatVersion(c.FormatVersion); err != nil {
		return fmt.Errorf("invalid format_version: %w", err)
	}
	if err := validateLogging(c.LogLevel, c.LogFormat); err != nil {
		return fmt.Errorf("invalid logging configuration: %w", err)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if err := c.Compression.validate(); err != nil {
		return fmt.Errorf("invalid compression configuration: %w", err)
	}
	return nil
}

// Policy builds the compression policy described by the config
func (c *Config) Policy() (tmod.CompressionPolicy, error) {
	level, err := tmod.ParseLevel(c.Compression.Level)
	if err != nil {
		return tmod.CompressionPolicy{}, err
	}
	return tmod.NewPolicy(c.Compression.MinSize, c.Compression.Tradeoff, level, c.Compression.Exclude), nil
}

// Transcoders returns the transcoders enabled by the config
func (c *Config) Transcoders() []tmod.Transcoder {
	if !c.RawImg {
		return nil
	}
	return []tmod.Transcoder{tmod.RawImageTranscoder()}
}
