package config

import (
	"fmt"
	"strings"

	"github.com/jchantrell/tmodpack/internal/tmod"
	"github.com/jchantrell/tmodpack/internal/utils"
)

// validLogLevels contains the accepted log_level values
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validLogFormats contains the accepted log_format values
var validLogFormats = map[string]bool{
	"text": true,
	"json": true,
}

// validateFormatVersion ensures archives can be written with the version
func validateFormatVersion(version string) error {
	v, err := utils.ParseVersion(version)
	if err != nil {
		return err
	}
	if tmod.IsLegacy(v) {
		return fmt.Errorf("%s is older than %s and cannot be written", version, tmod.LegacyThreshold)
	}
	return nil
}

func validateLogging(level, format string) error {
	if !validLogLevels[strings.ToLower(level)] {
		return fmt.Errorf("unsupported log level '%s': supported levels are debug, info, warn, error", level)
	}
	if !validLogFormats[strings.ToLower(format)] {
		return fmt.Errorf("unsupported log format '%s': supported formats are text, json", format)
	}
	return nil
}

func (c Compression) validate() error {
	if c.MinSize < 0 {
		return fmt.Errorf("min_size cannot be negative, got %d", c.MinSize)
	}
	if c.Tradeoff <= 0 || c.Tradeoff > 1 {
		return fmt.Errorf("tradeoff must be in (0, 1], got %g", c.Tradeoff)
	}
	if _, err := tmod.ParseLevel(c.Level); err != nil {
		return err
	}
	for _, ext := range c.Exclude {
		if strings.TrimSpace(ext) == "" {
			return fmt.Errorf("excluded extension cannot be empty")
		}
	}
	return nil
}
