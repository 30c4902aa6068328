package cache

import (
	"os"
	"path/filepath"
	"strings"
)

// Cache resolves the tool's working locations under ~/.tmodpack
type Cache struct{}

// CacheManager creates a new cache manager
func CacheManager() *Cache {
	return &Cache{}
}

// GetCacheDir returns the root directory for tool state
func (m *Cache) GetCacheDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".tmodpack")
	}
	return filepath.Join(homeDir, ".tmodpack")
}

// GetOutputDir returns the default directory packed archives are written to
func (m *Cache) GetOutputDir() string {
	return filepath.Join(m.GetCacheDir(), "mods")
}

// GetCatalogPath returns the default path of the archive catalog database
func (m *Cache) GetCatalogPath() string {
	return filepath.Join(m.GetCacheDir(), "catalog.db")
}

// GetUnpackDir returns the default extraction directory for a mod version
func (m *Cache) GetUnpackDir(name, version string) string {
	return filepath.Join(m.GetCacheDir(), "unpacked", safeName(name), safeName(version))
}

// EnsureDir creates a directory and all parent directories
func (m *Cache) EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}

// FileExists checks if a file exists
func (m *Cache) FileExists(filename string) bool {
	_, err := os.Stat(filename)
	return err == nil
}

// GetFileSize returns the size of a file, or 0 if it doesn't exist
func (m *Cache) GetFileSize(filename string) int64 {
	info, err := os.Stat(filename)
	if err != nil {
		return 0
	}
	return info.Size()
}

func safeName(s string) string {
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}
