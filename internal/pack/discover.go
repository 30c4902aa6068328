package pack

import (
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/jchantrell/tmodpack/internal/buildinfo"
)

// DefaultIgnore lists source tree paths that never end up in an archive.
// Patterns ending in "/" match a directory anywhere in the tree; the rest
// are matched against both the full path and the base name.
var DefaultIgnore = []string{
	"bin/",
	"obj/",
	".git/",
	".vs/",
	".idea/",
	buildinfo.ManifestName,
	buildinfo.DescriptionName,
	"*.csproj",
	"*.cs",
	"*.tmod",
}

// Discover walks fsys and returns the slash separated paths of every file
// to archive, sorted lexically.
func Discover(fsys fs.FS, ignore []string) ([]string, error) {
	patterns := append(append([]string(nil), DefaultIgnore...), ignore...)
	for _, p := range patterns {
		if _, err := path.Match(strings.TrimSuffix(p, "/"), ""); err != nil {
			return nil, fmt.Errorf("invalid ignore pattern %q: %w", p, err)
		}
	}

	var files []string
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == "." {
			return nil
		}

		if ignored(p, d.IsDir(), patterns) {
			slog.Debug("Ignoring source path", "path", p)
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		files = append(files, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking source tree: %w", err)
	}

	sort.Strings(files)
	return files, nil
}

func ignored(p string, isDir bool, patterns []string) bool {
	base := path.Base(p)
	for _, pattern := range patterns {
		if dirPattern, ok := strings.CutSuffix(pattern, "/"); ok {
			if !isDir {
				continue
			}
			if match(dirPattern, base) || match(dirPattern, p) {
				return true
			}
			continue
		}
		if match(pattern, p) || match(pattern, base) {
			return true
		}
	}
	return false
}

func match(pattern, name string) bool {
	ok, _ := path.Match(pattern, name)
	return ok
}
