// Package buildinfo models the build metadata of a mod: the manifest read
// from build.txt and the token stream stored in an archive's Info entry.
package buildinfo

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/jchantrell/tmodpack/internal/utils"
)

// ErrDuplicateReference is returned when a mod is named both as a hard and
// a weak reference, or more than once in the same list.
var ErrDuplicateReference = errors.New("duplicate mod reference")

// ErrSortConflict is returned when a mod must load both before and after
// the current one.
var ErrSortConflict = errors.New("mod listed in both sortBefore and sortAfter")

// Side selects where a mod is loaded.
type Side byte

const (
	SideBoth Side = iota
	SideClient
	SideServer
	SideNoSync
)

var sideNames = []string{"Both", "Client", "Server", "NoSync"}

func (s Side) String() string {
	if int(s) < len(sideNames) {
		return sideNames[s]
	}
	return fmt.Sprintf("Side(%d)", byte(s))
}

// ParseSide parses a side name case-insensitively.
func ParseSide(name string) (Side, error) {
	for i, n := range sideNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return Side(i), nil
		}
	}
	return SideBoth, fmt.Errorf("unknown side %q", name)
}

// ModReference names another mod, optionally pinned to a minimum version.
type ModReference struct {
	Name    string
	Version string
}

// ParseModReference parses "name" or "name@version".
func ParseModReference(s string) (ModReference, error) {
	name, version, pinned := strings.Cut(strings.TrimSpace(s), "@")
	name = strings.TrimSpace(name)
	if name == "" {
		return ModReference{}, fmt.Errorf("mod reference %q has no name", s)
	}
	ref := ModReference{Name: name}
	if pinned {
		ref.Version = strings.TrimSpace(version)
		if _, err := utils.ParseVersion(ref.Version); err != nil {
			return ModReference{}, fmt.Errorf("mod reference %q: %w", s, err)
		}
	}
	return ref, nil
}

func (r ModReference) String() string {
	if r.Version == "" {
		return r.Name
	}
	return r.Name + "@" + r.Version
}

// BuildMetadata holds the properties a mod declares about itself.
type BuildMetadata struct {
	DisplayName  string
	Author       string
	Version      string
	Homepage     string
	Description  string
	EACPath      string
	BuildVersion string
	ModSource    string

	DLLReferences  []string
	ModReferences  []ModReference
	WeakReferences []ModReference
	SortAfter      []string
	SortBefore     []string

	// BuildIgnore holds path patterns excluded when packing. It only comes
	// from the manifest and is not stored in the archive.
	BuildIgnore []string

	NoCompile         bool
	HideCode          bool
	HideResources     bool
	IncludeSource     bool
	IncludePDB        bool
	PlayableOnPreview bool
	TranslationMod    bool

	Side Side
}

// New returns metadata with the manifest defaults.
func New() *BuildMetadata {
	return &BuildMetadata{
		Version:           "1.0",
		PlayableOnPreview: true,
	}
}

// RefNames returns the names of all hard and weak references.
func (m *BuildMetadata) RefNames(includeWeak bool) []string {
	names := make([]string, 0, len(m.ModReferences)+len(m.WeakReferences))
	for _, r := range m.ModReferences {
		names = append(names, r.Name)
	}
	if includeWeak {
		for _, r := range m.WeakReferences {
			names = append(names, r.Name)
		}
	}
	return names
}

// Validate checks reference lists for duplicates and sort order conflicts.
func (m *BuildMetadata) Validate() error {
	seen := make(map[string]struct{})
	for _, name := range m.RefNames(true) {
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateReference, name)
		}
		seen[name] = struct{}{}
	}

	for _, name := range m.SortBefore {
		if slices.Contains(m.SortAfter, name) {
			return fmt.Errorf("%w: %s", ErrSortConflict, name)
		}
	}

	if m.Version != "" {
		if _, err := utils.ParseVersion(m.Version); err != nil {
			return fmt.Errorf("mod version: %w", err)
		}
	}
	return nil
}

// Normalize makes every referenced mod that is not explicitly sorted before
// this one load after it.
func (m *BuildMetadata) Normalize() {
	for _, name := range m.RefNames(true) {
		if slices.Contains(m.SortBefore, name) || slices.Contains(m.SortAfter, name) {
			continue
		}
		m.SortAfter = append(m.SortAfter, name)
	}
}
