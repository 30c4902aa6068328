package utils

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a dotted version with up to four numeric components
// (major.minor.build.revision). Missing components compare as zero.
type Version struct {
	Major    int
	Minor    int
	Build    int
	Revision int
}

// ParseVersion parses a version string such as "0.11.0.0" or "1.4.4.9".
// At least major.minor is required.
func ParseVersion(version string) (Version, error) {
	var v Version
	version = strings.TrimSpace(version)
	if version == "" {
		return v, fmt.Errorf("version string cannot be empty")
	}

	parts := strings.Split(version, ".")
	if len(parts) < 2 || len(parts) > 4 {
		return v, fmt.Errorf("invalid version format: %s (expected 2 to 4 components)", version)
	}

	fields := []*int{&v.Major, &v.Minor, &v.Build, &v.Revision}
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return Version{}, fmt.Errorf("invalid version component %q in %s", part, version)
		}
		*fields[i] = n
	}

	return v, nil
}

// MustParseVersion is ParseVersion for constants; it panics on error.
func MustParseVersion(version string) Version {
	v, err := ParseVersion(version)
	if err != nil {
		panic(err)
	}
	return v
}

// Compare returns -1 if v < other, 0 if equal, 1 if v > other.
func (v Version) Compare(other Version) int {
	a := [4]int{v.Major, v.Minor, v.Build, v.Revision}
	b := [4]int{other.Major, other.Minor, other.Build, other.Revision}
	for i := range a {
		if a[i] < b[i] {
			return -1
		}
		if a[i] > b[i] {
			return 1
		}
	}
	return 0
}

// Less reports whether v sorts before other.
func (v Version) Less(other Version) bool {
	return v.Compare(other) < 0
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v.Major, v.Minor, v.Build, v.Revision)
}

// CompareVersions compares two version strings
// Returns -1 if v1 < v2, 0 if v1 == v2, 1 if v1 > v2
func CompareVersions(v1, v2 string) (int, error) {
	info1, err := ParseVersion(v1)
	if err != nil {
		return 0, fmt.Errorf("error parsing version %s: %w", v1, err)
	}

	info2, err := ParseVersion(v2)
	if err != nil {
		return 0, fmt.Errorf("error parsing version %s: %w", v2, err)
	}

	return info1.Compare(info2), nil
}
