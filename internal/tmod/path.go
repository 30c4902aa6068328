package tmod

import "strings"

// CanonicalPath converts a user supplied resource path into the key used in
// the entry table: surrounding whitespace is dropped, backslashes become
// forward slashes and leading or trailing slashes are removed.
//
// CanonicalPath is idempotent.
func CanonicalPath(raw string) string {
	p := strings.ReplaceAll(strings.TrimSpace(raw), `\`, "/")
	for {
		trimmed := strings.TrimSpace(strings.Trim(p, "/"))
		if trimmed == p {
			return p
		}
		p = trimmed
	}
}
