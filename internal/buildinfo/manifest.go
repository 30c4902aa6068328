package buildinfo

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jchantrell/tmodpack/internal/utils"
)

// ManifestName is the file holding a mod's build properties.
const ManifestName = "build.txt"

// DescriptionName holds the long mod description when build.txt has none.
const DescriptionName = "description.txt"

// Diagnostic is a recoverable problem found while parsing a manifest.
type Diagnostic struct {
	Line    int
	Key     string
	Message string
}

func (d Diagnostic) String() string {
	if d.Key == "" {
		return fmt.Sprintf("line %d: %s", d.Line, d.Message)
	}
	return fmt.Sprintf("line %d: %s: %s", d.Line, d.Key, d.Message)
}

// ParseManifest reads build.txt style "key = value" lines. Lists are comma
// separated; blank lines and lines starting with # are skipped. Unknown keys
// and malformed values are reported as diagnostics and leave the default in
// place. The only fatal problems are read errors and failed validation.
func ParseManifest(r io.Reader) (*BuildMetadata, []Diagnostic, error) {
	m := New()
	var diags []Diagnostic

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, found := strings.Cut(line, "=")
		if !found {
			diags = append(diags, Diagnostic{Line: lineNo, Message: fmt.Sprintf("expected key = value, got %q", line)})
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		if msg := m.set(key, value); msg != "" {
			diags = append(diags, Diagnostic{Line: lineNo, Key: key, Message: msg})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, diags, fmt.Errorf("reading manifest: %w", err)
	}

	if err := m.Validate(); err != nil {
		return nil, diags, err
	}
	m.Normalize()
	return m, diags, nil
}

// set applies one manifest property and returns a diagnostic message when
// the key or value is not usable.
func (m *BuildMetadata) set(key, value string) string {
	switch key {
	case "dllReferences":
		m.DLLReferences = splitList(value)
	case "modReferences", "weakReferences":
		refs, bad := parseRefs(value)
		if key == "modReferences" {
			m.ModReferences = refs
		} else {
			m.WeakReferences = refs
		}
		if bad != "" {
			return bad
		}
	case "sortAfter":
		m.SortAfter = splitList(value)
	case "sortBefore":
		m.SortBefore = splitList(value)
	case "buildIgnore":
		m.BuildIgnore = splitList(value)
	case "author":
		m.Author = value
	case "version":
		if _, err := utils.ParseVersion(value); err != nil {
			return err.Error()
		}
		m.Version = value
	case "displayName":
		m.DisplayName = value
	case "homepage":
		m.Homepage = value
	case "description":
		m.Description = value
	case "eacPath":
		m.EACPath = value
	case "side":
		side, err := ParseSide(value)
		if err != nil {
			return err.Error()
		}
		m.Side = side
	case "noCompile":
		return setBool(&m.NoCompile, value)
	case "hideCode":
		return setBool(&m.HideCode, value)
	case "hideResources":
		return setBool(&m.HideResources, value)
	case "includeSource":
		return setBool(&m.IncludeSource, value)
	case "includePDB":
		return setBool(&m.IncludePDB, value)
	case "playableOnPreview":
		return setBool(&m.PlayableOnPreview, value)
	case "translationMod":
		return setBool(&m.TranslationMod, value)
	default:
		return "unknown property"
	}
	return ""
}

func setBool(dst *bool, value string) string {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Sprintf("%q is not a boolean", value)
	}
	*dst = b
	return ""
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func parseRefs(value string) ([]ModReference, string) {
	var refs []ModReference
	var bad []string
	for _, item := range splitList(value) {
		ref, err := ParseModReference(item)
		if err != nil {
			bad = append(bad, err.Error())
			continue
		}
		refs = append(refs, ref)
	}
	return refs, strings.Join(bad, "; ")
}

// FormatManifest renders m as build.txt lines that ParseManifest reads
// back. The description is left out; it usually lives in description.txt.
func (m *BuildMetadata) FormatManifest() string {
	var b strings.Builder
	line := func(key, value string) {
		if value != "" {
			fmt.Fprintf(&b, "%s = %s\n", key, value)
		}
	}
	flag := func(key string, v bool) {
		if v {
			line(key, "true")
		}
	}

	line("displayName", m.DisplayName)
	line("author", m.Author)
	line("version", m.Version)
	line("homepage", m.Homepage)
	line("dllReferences", strings.Join(m.DLLReferences, ", "))
	line("modReferences", strings.Join(refStrings(m.ModReferences), ", "))
	line("weakReferences", strings.Join(refStrings(m.WeakReferences), ", "))
	line("sortAfter", strings.Join(m.SortAfter, ", "))
	line("sortBefore", strings.Join(m.SortBefore, ", "))
	line("buildIgnore", strings.Join(m.BuildIgnore, ", "))
	line("eacPath", m.EACPath)
	flag("noCompile", m.NoCompile)
	flag("hideCode", m.HideCode)
	flag("hideResources", m.HideResources)
	flag("includeSource", m.IncludeSource)
	flag("includePDB", m.IncludePDB)
	flag("translationMod", m.TranslationMod)
	if !m.PlayableOnPreview {
		line("playableOnPreview", "false")
	}
	if m.Side != SideBoth {
		line("side", m.Side.String())
	}
	return b.String()
}
