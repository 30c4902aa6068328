package buildinfo

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrTruncated is returned by Decode when the stream ends before its
// terminator.
var ErrTruncated = errors.New("build metadata is truncated")

const maxTokenLength = 1 << 20

// Encode serializes m as the key/value token stream stored in an archive's
// Info entry. Keys with zero values are omitted; the stream ends with an
// empty key.
func (m *BuildMetadata) Encode() []byte {
	var buf bytes.Buffer
	w := tokenWriter{&buf}

	w.list("dllReferences", m.DLLReferences)
	w.list("modReferences", refStrings(m.ModReferences))
	w.list("weakReferences", refStrings(m.WeakReferences))
	w.list("sortAfter", m.SortAfter)
	w.list("sortBefore", m.SortBefore)

	w.value("author", m.Author)
	w.value("version", m.Version)
	w.value("displayName", m.DisplayName)
	w.value("homepage", m.Homepage)
	w.value("description", m.Description)

	w.flag("noCompile", m.NoCompile)
	w.flag("!hideCode", !m.HideCode)
	w.flag("!hideResources", !m.HideResources)
	w.flag("includeSource", m.IncludeSource)
	w.flag("includePDB", m.IncludePDB)

	w.value("eacPath", m.EACPath)
	w.token("side")
	buf.WriteByte(byte(m.Side))

	w.flag("!playableOnPreview", !m.PlayableOnPreview)
	w.flag("translationMod", m.TranslationMod)
	w.value("buildVersion", m.BuildVersion)
	w.value("modSource", m.ModSource)

	w.token("")
	return buf.Bytes()
}

// Decode parses an Info entry. Flags that are stored negated start out set,
// matching what a writer that omits them means.
func Decode(data []byte) (*BuildMetadata, error) {
	r := tokenReader{bytes.NewReader(data)}
	m := &BuildMetadata{
		HideCode:          true,
		HideResources:     true,
		PlayableOnPreview: true,
	}

	for {
		key, err := r.token()
		if err != nil {
			return nil, err
		}
		if key == "" {
			return m, nil
		}

		switch key {
		case "dllReferences":
			m.DLLReferences, err = r.list()
		case "modReferences":
			m.ModReferences, err = r.refs()
		case "weakReferences":
			m.WeakReferences, err = r.refs()
		case "sortAfter":
			m.SortAfter, err = r.list()
		case "sortBefore":
			m.SortBefore, err = r.list()
		case "author":
			m.Author, err = r.token()
		case "version":
			m.Version, err = r.token()
		case "displayName":
			m.DisplayName, err = r.token()
		case "homepage":
			m.Homepage, err = r.token()
		case "description":
			m.Description, err = r.token()
		case "eacPath":
			m.EACPath, err = r.token()
		case "buildVersion":
			m.BuildVersion, err = r.token()
		case "modSource":
			m.ModSource, err = r.token()
		case "noCompile":
			m.NoCompile = true
		case "!hideCode":
			m.HideCode = false
		case "!hideResources":
			m.HideResources = false
		case "includeSource":
			m.IncludeSource = true
		case "includePDB":
			m.IncludePDB = true
		case "!playableOnPreview":
			m.PlayableOnPreview = false
		case "translationMod":
			m.TranslationMod = true
		case "side":
			var b byte
			b, err = r.r.ReadByte()
			if err != nil {
				err = fmt.Errorf("%w: side value", ErrTruncated)
			}
			m.Side = Side(b)
		default:
			return nil, fmt.Errorf("unknown build property %q", key)
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", key, err)
		}
	}
}

func refStrings(refs []ModReference) []string {
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = r.String()
	}
	return out
}

type tokenWriter struct {
	buf *bytes.Buffer
}

func (w tokenWriter) token(s string) {
	w.buf.Write(binary.AppendUvarint(nil, uint64(len(s))))
	w.buf.WriteString(s)
}

func (w tokenWriter) value(key, v string) {
	if v == "" {
		return
	}
	w.token(key)
	w.token(v)
}

func (w tokenWriter) flag(key string, set bool) {
	if set {
		w.token(key)
	}
}

func (w tokenWriter) list(key string, items []string) {
	if len(items) == 0 {
		return
	}
	w.token(key)
	for _, item := range items {
		w.token(item)
	}
	w.token("")
}

type tokenReader struct {
	r *bytes.Reader
}

func (r tokenReader) token() (string, error) {
	n, err := binary.ReadUvarint(r.r)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return "", ErrTruncated
		}
		return "", err
	}
	if n > maxTokenLength || n > uint64(r.r.Len()) {
		return "", fmt.Errorf("%w: token of %d bytes", ErrTruncated, n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r.r, b); err != nil {
		return "", ErrTruncated
	}
	return string(b), nil
}

func (r tokenReader) list() ([]string, error) {
	var items []string
	for {
		item, err := r.token()
		if err != nil {
			return nil, err
		}
		if item == "" {
			return items, nil
		}
		items = append(items, item)
	}
}

func (r tokenReader) refs() ([]ModReference, error) {
	items, err := r.list()
	if err != nil {
		return nil, err
	}
	refs := make([]ModReference, 0, len(items))
	for _, item := range items {
		ref, err := ParseModReference(item)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}
