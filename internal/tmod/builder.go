package tmod

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"

	"github.com/jchantrell/tmodpack/internal/utils"
)

// ErrEmptyEntry is returned when adding a file with no content; the format
// requires every entry to have a non-zero payload.
var ErrEmptyEntry = errors.New("entry has no content")

// Builder accumulates entries for a new archive. Entries keep the order in
// which they were first added; that order is the table order on disk.
type Builder struct {
	formatVersion string
	version       utils.Version
	name          string
	modVersion    string

	policy      CompressionPolicy
	transcoders TranscoderChain

	entries []*BuilderEntry
	index   map[string]int
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithPolicy sets the compression policy applied by AddFile.
func WithPolicy(p CompressionPolicy) BuilderOption {
	return func(b *Builder) {
		b.policy = p
	}
}

// WithTranscoders sets the transcoders applied by AddFile before
// compression.
func WithTranscoders(t ...Transcoder) BuilderOption {
	return func(b *Builder) {
		b.transcoders = append(TranscoderChain(nil), t...)
	}
}

// NewBuilder creates an empty builder. formatVersion must be a valid dotted
// version; whether it can be written is checked when saving.
func NewBuilder(formatVersion, name, version string, opts ...BuilderOption) (*Builder, error) {
	v, err := utils.ParseVersion(formatVersion)
	if err != nil {
		return nil, fmt.Errorf("parsing format version: %w", err)
	}

	b := &Builder{
		formatVersion: formatVersion,
		version:       v,
		name:          name,
		modVersion:    version,
		policy:        DefaultPolicy(),
		index:         make(map[string]int),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Name returns the mod name written to the archive.
func (b *Builder) Name() string { return b.name }

// Version returns the mod version written to the archive.
func (b *Builder) Version() string { return b.modVersion }

// FormatVersion returns the format version written to the header.
func (b *Builder) FormatVersion() string { return b.formatVersion }

// Prepare canonicalizes, transcodes and compresses a file without touching
// the builder's entries. It only reads builder configuration, so it may be
// called from several goroutines while entries are added elsewhere.
func (b *Builder) Prepare(path string, data []byte) (*BuilderEntry, error) {
	key := CanonicalPath(path)
	if key == "" {
		return nil, fmt.Errorf("invalid entry path %q", path)
	}

	key, data, err := b.transcoders.Apply(key, data)
	if err != nil {
		return nil, err
	}
	key = CanonicalPath(key)

	if len(data) == 0 {
		return nil, fmt.Errorf("adding %s: %w", key, ErrEmptyEntry)
	}
	if uint64(len(data)) > math.MaxUint32 {
		return nil, fmt.Errorf("adding %s: %d bytes exceeds format limit", key, len(data))
	}

	payload, err := b.policy.Decide(key, data)
	if err != nil {
		return nil, fmt.Errorf("compressing %s: %w", key, err)
	}

	return &BuilderEntry{
		Path:               key,
		Payload:            payload,
		UncompressedLength: uint32(len(data)),
	}, nil
}

// AddEntry stores a prepared entry. Adding a path that already exists
// replaces the earlier entry in place.
func (b *Builder) AddEntry(e *BuilderEntry) error {
	if e == nil || e.Path == "" {
		return errors.New("entry has no path")
	}
	if e.CompressedLength() == 0 || e.CompressedLength() > e.UncompressedLength {
		return fmt.Errorf("entry %s: payload of %d bytes for %d uncompressed bytes", e.Path, len(e.Payload), e.UncompressedLength)
	}

	if i, ok := b.index[e.Path]; ok {
		slog.Warn("Replacing archive entry", "path", e.Path, "archive", b.name)
		b.entries[i] = e
		return nil
	}
	b.index[e.Path] = len(b.entries)
	b.entries = append(b.entries, e)
	return nil
}

// AddFile prepares and stores a file.
func (b *Builder) AddFile(path string, data []byte) error {
	e, err := b.Prepare(path, data)
	if err != nil {
		return err
	}
	return b.AddEntry(e)
}

// HasFile reports whether an entry exists for path.
func (b *Builder) HasFile(path string) bool {
	_, ok := b.index[CanonicalPath(path)]
	return ok
}

// Entries returns the queued entries in table order.
func (b *Builder) Entries() []*BuilderEntry {
	out := make([]*BuilderEntry, len(b.entries))
	copy(out, b.entries)
	return out
}

// Len returns the number of queued entries.
func (b *Builder) Len() int { return len(b.entries) }

// Save writes the archive to w starting at its current position and returns
// the number of bytes written. Format versions older than LegacyThreshold are
// rejected with ErrUnsupportedFormat.
func (b *Builder) Save(w io.WriteSeeker) (int64, error) {
	return writeArchive(w, b)
}

// Bytes returns the serialized archive.
func (b *Builder) Bytes() ([]byte, error) {
	var buf seekBuffer
	if _, err := b.Save(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SaveFile writes the archive to path, replacing any existing file.
func (b *Builder) SaveFile(path string) (int64, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("creating archive file: %w", err)
	}
	defer func() {
		if f != nil {
			_ = f.Close()
		}
	}()

	n, err := b.Save(f)
	if err != nil {
		return n, err
	}
	if err := f.Sync(); err != nil {
		return n, fmt.Errorf("syncing archive file: %w", err)
	}
	if err := f.Close(); err != nil {
		return n, fmt.Errorf("closing archive file: %w", err)
	}
	f = nil
	return n, nil
}

// ToReadOnly serializes the builder into memory and opens the result.
func (b *Builder) ToReadOnly() (*Archive, error) {
	data, err := b.Bytes()
	if err != nil {
		return nil, err
	}
	return Open(bytes.NewReader(data), b.name+".tmod")
}

// NewBuilderFrom creates a builder holding every entry of a, copying the
// stored payloads as-is so that saving it reproduces the archive body.
func NewBuilderFrom(a *Archive, opts ...BuilderOption) (*Builder, error) {
	b, err := NewBuilder(a.FormatVersion(), a.Name(), a.Version(), opts...)
	if err != nil {
		return nil, err
	}
	for _, e := range a.entries {
		payload, err := a.RawPayload(e.Path)
		if err != nil {
			return nil, err
		}
		if err := b.AddEntry(&BuilderEntry{Path: e.Path, Payload: payload, UncompressedLength: e.UncompressedLength}); err != nil {
			return nil, err
		}
	}
	return b, nil
}
