package tmod

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"sync"
)

// Archive is a read-only view of a .tmod archive. The entry index is fixed
// when the archive is opened; payloads are read and inflated on first access
// and kept in a per-archive cache.
//
// Archive is safe for concurrent use: the cache and the payload reads are
// guarded by an internal mutex.
type Archive struct {
	name          string
	version       string
	formatVersion string
	hash          [HashSize]byte
	legacy        bool

	label  string
	raw    io.ReaderAt // the archive bytes as given to Open
	source io.ReaderAt // where payload offsets point
	closer io.Closer

	entries []Entry
	index   map[string]int
	sorted  []string // lazily built for directory listings

	mu     sync.Mutex
	cache  map[string][]byte
	closed bool
}

// Name returns the archived mod's internal name.
func (a *Archive) Name() string { return a.name }

// Version returns the archived mod's version string.
func (a *Archive) Version() string { return a.version }

// FormatVersion returns the version of the tool that wrote the archive.
func (a *Archive) FormatVersion() string { return a.formatVersion }

// Hash returns the content hash stored in the header.
func (a *Archive) Hash() [HashSize]byte { return a.hash }

// Legacy reports whether the archive uses the pre-0.11 layout.
func (a *Archive) Legacy() bool { return a.legacy }

// Len returns the number of entries.
func (a *Archive) Len() int { return len(a.entries) }

// HasFile reports whether path names an entry.
func (a *Archive) HasFile(path string) bool {
	_, ok := a.index[CanonicalPath(path)]
	return ok
}

// Entry returns the table entry for path.
func (a *Archive) Entry(path string) (Entry, bool) {
	i, ok := a.index[CanonicalPath(path)]
	if !ok {
		return Entry{}, false
	}
	return a.entries[i], true
}

// ListEntries returns entry paths in table order.
func (a *Archive) ListEntries() []string {
	paths := make([]string, len(a.entries))
	for i, e := range a.entries {
		paths[i] = e.Path
	}
	return paths
}

// Entries returns a copy of the entry table in table order.
func (a *Archive) Entries() []Entry {
	out := make([]Entry, len(a.entries))
	copy(out, a.entries)
	return out
}

// GetFile returns the uncompressed contents of the entry at path. A missing
// entry yields an *fs.PathError wrapping fs.ErrNotExist. The returned slice
// is shared with the cache and must not be modified.
func (a *Archive) GetFile(path string) ([]byte, error) {
	key := CanonicalPath(path)
	i, ok := a.index[key]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
	}
	e := a.entries[i]

	a.mu.Lock()
	defer a.mu.Unlock()

	if data, ok := a.cache[key]; ok {
		return data, nil
	}
	if a.closed {
		return nil, &fs.PathError{Op: "read", Path: path, Err: os.ErrClosed}
	}

	data, err := a.readEntry(e)
	if err != nil {
		return nil, err
	}
	a.cache[key] = data

	slog.Debug("Decoded archive entry",
		"archive", a.label,
		"path", key,
		"compressed", e.Compressed(),
		"size", e.UncompressedLength)

	return data, nil
}

// RawPayload returns the entry's bytes exactly as stored, without inflating
// them. The result is not cached.
func (a *Archive) RawPayload(path string) ([]byte, error) {
	i, ok := a.index[CanonicalPath(path)]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, &fs.PathError{Op: "read", Path: path, Err: os.ErrClosed}
	}
	return a.readPayload(a.entries[i])
}

func (a *Archive) readEntry(e Entry) ([]byte, error) {
	buf, err := a.readPayload(e)
	if err != nil {
		return nil, err
	}

	if !e.Compressed() {
		return buf, nil
	}

	data, err := Decompress(buf, int(e.UncompressedLength))
	if err != nil {
		return nil, &FormatError{Op: "read", Path: a.label + ":" + e.Path, Offset: e.Offset, Err: err}
	}
	return data, nil
}

func (a *Archive) readPayload(e Entry) ([]byte, error) {
	buf := make([]byte, e.CompressedLength)
	n, err := a.source.ReadAt(buf, e.Offset)
	if n < len(buf) {
		if err == nil || err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, &FormatError{
			Op:     "read",
			Path:   a.label + ":" + e.Path,
			Offset: e.Offset + int64(n),
			Err:    ioError(err),
		}
	}
	return buf, nil
}

// Close releases the backing source if the archive owns it. Entries already
// decoded stay readable; uncached entries fail with os.ErrClosed.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true
	if a.closer != nil {
		if err := a.closer.Close(); err != nil {
			return fmt.Errorf("closing archive %s: %w", a.label, err)
		}
	}
	return nil
}

// Verify checks the stored content hash against the archive bytes.
func (a *Archive) Verify() error {
	a.mu.Lock()
	closed := a.closed
	a.mu.Unlock()
	if closed {
		return errors.New("archive is closed")
	}
	return VerifyHash(a.raw, a.label)
}

// sortedPaths returns entry paths in lexical order for directory walks.
func (a *Archive) sortedPaths() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.sorted == nil {
		a.sorted = a.ListEntries()
		sort.Strings(a.sorted)
	}
	return a.sorted
}
