package tmod

import (
	"bytes"
	"crypto/sha1"
	"crypto/subtle"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"

	"github.com/klauspost/compress/flate"

	"github.com/jchantrell/tmodpack/internal/utils"
)

// Layout constants of the archive header.
const (
	// Magic is "TMOD" read as a little-endian uint32.
	Magic         uint32 = 0x444F4D54
	HashSize             = sha1.Size
	SignatureSize        = 256

	// reservedSize covers hash, signature and the payload length field.
	reservedSize = HashSize + SignatureSize + 4
)

// InfoEntry is the reserved entry holding encoded build metadata.
const InfoEntry = "Info"

// LegacyThreshold is the first format version with a separated, plaintext
// entry table. Older archives deflate everything after the header as one
// stream.
var LegacyThreshold = utils.MustParseVersion("0.11.0.0")

// IsLegacy reports whether archives of the given format version use the
// legacy layout.
func IsLegacy(v utils.Version) bool {
	return v.Less(LegacyThreshold)
}

// header is the fixed prefix of every archive.
type header struct {
	formatVersion string
	version       utils.Version
	hash          [HashSize]byte
	payloadLength uint32
	dataStart     int64
}

func readHeader(sr *streamReader) (*header, error) {
	magic, err := sr.readUint32()
	if err != nil {
		return nil, err
	}
	if magic != Magic {
		return nil, &FormatError{Op: "open", Path: sr.name, Offset: 0, Err: fmt.Errorf("%w: magic 0x%08x", ErrInvalidHeader, magic)}
	}

	versionOffset := sr.off
	formatVersion, err := sr.readString()
	if err != nil {
		return nil, err
	}
	v, err := utils.ParseVersion(formatVersion)
	if err != nil {
		return nil, &FormatError{Op: "open", Path: sr.name, Offset: versionOffset, Err: fmt.Errorf("%w: %w", ErrInvalidHeader, err)}
	}

	h := &header{formatVersion: formatVersion, version: v}
	if err := sr.readFull(h.hash[:]); err != nil {
		return nil, err
	}
	if err := sr.skip(SignatureSize); err != nil {
		return nil, err
	}
	if h.payloadLength, err = sr.readUint32(); err != nil {
		return nil, err
	}
	h.dataStart = sr.off
	return h, nil
}

// tableCodec parses the entry table of one layout generation. The two
// layouts differ enough that each keeps its own reader.
type tableCodec interface {
	name() string
	readEntries(sr *streamReader, count uint32) ([]Entry, error)
}

func codecFor(v utils.Version) tableCodec {
	if IsLegacy(v) {
		return legacyTable{}
	}
	return currentTable{}
}

// legacyTable reads path, length, payload triples from the inflated body.
// Entries are stored uncompressed individually.
type legacyTable struct{}

func (legacyTable) name() string { return "legacy" }

func (legacyTable) readEntries(sr *streamReader, count uint32) ([]Entry, error) {
	entries := make([]Entry, 0, min(count, 4096))
	for i := uint32(0); i < count; i++ {
		p, err := sr.readString()
		if err != nil {
			return nil, err
		}
		length, err := sr.readUint32()
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{
			Path:               p,
			UncompressedLength: length,
			CompressedLength:   length,
			Offset:             sr.off,
		})
		if err := sr.skip(int64(length)); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// currentTable reads path, uncompressed length, compressed length triples
// and then lays the payloads out back-to-back after the table.
type currentTable struct{}

func (currentTable) name() string { return "current" }

func (currentTable) readEntries(sr *streamReader, count uint32) ([]Entry, error) {
	entries := make([]Entry, 0, min(count, 4096))
	tableOffsets := make([]int64, 0, min(count, 4096))
	for i := uint32(0); i < count; i++ {
		tableOffsets = append(tableOffsets, sr.off)
		p, err := sr.readString()
		if err != nil {
			return nil, err
		}
		uncompressed, err := sr.readUint32()
		if err != nil {
			return nil, err
		}
		compressed, err := sr.readUint32()
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Path: p, UncompressedLength: uncompressed, CompressedLength: compressed})
	}

	cursor := sr.off
	for i := range entries {
		e := &entries[i]
		if e.CompressedLength == 0 || e.CompressedLength > e.UncompressedLength {
			return nil, &FormatError{
				Op:     "open",
				Path:   sr.name,
				Offset: tableOffsets[i],
				Err: fmt.Errorf("%w: entry %q has compressed length %d and uncompressed length %d",
					ErrCorruptArchive, e.Path, e.CompressedLength, e.UncompressedLength),
			}
		}
		e.Offset = cursor
		cursor += int64(e.CompressedLength)
	}
	return entries, nil
}

// Open parses an archive from r. name identifies the stream in errors and
// logs. Payloads are read lazily through r, which must stay valid for the
// lifetime of the returned Archive.
func Open(r io.ReaderAt, name string) (*Archive, error) {
	sr := newStreamReader(io.NewSectionReader(r, 0, math.MaxInt64), name, 0)
	h, err := readHeader(sr)
	if err != nil {
		return nil, err
	}

	source := r
	codec := codecFor(h.version)
	if IsLegacy(h.version) {
		body, err := io.ReadAll(flate.NewReader(io.NewSectionReader(r, h.dataStart, math.MaxInt64-h.dataStart)))
		if err != nil {
			return nil, &FormatError{Op: "open", Path: name, Offset: h.dataStart, Err: fmt.Errorf("%w: inflating legacy body: %w", ErrCorruptArchive, err)}
		}
		source = bytes.NewReader(body)
		sr = newStreamReader(bytes.NewReader(body), name, 0)
	}

	archiveName, err := sr.readString()
	if err != nil {
		return nil, err
	}
	archiveVersion, err := sr.readString()
	if err != nil {
		return nil, err
	}
	count, err := sr.readUint32()
	if err != nil {
		return nil, err
	}

	entries, err := codec.readEntries(sr, count)
	if err != nil {
		return nil, err
	}

	a := &Archive{
		name:          archiveName,
		version:       archiveVersion,
		formatVersion: h.formatVersion,
		hash:          h.hash,
		legacy:        IsLegacy(h.version),
		source:        source,
		raw:           r,
		label:         name,
		entries:       entries,
		index:         make(map[string]int, len(entries)),
		cache:         make(map[string][]byte),
	}
	for i, e := range entries {
		if _, dup := a.index[e.Path]; dup {
			return nil, &FormatError{Op: "open", Path: name, Offset: e.Offset, Err: fmt.Errorf("%w: duplicate entry %q", ErrCorruptArchive, e.Path)}
		}
		a.index[e.Path] = i
	}

	slog.Debug("Opened archive",
		"source", name,
		"name", archiveName,
		"version", archiveVersion,
		"format", h.formatVersion,
		"layout", codec.name(),
		"entries", len(entries))

	return a, nil
}

// OpenFile opens the archive at path. Closing the archive closes the file.
func OpenFile(path string) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	a, err := Open(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	a.closer = f
	return a, nil
}

// VerifyHash recomputes the content hash and payload length of the archive
// in r and compares them against the header.
func VerifyHash(r io.ReaderAt, name string) error {
	sr := newStreamReader(io.NewSectionReader(r, 0, math.MaxInt64), name, 0)
	h, err := readHeader(sr)
	if err != nil {
		return err
	}

	hasher := sha1.New()
	n, err := io.Copy(hasher, io.NewSectionReader(r, h.dataStart, math.MaxInt64-h.dataStart))
	if err != nil {
		return &FormatError{Op: "verify", Path: name, Offset: h.dataStart + n, Err: ioError(err)}
	}
	if n != int64(h.payloadLength) {
		return &FormatError{Op: "verify", Path: name, Offset: h.dataStart,
			Err: fmt.Errorf("%w: payload is %d bytes, header says %d", ErrCorruptArchive, n, h.payloadLength)}
	}
	if subtle.ConstantTimeCompare(hasher.Sum(nil), h.hash[:]) != 1 {
		return &FormatError{Op: "verify", Path: name, Offset: h.dataStart, Err: fmt.Errorf("%w: content hash mismatch", ErrCorruptArchive)}
	}
	return nil
}

// writeArchive emits the current layout to w, back-patching the hash and
// payload length once the body is known. The stream is left positioned at
// the end of the archive.
func writeArchive(w io.WriteSeeker, b *Builder) (int64, error) {
	if IsLegacy(b.version) {
		return 0, &FormatError{Op: "write", Path: b.name, Offset: 0,
			Err: fmt.Errorf("%w: %s is older than %s", ErrUnsupportedFormat, b.formatVersion, LegacyThreshold)}
	}

	start, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, fmt.Errorf("locating write position: %w", err)
	}

	sw := newStreamWriter(w)
	sw.writeUint32(Magic)
	sw.writeString(b.formatVersion)
	hashOffset := start + sw.n
	sw.write(make([]byte, reservedSize))
	if sw.err != nil {
		return sw.n, &FormatError{Op: "write", Path: b.name, Offset: start + sw.n, Err: ioError(sw.err)}
	}
	dataStart := start + sw.n

	hasher := sha1.New()
	body := newStreamWriter(io.MultiWriter(w, hasher))
	body.writeString(b.name)
	body.writeString(b.modVersion)
	body.writeUint32(uint32(len(b.entries)))
	for _, e := range b.entries {
		body.writeString(e.Path)
		body.writeUint32(e.UncompressedLength)
		body.writeUint32(e.CompressedLength())
	}
	for _, e := range b.entries {
		body.write(e.Payload)
	}
	if body.err != nil {
		return dataStart - start + body.n, &FormatError{Op: "write", Path: b.name, Offset: dataStart + body.n, Err: ioError(body.err)}
	}
	if body.n > math.MaxUint32 {
		return dataStart - start + body.n, &FormatError{Op: "write", Path: b.name, Offset: dataStart,
			Err: fmt.Errorf("payload of %d bytes exceeds format limit", body.n)}
	}
	end := dataStart + body.n

	if _, err := w.Seek(hashOffset, io.SeekStart); err != nil {
		return end - start, fmt.Errorf("seeking to header: %w", err)
	}
	patch := newStreamWriter(w)
	patch.write(hasher.Sum(nil))
	if _, err := w.Seek(SignatureSize, io.SeekCurrent); err != nil {
		return end - start, fmt.Errorf("skipping signature block: %w", err)
	}
	patch.writeUint32(uint32(body.n))
	if patch.err != nil {
		return end - start, &FormatError{Op: "write", Path: b.name, Offset: hashOffset, Err: ioError(patch.err)}
	}
	if _, err := w.Seek(end, io.SeekStart); err != nil {
		return end - start, fmt.Errorf("seeking to end: %w", err)
	}

	slog.Debug("Wrote archive",
		"name", b.name,
		"version", b.modVersion,
		"format", b.formatVersion,
		"entries", len(b.entries),
		"bytes", end-start)

	return end - start, nil
}
