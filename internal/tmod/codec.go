package tmod

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/flate"
)

// Level selects a deflate compression level for archive entries.
type Level int

const (
	LevelOptimal Level = iota
	LevelFastest
	LevelSmallest
	LevelNone
)

// String returns the configuration name of the level.
func (l Level) String() string {
	switch l {
	case LevelOptimal:
		return "optimal"
	case LevelFastest:
		return "fastest"
	case LevelSmallest:
		return "smallest"
	case LevelNone:
		return "none"
	default:
		return fmt.Sprintf("unknown(%d)", int(l))
	}
}

// ParseLevel parses a compression level from its configuration name.
func ParseLevel(name string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "optimal", "default":
		return LevelOptimal, nil
	case "fastest", "fast":
		return LevelFastest, nil
	case "smallest", "best":
		return LevelSmallest, nil
	case "none", "store":
		return LevelNone, nil
	default:
		return 0, fmt.Errorf("unknown compression level: %q", name)
	}
}

func (l Level) flateLevel() int {
	switch l {
	case LevelFastest:
		return flate.BestSpeed
	case LevelSmallest:
		return flate.BestCompression
	case LevelNone:
		return flate.NoCompression
	default:
		return flate.DefaultCompression
	}
}

// Compress deflates data at the given level. The output is a raw deflate
// stream with no zlib or gzip framing.
func Compress(data []byte, level Level) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(data) / 2)

	w, err := flate.NewWriter(&buf, level.flateLevel())
	if err != nil {
		return nil, fmt.Errorf("creating deflate writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("deflating: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finishing deflate stream: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress inflates a raw deflate stream that must expand to exactly
// uncompressedLen bytes. Any mismatch, including compressed bytes left over
// after the end of the stream, is reported as ErrCorruptEntry.
func Decompress(compressed []byte, uncompressedLen int) ([]byte, error) {
	src := bytes.NewReader(compressed)
	r := flate.NewReader(src)
	defer r.Close()

	out := make([]byte, uncompressedLen)
	n, err := io.ReadFull(r, out)
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("%w: inflated %d bytes, expected %d", ErrCorruptEntry, n, uncompressedLen)
		}
		return nil, fmt.Errorf("%w: %w", ErrCorruptEntry, err)
	}

	// Drain to the end of the stream so trailing output or trailing input
	// is noticed.
	var extra [1]byte
	for {
		m, err := r.Read(extra[:])
		if m > 0 {
			return nil, fmt.Errorf("%w: inflated more than %d bytes", ErrCorruptEntry, uncompressedLen)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorruptEntry, err)
		}
	}
	if src.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after deflate stream", ErrCorruptEntry, src.Len())
	}

	return out, nil
}

// Default compression policy values.
const (
	DefaultMinCompressSize = 1024
	DefaultTradeoff        = 0.9
)

// DefaultExcludedExtensions lists formats that already carry their own
// compression.
var DefaultExcludedExtensions = []string{".png", ".mp3", ".ogg"}

// CompressionPolicy decides whether an entry is stored compressed.
type CompressionPolicy struct {
	// MinSize is the largest payload that is always stored as-is.
	MinSize int
	// Tradeoff is the fraction of the original size the compressed form
	// must beat to be kept.
	Tradeoff float64
	// Level is the deflate level used for candidates.
	Level Level
	// Excluded holds lower-case extensions (with dot) never compressed.
	Excluded map[string]struct{}
}

// DefaultPolicy returns the policy used when none is configured:
// payloads over 1 KiB are compressed when the result is under 90% of the
// original, png/mp3/ogg are always stored.
func DefaultPolicy() CompressionPolicy {
	return NewPolicy(DefaultMinCompressSize, DefaultTradeoff, LevelOptimal, DefaultExcludedExtensions)
}

// NewPolicy builds a policy. Extensions are normalised to lower case with a
// leading dot.
func NewPolicy(minSize int, tradeoff float64, level Level, excluded []string) CompressionPolicy {
	p := CompressionPolicy{
		MinSize:  minSize,
		Tradeoff: tradeoff,
		Level:    level,
		Excluded: make(map[string]struct{}, len(excluded)),
	}
	for _, ext := range excluded {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		p.Excluded[ext] = struct{}{}
	}
	return p
}

// ShouldAttempt reports whether files with the given extension are worth
// trying to compress.
func (p CompressionPolicy) ShouldAttempt(ext string) bool {
	_, skip := p.Excluded[strings.ToLower(ext)]
	return !skip
}

// Decide returns the bytes to store for the entry at path. The result is
// either data itself (stored) or its deflated form (compressed); callers
// tell the two apart by comparing lengths.
func (p CompressionPolicy) Decide(entryPath string, data []byte) ([]byte, error) {
	if len(data) <= p.MinSize || !p.ShouldAttempt(path.Ext(entryPath)) {
		return data, nil
	}

	compressed, err := Compress(data, p.Level)
	if err != nil {
		return nil, err
	}
	if len(compressed) < len(data) && float64(len(compressed)) < float64(len(data))*p.Tradeoff {
		return compressed, nil
	}
	return data, nil
}
