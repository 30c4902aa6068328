package tmod

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidHeader reports a magic number mismatch.
	ErrInvalidHeader = errors.New("invalid tmod header")
	// ErrUnsupportedFormat reports a format version the writer cannot emit.
	ErrUnsupportedFormat = errors.New("unsupported tmod format version")
	// ErrIO reports a short read or write against the backing stream.
	ErrIO = errors.New("tmod i/o error")
	// ErrCorruptArchive reports a structurally inconsistent entry table.
	ErrCorruptArchive = errors.New("corrupt tmod archive")
	// ErrCorruptEntry reports an entry whose payload does not decode to its
	// declared length.
	ErrCorruptEntry = errors.New("corrupt tmod entry")
)

// FormatError records a failure while reading or writing an archive along
// with the stream it happened on and the byte offset where it was detected.
type FormatError struct {
	Op     string
	Path   string
	Offset int64
	Err    error
}

func (e *FormatError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s at offset %d: %v", e.Op, e.Offset, e.Err)
	}
	return fmt.Sprintf("%s %s at offset %d: %v", e.Op, e.Path, e.Offset, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// ioError classifies err as ErrIO while keeping the underlying cause
// reachable through errors.Is.
func ioError(err error) error {
	if err == nil || errors.Is(err, ErrIO) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrIO, err)
}
