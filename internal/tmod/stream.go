package tmod

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// maxStringLength bounds length prefixes so a corrupt table cannot request
// an absurd allocation.
const maxStringLength = 1 << 20

// streamReader reads little-endian integers and prefixed strings while
// tracking the offset it has reached, so failures can say where they were
// detected.
type streamReader struct {
	r    io.Reader
	off  int64
	name string
	buf  [4]byte
}

func newStreamReader(r io.Reader, name string, base int64) *streamReader {
	return &streamReader{r: r, name: name, off: base}
}

func (s *streamReader) fail(op string, err error) error {
	return &FormatError{Op: op, Path: s.name, Offset: s.off, Err: err}
}

func (s *streamReader) readFull(p []byte) error {
	n, err := io.ReadFull(s.r, p)
	s.off += int64(n)
	if err != nil {
		return s.fail("read", ioError(err))
	}
	return nil
}

func (s *streamReader) ReadByte() (byte, error) {
	if err := s.readFull(s.buf[:1]); err != nil {
		return 0, err
	}
	return s.buf[0], nil
}

func (s *streamReader) readUint32() (uint32, error) {
	if err := s.readFull(s.buf[:4]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(s.buf[:4]), nil
}

// readString reads a string prefixed by its byte length encoded seven bits
// at a time, low group first.
func (s *streamReader) readString() (string, error) {
	start := s.off
	n, err := binary.ReadUvarint(s)
	if err != nil {
		var fe *FormatError
		if errors.As(err, &fe) {
			return "", err
		}
		return "", &FormatError{Op: "read", Path: s.name, Offset: start, Err: fmt.Errorf("%w: bad string length: %w", ErrCorruptArchive, err)}
	}
	if n > maxStringLength {
		return "", &FormatError{Op: "read", Path: s.name, Offset: start, Err: fmt.Errorf("%w: string length %d too large", ErrCorruptArchive, n)}
	}
	if n == 0 {
		return "", nil
	}
	b := make([]byte, n)
	if err := s.readFull(b); err != nil {
		return "", err
	}
	return string(b), nil
}

func (s *streamReader) skip(n int64) error {
	copied, err := io.CopyN(io.Discard, s.r, n)
	s.off += copied
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return s.fail("read", ioError(err))
	}
	return nil
}

// streamWriter is the write-side counterpart of streamReader.
type streamWriter struct {
	w   io.Writer
	n   int64
	err error
	buf [binary.MaxVarintLen64]byte
}

func newStreamWriter(w io.Writer) *streamWriter {
	return &streamWriter{w: w}
}

func (s *streamWriter) write(p []byte) {
	if s.err != nil {
		return
	}
	n, err := s.w.Write(p)
	s.n += int64(n)
	if err == nil && n < len(p) {
		err = io.ErrShortWrite
	}
	s.err = err
}

func (s *streamWriter) writeUint32(v uint32) {
	binary.LittleEndian.PutUint32(s.buf[:4], v)
	s.write(s.buf[:4])
}

func (s *streamWriter) writeByte(b byte) {
	s.buf[0] = b
	s.write(s.buf[:1])
}

func (s *streamWriter) writeString(v string) {
	if len(v) > math.MaxInt32 {
		if s.err == nil {
			s.err = fmt.Errorf("string of %d bytes is too long", len(v))
		}
		return
	}
	n := binary.PutUvarint(s.buf[:], uint64(len(v)))
	s.write(s.buf[:n])
	s.write([]byte(v))
}
