package tmod

import (
	"errors"
	"io"
)

// seekBuffer is an in-memory io.WriteSeeker. Writing past the end grows the
// buffer, filling any gap with zeros.
type seekBuffer struct {
	buf []byte
	pos int64
}

func (b *seekBuffer) Write(p []byte) (int, error) {
	end := b.pos + int64(len(p))
	if end > int64(len(b.buf)) {
		if end > int64(cap(b.buf)) {
			grown := make([]byte, end, max(end, 2*int64(cap(b.buf))))
			copy(grown, b.buf)
			b.buf = grown
		} else {
			b.buf = b.buf[:end]
		}
	}
	copy(b.buf[b.pos:], p)
	b.pos = end
	return len(p), nil
}

func (b *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = b.pos + offset
	case io.SeekEnd:
		abs = int64(len(b.buf)) + offset
	default:
		return 0, errors.New("seekBuffer: invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("seekBuffer: negative position")
	}
	b.pos = abs
	return abs, nil
}

func (b *seekBuffer) Bytes() []byte { return b.buf }
