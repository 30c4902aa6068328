package tmod

// Entry describes one file in an opened archive. Payload bytes are not held
// here; they are fetched from the backing source on demand.
type Entry struct {
	Path               string
	UncompressedLength uint32
	CompressedLength   uint32
	// Offset is the position of the payload in the archive's payload source.
	// For legacy archives that is the inflated body, not the file itself.
	Offset int64
}

// Compressed reports whether the payload is deflated.
func (e Entry) Compressed() bool {
	return e.CompressedLength != e.UncompressedLength
}

// BuilderEntry is a file queued in a Builder. Payload holds the bytes that
// will be written to the archive, already compressed when that paid off.
type BuilderEntry struct {
	Path               string
	Payload            []byte
	UncompressedLength uint32
}

// CompressedLength is the number of payload bytes written for the entry.
func (e *BuilderEntry) CompressedLength() uint32 {
	return uint32(len(e.Payload))
}

// Compressed reports whether the payload is deflated.
func (e *BuilderEntry) Compressed() bool {
	return e.CompressedLength() < e.UncompressedLength
}
