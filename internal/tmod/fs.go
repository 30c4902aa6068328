package tmod

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

var _ fs.FS = (*Archive)(nil)

// Open implements fs.FS over the archive's entries. Directories are implied
// by the slash separated entry paths.
func (a *Archive) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}

	if name == "." {
		return &archiveDir{archive: a, prefix: ""}, nil
	}

	if i, ok := a.index[name]; ok {
		return &archiveFile{archive: a, entry: &a.entries[i]}, nil
	}

	// check for a directory separately
	files := a.sortedPaths()
	dirName := name + "/"
	idx := sort.SearchStrings(files, dirName)
	if idx < len(files) && strings.HasPrefix(files[idx], dirName) {
		return &archiveDir{archive: a, prefix: dirName, offset: idx}, nil
	}

	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
}

// archiveFile implements fs.File for an entry. Content is decoded on the
// first Read.
type archiveFile struct {
	archive *Archive
	entry   *Entry
	reader  *bytes.Reader
}

func (f *archiveFile) Read(p []byte) (int, error) {
	if f.reader == nil {
		data, err := f.archive.GetFile(f.entry.Path)
		if err != nil {
			return 0, err
		}
		f.reader = bytes.NewReader(data)
	}
	return f.reader.Read(p)
}

func (f *archiveFile) Close() error { return nil }

func (f *archiveFile) Stat() (fs.FileInfo, error) {
	return fileInfo{f.entry}, nil
}

type fileInfo struct {
	entry *Entry
}

func (fi fileInfo) Name() string       { return path.Base(fi.entry.Path) }
func (fi fileInfo) Size() int64        { return int64(fi.entry.UncompressedLength) }
func (fi fileInfo) Mode() fs.FileMode  { return 0o444 }
func (fi fileInfo) ModTime() time.Time { return time.Unix(0, 0) }
func (fi fileInfo) IsDir() bool        { return false }
func (fi fileInfo) Sys() any           { return fi.entry }

// archiveDir implements fs.ReadDirFile for an implied directory.
type archiveDir struct {
	archive *Archive
	prefix  string
	offset  int
}

func (d *archiveDir) Read([]byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.name(), Err: errors.New("is a directory")}
}

func (d *archiveDir) Close() error { return nil }

func (d *archiveDir) Stat() (fs.FileInfo, error) {
	return dirInfo{name: d.name()}, nil
}

func (d *archiveDir) name() string {
	if d.prefix == "" {
		return "."
	}
	return path.Base(strings.TrimSuffix(d.prefix, "/"))
}

func (d *archiveDir) ReadDir(n int) ([]fs.DirEntry, error) {
	files := d.archive.sortedPaths()
	prefixLen := len(d.prefix)

	dirents := []fs.DirEntry{}
	for d.offset < len(files) {
		p := files[d.offset]
		if !strings.HasPrefix(p, d.prefix) {
			d.offset = len(files)
			break
		}

		slashIdx := strings.Index(p[prefixLen:], "/")
		if slashIdx != -1 {
			dir := p[:prefixLen+slashIdx]
			dirents = append(dirents, dirEntry{name: path.Base(dir)})
			// skip everything under dir
			d.offset += sort.Search(len(files)-d.offset, func(i int) bool {
				return files[d.offset+i] >= dir+"/\xff"
			})
		} else {
			i := d.archive.index[p]
			dirents = append(dirents, dirEntry{name: path.Base(p), file: &d.archive.entries[i]})
			d.offset++
		}

		if n > 0 && len(dirents) >= n {
			return dirents, nil
		}
	}

	if n > 0 && len(dirents) == 0 {
		return nil, io.EOF
	}
	return dirents, nil
}

type dirInfo struct {
	name string
}

func (di dirInfo) Name() string       { return di.name }
func (di dirInfo) Size() int64        { return 0 }
func (di dirInfo) Mode() fs.FileMode  { return 0o555 | fs.ModeDir }
func (di dirInfo) ModTime() time.Time { return time.Unix(0, 0) }
func (di dirInfo) IsDir() bool        { return true }
func (di dirInfo) Sys() any           { return nil }

// dirEntry implements fs.DirEntry; file is nil for directories.
type dirEntry struct {
	name string
	file *Entry
}

func (de dirEntry) Name() string { return de.name }
func (de dirEntry) IsDir() bool  { return de.file == nil }

func (de dirEntry) Type() fs.FileMode {
	if de.IsDir() {
		return fs.ModeDir
	}
	return 0
}

func (de dirEntry) Info() (fs.FileInfo, error) {
	if de.IsDir() {
		return dirInfo{name: de.name}, nil
	}
	return fileInfo{de.file}, nil
}
