package vfs

import (
	"io"
	"io/fs"
	"path"
	"strings"
	"sync"
	"time"

	sqlitevfs "modernc.org/sqlite/vfs"
)

// Registration is a reader registered with SQLite as a named VFS.
type Registration struct {
	// VFS is the value for the `vfs` URI parameter.
	VFS string
	// Name is the database file name to open through the VFS.
	Name string

	fsys *sqlitevfs.FS
	once sync.Once
}

// DSN returns a read-only, immutable connection string for the registered store.
func (r *Registration) DSN() string {
	return "file:" + r.Name + "?vfs=" + r.VFS + "&mode=ro&immutable=1"
}

// Close unregisters the VFS. It does not close the underlying reader.
func (r *Registration) Close() error {
	var err error
	r.once.Do(func() { err = r.fsys.Close() })
	return err
}

// Register exposes rd to SQLite under name. Only that one file exists in the
// resulting file system; journal and WAL lookups report "not exist" so the
// engine treats the store as immutable.
func Register(name string, rd RandomAccessReader) (*Registration, error) {
	vfsName, fsys, err := sqlitevfs.New(&singleFileFS{name: name, rd: rd})
	if err != nil {
		return nil, err
	}
	return &Registration{VFS: vfsName, Name: name, fsys: fsys}, nil
}

// singleFileFS is an fs.FS containing exactly one file.
type singleFileFS struct {
	name string
	rd   RandomAccessReader
}

func (s *singleFileFS) Open(name string) (fs.File, error) {
	// The engine passes absolute paths; match on the base name only.
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if base != s.name {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	if err := s.rd.Lock(LockShared); err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	return &bridgeFile{fsys: s}, nil
}

// bridgeFile adapts a RandomAccessReader to fs.File with Seek support.
type bridgeFile struct {
	fsys *singleFileFS
	pos  int64
}

func (f *bridgeFile) Stat() (fs.FileInfo, error) {
	return bridgeInfo{name: f.fsys.name, size: f.fsys.rd.Size()}, nil
}

// Read fills p from the current position. A read that stops at the end of
// the store returns the bytes available with a nil error, which the engine
// treats as a short read. Running out of data before Size is an error.
func (f *bridgeFile) Read(p []byte) (int, error) {
	size := f.fsys.rd.Size()
	if f.pos >= size {
		return 0, io.EOF
	}
	n, err := f.fsys.rd.ReadAt(p, f.pos)
	f.pos += int64(n)
	if n < len(p) && f.pos < size {
		if err == nil || err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return n, err
	}
	if err == io.EOF {
		err = nil
	}
	return n, err
}

func (f *bridgeFile) ReadAt(p []byte, off int64) (int, error) {
	return f.fsys.rd.ReadAt(p, off)
}

func (f *bridgeFile) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = f.pos + offset
	case io.SeekEnd:
		abs = f.fsys.rd.Size() + offset
	default:
		return 0, &fs.PathError{Op: "seek", Path: f.fsys.name, Err: fs.ErrInvalid}
	}
	if abs < 0 {
		return 0, &fs.PathError{Op: "seek", Path: f.fsys.name, Err: fs.ErrInvalid}
	}
	f.pos = abs
	return abs, nil
}

func (f *bridgeFile) Close() error {
	return f.fsys.rd.Unlock(LockShared)
}

type bridgeInfo struct {
	name string
	size int64
}

func (i bridgeInfo) Name() string       { return i.name }
func (i bridgeInfo) Size() int64        { return i.size }
func (i bridgeInfo) Mode() fs.FileMode  { return 0444 }
func (i bridgeInfo) ModTime() time.Time { return time.Time{} }
func (i bridgeInfo) IsDir() bool        { return false }
func (i bridgeInfo) Sys() any           { return nil }
