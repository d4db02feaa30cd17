// Package vfs exposes read-only random access to a corpus store, either as a
// plain file or as a stored member inside a packaged archive, and bridges that
// access into SQLite.
package vfs

import (
	"archive/zip"
	"io"
	"os"

	"github.com/hpungsan/arag/internal/errors"
)

// SectorSize is the sector size reported to the database engine.
const SectorSize = 4096

// LockLevel mirrors the database engine's file lock levels.
type LockLevel int

const (
	LockNone LockLevel = iota
	LockShared
	LockReserved
	LockPending
	LockExclusive
)

func (l LockLevel) String() string {
	switch l {
	case LockNone:
		return "none"
	case LockShared:
		return "shared"
	case LockReserved:
		return "reserved"
	case LockPending:
		return "pending"
	case LockExclusive:
		return "exclusive"
	default:
		return "unknown"
	}
}

// RandomAccessReader is the contract between the database engine and a
// storage backend. Implementations are read-only.
type RandomAccessReader interface {
	Size() int64
	ReadAt(p []byte, off int64) (int, error)
	Lock(level LockLevel) error
	Unlock(level LockLevel) error
	SectorSize() int
	DeviceCharacteristics() int
	Close() error
}

// ReadExact reads exactly length bytes at off. Fewer available bytes is a
// SHORT_READ error, never a silently truncated result.
func ReadExact(r RandomAccessReader, off int64, length int) ([]byte, error) {
	if off < 0 || length < 0 {
		return nil, errors.NewInvalidRequest("offset and length must be non-negative")
	}
	buf := make([]byte, length)
	n, err := r.ReadAt(buf, off)
	if n == length {
		return buf, nil
	}
	if err != nil && err != io.EOF {
		return nil, errors.NewInternal(err)
	}
	return nil, errors.NewShortRead(off, length, n)
}

// readOnlyLock accepts shared access and rejects any write intent.
func readOnlyLock(level LockLevel) error {
	switch level {
	case LockNone, LockShared:
		return nil
	default:
		return errors.NewWriteNotSupported("cannot acquire " + level.String() + " lock on read-only storage")
	}
}

// FileReader reads a plain file on disk.
type FileReader struct {
	f    *os.File
	size int64
}

// OpenFile opens path for random-access reads.
func OpenFile(path string) (*FileReader, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound(path)
		}
		return nil, errors.NewInternal(err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.NewInternal(err)
	}
	return &FileReader{f: f, size: info.Size()}, nil
}

func (r *FileReader) Size() int64 { return r.size }

func (r *FileReader) ReadAt(p []byte, off int64) (int, error) { return r.f.ReadAt(p, off) }

func (r *FileReader) Lock(level LockLevel) error { return readOnlyLock(level) }

func (r *FileReader) Unlock(LockLevel) error { return nil }

func (r *FileReader) SectorSize() int { return SectorSize }

func (r *FileReader) DeviceCharacteristics() int { return 0 }

func (r *FileReader) Close() error { return r.f.Close() }

// ArchiveMember reads one stored (uncompressed) member of a zip archive in
// place. Offsets are relative to the start of the member's data.
type ArchiveMember struct {
	name    string
	f       *os.File
	section *io.SectionReader
}

// OpenArchiveMember locates name inside the archive at archivePath.
// The member must use the Store method; compressed members cannot be read
// at arbitrary offsets.
func OpenArchiveMember(archivePath, name string) (*ArchiveMember, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound(archivePath)
		}
		return nil, errors.NewInternal(err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.NewInternal(err)
	}
	zr, err := zip.NewReader(f, info.Size())
	if err != nil {
		f.Close()
		return nil, errors.NewInvalidRequest("not a valid archive: " + err.Error())
	}

	for _, zf := range zr.File {
		if zf.Name != name {
			continue
		}
		if zf.Method != zip.Store {
			f.Close()
			return nil, errors.NewUnsupportedCompression(name, zf.Method)
		}
		start, err := zf.DataOffset()
		if err != nil {
			f.Close()
			return nil, errors.NewInternal(err)
		}
		return &ArchiveMember{
			name:    name,
			f:       f,
			section: io.NewSectionReader(f, start, int64(zf.UncompressedSize64)),
		}, nil
	}

	f.Close()
	return nil, errors.NewNotFound(name)
}

// Name returns the member name.
func (m *ArchiveMember) Name() string { return m.name }

func (m *ArchiveMember) Size() int64 { return m.section.Size() }

func (m *ArchiveMember) ReadAt(p []byte, off int64) (int, error) { return m.section.ReadAt(p, off) }

func (m *ArchiveMember) Lock(level LockLevel) error { return readOnlyLock(level) }

func (m *ArchiveMember) Unlock(LockLevel) error { return nil }

func (m *ArchiveMember) SectorSize() int { return SectorSize }

func (m *ArchiveMember) DeviceCharacteristics() int { return 0 }

func (m *ArchiveMember) Close() error { return m.f.Close() }
