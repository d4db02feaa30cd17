package corpus

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/arag/internal/errors"
)

// AtomicFile is a temporary sibling of a destination path. Data written to it
// becomes visible at the destination only on Commit.
type AtomicFile struct {
	*os.File
	dest string
	tmp  string
	done bool
}

// CreateAtomic opens a temp file next to dest. The temp name carries a ULID
// so concurrent writers never collide.
func CreateAtomic(dest string, perm os.FileMode) (*AtomicFile, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create directory: %w", err))
	}

	tmp, err := TempPath(dest)
	if err != nil {
		return nil, err
	}

	f, err := openFileNoFollow(tmp, os.O_CREATE|os.O_WRONLY|os.O_EXCL, perm)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create temp file: %w", err))
	}
	return &AtomicFile{File: f, dest: dest, tmp: tmp}, nil
}

// TempPath returns an unused sibling name for dest ending in ".tmp".
// Such names are never packaged.
func TempPath(dest string) (string, error) {
	id, err := ulid.New(ulid.Timestamp(time.Now()), ulid.Monotonic(rand.Reader, 0))
	if err != nil {
		return "", errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	return dest + "." + id.String() + ".tmp", nil
}

// Commit syncs, closes and renames the temp file into place.
func (a *AtomicFile) Commit() error {
	if a.done {
		return nil
	}
	a.done = true

	if err := a.File.Sync(); err != nil {
		a.File.Close()
		os.Remove(a.tmp)
		return errors.NewInternal(err)
	}
	// Close before rename (required on Windows; fine elsewhere).
	if err := a.File.Close(); err != nil {
		os.Remove(a.tmp)
		return errors.NewInternal(fmt.Errorf("failed to close temp file: %w", err))
	}

	// os.Rename would follow a symlink at the destination.
	if info, err := os.Lstat(a.dest); err == nil && info.Mode()&os.ModeSymlink != 0 {
		os.Remove(a.tmp)
		return errors.NewInvalidRequest("destination is a symlink: " + a.dest)
	}

	if err := os.Rename(a.tmp, a.dest); err != nil {
		os.Remove(a.tmp)
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(a.dest); statErr == nil {
				return errors.NewDestinationExists(a.dest)
			}
		}
		return errors.NewInternal(fmt.Errorf("failed to finalize %s: %w", a.dest, err))
	}
	return nil
}

// Abort discards the temp file. It is a no-op after Commit.
func (a *AtomicFile) Abort() {
	if a.done {
		return
	}
	a.done = true
	a.File.Close()
	os.Remove(a.tmp)
}

// WriteFileAtomic replaces path with data via a temp file and rename.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	f, err := CreateAtomic(path, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Abort()
		return errors.NewInternal(err)
	}
	return f.Commit()
}

// IsLeftover reports root-level files left behind by the chunk store or by
// interrupted atomic writes: corpus.db journals and ULID temp files from
// TempPath, with their journals. name is slash separated and relative to the
// corpus root; nothing under content/ is ever a leftover.
func IsLeftover(name string) bool {
	if strings.Contains(name, "/") {
		return false
	}
	for _, suffix := range []string{"-journal", "-wal", "-shm"} {
		if base, ok := strings.CutSuffix(name, suffix); ok {
			return base == StoreFile || isTempName(base)
		}
	}
	return isTempName(name)
}

// isTempName matches "<dest>.<ULID>.tmp".
func isTempName(name string) bool {
	rest, ok := strings.CutSuffix(name, ".tmp")
	if !ok {
		return false
	}
	i := strings.LastIndexByte(rest, '.')
	if i <= 0 {
		return false
	}
	_, err := ulid.ParseStrict(rest[i+1:])
	return err == nil
}
