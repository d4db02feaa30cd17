// Package archive packs a corpus directory into a single .arag file and back.
//
// Content files are deflated. The chunk store and metadata are stored
// uncompressed so the store can be queried in place through internal/vfs.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"

	"github.com/hpungsan/arag/internal/corpus"
	"github.com/hpungsan/arag/internal/errors"
	"github.com/hpungsan/arag/internal/logger"
	"github.com/hpungsan/arag/internal/vfs"
)

// Member is one entry written to or read from an archive.
type Member struct {
	Name       string `json:"name"`
	Size       int64  `json:"size"`
	Compressed bool   `json:"compressed"`
}

// PackOutput summarizes a Pack call.
type PackOutput struct {
	Path    string   `json:"path"`
	Members []Member `json:"members"`
	Bytes   int64    `json:"bytes"`
}

// compressed reports whether a member name should be deflated.
func compressed(name string) bool {
	return strings.HasPrefix(name, corpus.ContentDir+"/")
}

// Pack writes sourceDir into a new archive at dest. Members keep their
// modification times truncated to whole seconds.
func Pack(sourceDir, dest string) (*PackOutput, error) {
	if _, err := os.Stat(dest); err == nil {
		return nil, errors.NewDestinationExists(dest)
	}
	info, err := os.Stat(sourceDir)
	if err != nil || !info.IsDir() {
		return nil, errors.NewNotFound(sourceDir)
	}

	out, err := corpus.CreateAtomic(dest, 0644)
	if err != nil {
		return nil, err
	}
	success := false
	defer func() {
		if !success {
			out.Abort()
		}
	}()

	zw := zip.NewWriter(out)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.BestCompression)
	})

	var members []Member
	err = filepath.WalkDir(sourceDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(sourceDir, p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if corpus.IsLeftover(name) {
			return nil
		}

		m, err := addFile(zw, p, name)
		if err != nil {
			return fmt.Errorf("add %s: %w", name, err)
		}
		logger.Debug("packed %s (%d bytes, compressed=%v)", name, m.Size, m.Compressed)
		members = append(members, m)
		return nil
	})
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	if err := zw.Close(); err != nil {
		return nil, errors.NewInternal(err)
	}
	size, err := out.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	if err := out.Commit(); err != nil {
		return nil, err
	}

	success = true
	return &PackOutput{Path: dest, Members: members, Bytes: size}, nil
}

func addFile(zw *zip.Writer, src, name string) (Member, error) {
	f, err := os.Open(src)
	if err != nil {
		return Member{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Member{}, err
	}

	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return Member{}, err
	}
	hdr.Name = name
	hdr.Modified = info.ModTime().Truncate(time.Second)
	hdr.Method = zip.Store
	if compressed(name) {
		hdr.Method = zip.Deflate
	}

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return Member{}, err
	}
	n, err := io.Copy(w, f)
	if err != nil {
		return Member{}, err
	}
	return Member{Name: name, Size: n, Compressed: hdr.Method == zip.Deflate}, nil
}

// Archive is an open packaged corpus. It implements fs.FS rooted at the
// corpus root, so content and metadata can be read without extracting.
type Archive struct {
	*zip.ReadCloser
	path string
}

// Open opens a packaged corpus for reading.
func Open(archivePath string) (*Archive, error) {
	rc, err := zip.OpenReader(archivePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound(archivePath)
		}
		return nil, errors.NewInvalidRequest(fmt.Sprintf("not a valid archive: %s: %v", archivePath, err))
	}
	rc.RegisterDecompressor(zip.Deflate, func(r io.Reader) io.ReadCloser {
		return flate.NewReader(r)
	})
	return &Archive{ReadCloser: rc, path: archivePath}, nil
}

// Path returns the archive's file path.
func (a *Archive) Path() string { return a.path }

// Members lists every member in archive order.
func (a *Archive) Members() []Member {
	members := make([]Member, 0, len(a.File))
	for _, f := range a.File {
		if strings.HasSuffix(f.Name, "/") {
			continue
		}
		members = append(members, Member{
			Name:       f.Name,
			Size:       int64(f.UncompressedSize64),
			Compressed: f.Method != zip.Store,
		})
	}
	return members
}

// OpenStore returns random access to the archive's chunk store member.
func OpenStore(archivePath string) (*vfs.ArchiveMember, error) {
	return vfs.OpenArchiveMember(archivePath, corpus.StoreFile)
}

// Unpack extracts archivePath into destDir, which must not exist. Extraction
// happens in a sibling temp directory that is renamed into place on success.
func Unpack(archivePath, destDir string) ([]Member, error) {
	if _, err := os.Lstat(destDir); err == nil {
		return nil, errors.NewDestinationExists(destDir)
	}

	a, err := Open(archivePath)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	for _, f := range a.File {
		if !validMemberName(f.Name) {
			return nil, errors.NewInvalidRequest("archive member escapes destination: " + f.Name)
		}
	}

	parent := filepath.Dir(destDir)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return nil, errors.NewInternal(err)
	}
	tmp, err := os.MkdirTemp(parent, "."+filepath.Base(destDir)+".*.tmp")
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	success := false
	defer func() {
		if !success {
			os.RemoveAll(tmp)
		}
	}()

	var members []Member
	for _, f := range a.File {
		if strings.HasSuffix(f.Name, "/") {
			continue
		}
		if err := extractFile(f, filepath.Join(tmp, filepath.FromSlash(f.Name))); err != nil {
			return nil, errors.NewInternal(fmt.Errorf("extract %s: %w", f.Name, err))
		}
		members = append(members, Member{
			Name:       f.Name,
			Size:       int64(f.UncompressedSize64),
			Compressed: f.Method != zip.Store,
		})
	}

	if err := os.Rename(tmp, destDir); err != nil {
		if _, statErr := os.Lstat(destDir); statErr == nil {
			return nil, errors.NewDestinationExists(destDir)
		}
		return nil, errors.NewInternal(err)
	}

	success = true
	return members, nil
}

// validMemberName rejects absolute names and any ".." component.
func validMemberName(name string) bool {
	if name == "" || strings.HasPrefix(name, "/") || strings.HasPrefix(name, "\\") || filepath.IsAbs(name) {
		return false
	}
	if len(name) >= 2 && name[1] == ':' {
		return false
	}
	return !corpus.ContainsTraversal(name)
}

func extractFile(f *zip.File, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	mtime := f.Modified
	if mtime.IsZero() {
		return nil
	}
	return os.Chtimes(dest, mtime, mtime)
}
