// Package corpus describes the on-disk layout of a corpus and its index
// metadata.
//
// An unpacked corpus is a directory:
//
//	<root>/content/**    source documents
//	<root>/corpus.db     chunk store
//	<root>/index.json    embedding metadata (present once indexed)
//	<root>/content_list  flat listing of content paths
//
// A packaged corpus is a zip archive of the same members.
package corpus

import (
	"os"
	"path/filepath"
	"strings"
)

// Member names. They are also the archive member names.
const (
	ContentDir = "content"
	StoreFile  = "corpus.db"
	MetaFile   = "index.json"
	ListFile   = "content_list"
)

// ArchiveExt is the extension of a packaged corpus.
const ArchiveExt = ".arag"

// dirSuffix marks the directory form of a corpus name.
const dirSuffix = "-arag"

// Layout resolves member paths for an unpacked corpus.
type Layout struct {
	Root string
}

// New returns the layout rooted at root.
func New(root string) Layout {
	return Layout{Root: root}
}

func (l Layout) ContentPath() string { return filepath.Join(l.Root, ContentDir) }
func (l Layout) StorePath() string   { return filepath.Join(l.Root, StoreFile) }
func (l Layout) MetaPath() string    { return filepath.Join(l.Root, MetaFile) }
func (l Layout) ListPath() string    { return filepath.Join(l.Root, ListFile) }

// HasStore reports whether the chunk store file exists.
func (l Layout) HasStore() bool {
	info, err := os.Stat(l.StorePath())
	return err == nil && info.Mode().IsRegular()
}

// IsPackaged reports whether path names a packaged corpus. A regular file is
// an archive; anything else is treated as a directory.
func IsPackaged(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return strings.HasSuffix(path, ArchiveExt)
	}
	return info.Mode().IsRegular()
}

// DirName maps a packaged name to its directory form: "docs.arag" -> "docs-arag".
func DirName(archivePath string) string {
	dir, base := filepath.Split(archivePath)
	return dir + strings.TrimSuffix(base, ArchiveExt) + dirSuffix
}

// ArchiveName maps a directory name to its packaged form: "docs-arag" -> "docs.arag".
func ArchiveName(dirPath string) string {
	dirPath = strings.TrimRight(dirPath, string(filepath.Separator)+"/")
	dir, base := filepath.Split(dirPath)
	return dir + strings.TrimSuffix(base, dirSuffix) + ArchiveExt
}

// ContainsTraversal reports whether a relative path has a ".." component.
// Both separators are checked so archive names from any platform are caught.
func ContainsTraversal(path string) bool {
	for _, part := range strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' }) {
		if part == ".." {
			return true
		}
	}
	return false
}
