package corpus

import (
	"bufio"
	"bytes"
	stderrors "errors"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/hpungsan/arag/internal/errors"
)

// Entry is one content file: its path relative to content/ (slash
// separated) and its modification time.
type Entry struct {
	Path    string    `json:"path"`
	ModTime time.Time `json:"mtime"`
}

// WalkContent lists the regular files under content/ in fsys, sorted by path.
// fsys is rooted at the corpus root; it may be os.DirFS or an open archive.
// A corpus without a content directory has no entries.
func WalkContent(fsys fs.FS) ([]Entry, error) {
	var entries []Entry
	err := fs.WalkDir(fsys, ContentDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == ContentDir && stderrors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		entries = append(entries, Entry{
			Path:    strings.TrimPrefix(p, ContentDir+"/"),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

// ContentMember returns the fsys name of a content path.
func ContentMember(rel string) string {
	return path.Join(ContentDir, rel)
}

// FormatContentList renders the content_list file: one path per line.
func FormatContentList(entries []Entry) []byte {
	var buf bytes.Buffer
	for _, e := range entries {
		buf.WriteString(e.Path)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// WriteContentList regenerates content_list under root from the current
// content tree.
func WriteContentList(fsys fs.FS, root string) ([]Entry, error) {
	entries, err := WalkContent(fsys)
	if err != nil {
		return nil, err
	}
	if err := WriteFileAtomic(New(root).ListPath(), FormatContentList(entries), 0644); err != nil {
		return nil, err
	}
	return entries, nil
}

// ReadContentList reads content_list from fsys. A missing list is
// MISSING_PREREQUISITE.
func ReadContentList(fsys fs.FS) ([]string, error) {
	data, err := fs.ReadFile(fsys, ListFile)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.NewMissingPrerequisite("corpus has no content_list; run build first")
		}
		return nil, errors.NewInternal(err)
	}

	var paths []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		if line := strings.TrimRight(sc.Text(), "\r"); line != "" {
			paths = append(paths, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return paths, nil
}
