// Package freshness classifies a corpus as fresh or stale by comparing the
// modification times of its content, chunk store and index metadata.
//
// The classification is derived on every call and never cached.
package freshness

import (
	"context"
	stderrors "errors"
	"io/fs"
	"sort"
	"time"

	"github.com/hpungsan/arag/internal/corpus"
	"github.com/hpungsan/arag/internal/errors"
)

// State is a freshness classification.
type State string

const (
	Fresh       State = "fresh"
	StaleCorpus State = "stale_corpus"
	StaleIndex  State = "stale_index"
	Missing     State = "missing"
)

// PathLister returns the distinct content paths recorded in a chunk store.
// It is only called when the store exists.
type PathLister func(ctx context.Context) ([]string, error)

// Report is the outcome of Classify.
type Report struct {
	// State is the overall classification.
	State State `json:"state"`
	// Corpus compares the store against the content tree only.
	Corpus State `json:"corpus"`

	// Reason is a short human-readable explanation of State.
	Reason string `json:"reason"`

	// Added are content paths missing from the store; Removed are stored
	// paths with no content file. Modified have mtimes after the store's.
	Added    []string `json:"added,omitempty"`
	Removed  []string `json:"removed,omitempty"`
	Modified []string `json:"modified,omitempty"`

	ContentFiles  int        `json:"content_files"`
	NewestContent *time.Time `json:"newest_content,omitempty"`
	StoreModTime  *time.Time `json:"store_mtime,omitempty"`
	IndexModTime  *time.Time `json:"index_mtime,omitempty"`
}

// Classify inspects the corpus rooted at fsys. It works over os.DirFS for an
// unpacked corpus and over an open archive for a packaged one.
func Classify(ctx context.Context, fsys fs.FS, paths PathLister) (*Report, error) {
	entries, err := corpus.WalkContent(fsys)
	if err != nil {
		return nil, err
	}

	r := &Report{ContentFiles: len(entries)}
	for _, e := range entries {
		if r.NewestContent == nil || e.ModTime.After(*r.NewestContent) {
			t := e.ModTime
			r.NewestContent = &t
		}
	}

	storeTime, ok, err := modTime(fsys, corpus.StoreFile)
	if err != nil {
		return nil, err
	}
	if !ok {
		r.State, r.Corpus = Missing, Missing
		r.Reason = "no chunk store; run build"
		return r, nil
	}
	r.StoreModTime = &storeTime

	if err := ctx.Err(); err != nil {
		return nil, errors.NewCancelled("status")
	}

	stored, err := paths(ctx)
	if err != nil {
		return nil, err
	}
	r.Added, r.Removed = diff(entries, stored)
	for _, e := range entries {
		if e.ModTime.After(storeTime) {
			r.Modified = append(r.Modified, e.Path)
		}
	}

	if len(r.Added) > 0 || len(r.Removed) > 0 || len(r.Modified) > 0 {
		r.State, r.Corpus = StaleCorpus, StaleCorpus
		r.Reason = "content changed since the chunk store was built; run build with overwrite"
		return r, nil
	}
	r.Corpus = Fresh

	indexTime, ok, err := modTime(fsys, corpus.MetaFile)
	if err != nil {
		return nil, err
	}
	if !ok {
		r.State = Missing
		r.Reason = "no index metadata; run index"
		return r, nil
	}
	r.IndexModTime = &indexTime

	if storeTime.After(indexTime) {
		r.State = StaleIndex
		r.Reason = "chunk store is newer than the index; run index"
		return r, nil
	}

	r.State = Fresh
	r.Reason = "up to date"
	return r, nil
}

func modTime(fsys fs.FS, name string) (time.Time, bool, error) {
	info, err := fs.Stat(fsys, name)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, errors.NewInternal(err)
	}
	return info.ModTime(), true, nil
}

// diff returns content paths absent from stored, and stored paths absent
// from content. Both results are sorted.
func diff(entries []corpus.Entry, stored []string) (added, removed []string) {
	inStore := make(map[string]bool, len(stored))
	for _, p := range stored {
		inStore[p] = true
	}
	onDisk := make(map[string]bool, len(entries))
	for _, e := range entries {
		onDisk[e.Path] = true
		if !inStore[e.Path] {
			added = append(added, e.Path)
		}
	}
	for _, p := range stored {
		if !onDisk[p] {
			removed = append(removed, p)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}
