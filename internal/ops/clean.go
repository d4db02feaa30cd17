package ops

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/hpungsan/arag/internal/corpus"
	"github.com/hpungsan/arag/internal/db"
	"github.com/hpungsan/arag/internal/errors"
	"github.com/hpungsan/arag/internal/logger"
)

// CleanInput contains parameters for the Clean operation.
type CleanInput struct {
	Root        string // required, unpacked corpus directory
	KeepSkipped bool   // keep files build recorded without chunks (not UTF-8, unsupported, empty)
	DryRun      bool   // report without deleting
}

// CleanOutput contains the result of the Clean operation.
type CleanOutput struct {
	Removed    []string `json:"removed"`
	Kept       int      `json:"kept"`
	PrunedDirs int      `json:"pruned_dirs"`
	DryRun     bool     `json:"dry_run"`
}

// Clean deletes every content file that has no chunks in the store. The
// store is the source of truth for what belongs in the corpus.
func Clean(ctx context.Context, input CleanInput) (*CleanOutput, error) {
	layout, err := corpusDir(input.Root)
	if err != nil {
		return nil, err
	}
	if !layout.HasStore() {
		return nil, errors.NewMissingPrerequisite("corpus has no chunk store; run build first: " + layout.Root)
	}

	known, recorded, err := storedPaths(ctx, layout, input.KeepSkipped)
	if err != nil {
		return nil, err
	}

	entries, err := corpus.WalkContent(os.DirFS(layout.Root))
	if err != nil {
		return nil, err
	}

	out := &CleanOutput{Removed: []string{}, DryRun: input.DryRun}
	var forget []string
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, errors.NewCancelled("clean")
		}
		if known[e.Path] {
			out.Kept++
			continue
		}
		out.Removed = append(out.Removed, e.Path)
		if recorded[e.Path] {
			forget = append(forget, e.Path)
		}
		if input.DryRun {
			continue
		}
		if err := os.Remove(filepath.Join(layout.ContentPath(), filepath.FromSlash(e.Path))); err != nil && !os.IsNotExist(err) {
			return nil, errors.NewInternal(err)
		}
		logger.Debug("removed %s", e.Path)
	}

	if input.DryRun {
		return out, nil
	}

	// Skipped and empty files are forgotten only after they are gone from
	// disk, so the store's source list matches the content tree again.
	if len(forget) > 0 {
		if err := forgetSources(ctx, layout, forget); err != nil {
			return nil, err
		}
	}

	out.PrunedDirs, err = pruneEmptyDirs(layout.ContentPath())
	if err != nil {
		return nil, err
	}
	if _, err := corpus.WriteContentList(os.DirFS(layout.Root), layout.Root); err != nil {
		return nil, err
	}

	logger.Info("cleaned %s: removed %d files, kept %d", layout.Root, len(out.Removed), out.Kept)
	return out, nil
}

// storedPaths returns the paths that have chunks (known) and the paths build
// recorded without chunks (recorded). With keepSkipped, recorded paths are
// known too.
func storedPaths(ctx context.Context, layout corpus.Layout, keepSkipped bool) (known, recorded map[string]bool, err error) {
	h, err := openHandle(layout.Root)
	if err != nil {
		return nil, nil, err
	}
	defer h.Close()

	store, err := h.openStore()
	if err != nil {
		return nil, nil, err
	}
	chunked, err := db.DistinctPaths(ctx, store)
	if err != nil {
		return nil, nil, err
	}
	sources, err := db.SourcePaths(ctx, store)
	if err != nil {
		return nil, nil, err
	}

	known = make(map[string]bool, len(sources))
	for _, p := range chunked {
		known[p] = true
	}
	recorded = make(map[string]bool)
	for _, p := range sources {
		if known[p] {
			continue
		}
		recorded[p] = true
	}
	if keepSkipped {
		for p := range recorded {
			known[p] = true
		}
	}
	return known, recorded, nil
}

func forgetSources(ctx context.Context, layout corpus.Layout, paths []string) error {
	store, err := db.Open(layout.StorePath())
	if err != nil {
		return err
	}
	defer store.Close()

	tx, err := store.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback()
	for _, p := range paths {
		if err := db.DeleteSource(ctx, tx, p); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// pruneEmptyDirs removes empty directories below dir, deepest first.
// dir itself is kept.
func pruneEmptyDirs(dir string) (int, error) {
	var dirs []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir && os.IsNotExist(err) {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() && p != dir {
			dirs = append(dirs, p)
		}
		return nil
	})
	if err != nil {
		return 0, errors.NewInternal(err)
	}

	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })
	pruned := 0
	for _, d := range dirs {
		children, err := os.ReadDir(d)
		if err != nil {
			return pruned, errors.NewInternal(err)
		}
		if len(children) > 0 {
			continue
		}
		if err := os.Remove(d); err != nil {
			return pruned, errors.NewInternal(err)
		}
		pruned++
	}
	return pruned, nil
}
