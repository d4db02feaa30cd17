package ops

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/hpungsan/arag/internal/chunk"
	"github.com/hpungsan/arag/internal/config"
	"github.com/hpungsan/arag/internal/corpus"
	"github.com/hpungsan/arag/internal/db"
	"github.com/hpungsan/arag/internal/errors"
	"github.com/hpungsan/arag/internal/extract"
	"github.com/hpungsan/arag/internal/logger"
)

// BuildInput contains parameters for the Build operation.
type BuildInput struct {
	Root      string // required, unpacked corpus directory
	ChunkSize int    // default: cfg.ChunkSize
	Overwrite bool   // replace an existing chunk store
	Confirm   bool   // required with Overwrite when the store has embeddings
}

// BuildOutput contains the result of the Build operation.
type BuildOutput struct {
	Root         string    `json:"root"`
	Files        int       `json:"files"`
	Chunks       int       `json:"chunks"`
	ChunkSize    int       `json:"chunk_size"`
	Skipped      []Warning `json:"skipped"`
	RemovedIndex bool      `json:"removed_index"`
}

// Build splits every content file into chunks and writes a new chunk store.
// All chunks are inserted in one transaction into a temp store that replaces
// corpus.db only on success, so a failed build leaves the old store intact.
func Build(ctx context.Context, cfg *config.Config, input BuildInput) (*BuildOutput, error) {
	layout, err := corpusDir(input.Root)
	if err != nil {
		return nil, err
	}

	chunkSize := input.ChunkSize
	if chunkSize == 0 {
		chunkSize = cfg.ChunkSize
	}
	if chunkSize < 1 {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("chunk size must be at least 1, got %d", chunkSize))
	}

	if err := ctx.Err(); err != nil {
		return nil, errors.NewCancelled("build")
	}

	if layout.HasStore() {
		if !input.Overwrite {
			return nil, errors.NewAlreadyExists(layout.StorePath())
		}
		if err := confirmRebuild(ctx, layout, input.Confirm); err != nil {
			return nil, err
		}
	}

	entries, err := corpus.WalkContent(os.DirFS(layout.Root))
	if err != nil {
		return nil, err
	}

	tmpPath, err := corpus.TempPath(layout.StorePath())
	if err != nil {
		return nil, err
	}
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
			os.Remove(tmpPath + "-journal")
		}
	}()

	out := &BuildOutput{Root: layout.Root, ChunkSize: chunkSize, Skipped: []Warning{}}
	if err := writeStore(ctx, cfg, layout, tmpPath, entries, chunkSize, out); err != nil {
		return nil, err
	}

	// Drop the index before swapping stores: a crash in between leaves a store
	// without metadata, never metadata describing the wrong store.
	if _, err := os.Stat(layout.MetaPath()); err == nil {
		if err := corpus.RemoveMeta(layout.Root); err != nil {
			return nil, err
		}
		out.RemovedIndex = true
	}
	if err := os.Rename(tmpPath, layout.StorePath()); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to replace chunk store: %w", err))
	}
	success = true

	if _, err := corpus.WriteContentList(os.DirFS(layout.Root), layout.Root); err != nil {
		return nil, err
	}

	logger.Info("built %s: %d files, %d chunks, %d skipped", layout.StorePath(), out.Files, out.Chunks, len(out.Skipped))
	return out, nil
}

// confirmRebuild refuses to discard embeddings without confirmation.
func confirmRebuild(ctx context.Context, layout corpus.Layout, confirm bool) error {
	if confirm {
		return nil
	}
	store, err := db.Open(layout.StorePath())
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := db.CountEmbedded(ctx, store)
	if err != nil {
		return err
	}
	if n > 0 {
		return errors.NewConfirmationRequired(
			fmt.Sprintf("rebuilding discards %d embeddings; pass confirm to proceed", n),
			map[string]any{"embedded": n, "path": layout.StorePath()},
		)
	}
	return nil
}

func writeStore(ctx context.Context, cfg *config.Config, layout corpus.Layout, path string,
	entries []corpus.Entry, chunkSize int, out *BuildOutput) error {
	store, err := db.Create(path)
	if err != nil {
		return err
	}
	defer store.Close()

	tx, err := store.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback()

	reg := newRegistry(cfg)
	fsys := os.DirFS(layout.Root)
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return errors.NewCancelled("build")
		}

		pieces, warn, err := chunkFile(fsys, reg, e.Path, chunkSize)
		if err != nil {
			return err
		}
		if warn != nil {
			logger.Warn("%s", warn.Message)
			out.Skipped = append(out.Skipped, warningFrom(e.Path, warn))
			if err := db.InsertSource(ctx, tx, e.Path, 0, string(warn.Code)); err != nil {
				return err
			}
			continue
		}

		for i, p := range pieces {
			if _, err := db.InsertChunk(ctx, tx, e.Path, i, p); err != nil {
				return err
			}
		}
		if err := db.InsertSource(ctx, tx, e.Path, len(pieces), ""); err != nil {
			return err
		}
		out.Files++
		out.Chunks += len(pieces)
		logger.Debug("chunked %s into %d pieces", e.Path, len(pieces))
	}

	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// chunkFile reads and splits one content file. A non-nil warning means the
// file is skipped; err is reserved for failures that abort the build.
func chunkFile(fsys fs.FS, reg *extract.Registry, rel string, chunkSize int) ([]string, *errors.AragError, error) {
	data, err := fs.ReadFile(fsys, corpus.ContentMember(rel))
	if err != nil {
		return nil, nil, errors.NewInternal(fmt.Errorf("read %s: %w", rel, err))
	}

	var text string
	if ex, ok := reg.Lookup(rel); ok {
		text, err = ex.Extract(filepath.FromSlash(rel), data)
		if err != nil {
			return nil, errors.NewUnsupportedFormat(rel, err), nil
		}
	} else {
		if !utf8.Valid(data) {
			return nil, errors.NewNotUTF8(rel), nil
		}
		text = string(data)
	}

	pieces, err := chunk.Split(text, chunkSize)
	if err != nil {
		if aErr, ok := errors.As(err); ok && aErr.Code == errors.ErrRuneTooLarge {
			warn := *aErr
			warn.Message = fmt.Sprintf("skipping %s: %s", rel, aErr.Message)
			return nil, &warn, nil
		}
		return nil, nil, err
	}
	return pieces, nil, nil
}
