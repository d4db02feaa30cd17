package ops

import (
	"context"

	"github.com/hpungsan/arag/internal/corpus"
	"github.com/hpungsan/arag/internal/db"
	"github.com/hpungsan/arag/internal/errors"
	"github.com/hpungsan/arag/internal/freshness"
)

// StatusInput contains parameters for the Status operation.
type StatusInput struct {
	Path string // required, corpus directory or .arag archive
}

// StatusOutput contains the result of the Status operation.
type StatusOutput struct {
	Path     string `json:"path"`
	Packaged bool   `json:"packaged"`
	*freshness.Report

	Chunks   int                `json:"chunks"`
	Embedded int                `json:"embedded"`
	Skipped  []db.SkippedSource `json:"skipped,omitempty"`
	Meta     *corpus.Meta       `json:"meta,omitempty"`
}

// Status reports whether the chunk store and index are up to date with the
// content tree. Packaged corpora are inspected without extraction.
func Status(ctx context.Context, input StatusInput) (*StatusOutput, error) {
	h, err := openHandle(input.Path)
	if err != nil {
		return nil, err
	}
	defer h.Close()

	var store *db.ReadOnly
	report, err := freshness.Classify(ctx, h.FS, func(ctx context.Context) ([]string, error) {
		s, err := h.openStore()
		if err != nil {
			return nil, err
		}
		store = s
		return db.SourcePaths(ctx, s)
	})
	if err != nil {
		return nil, err
	}

	out := &StatusOutput{Path: h.Path, Packaged: h.Packaged, Report: report}
	if store != nil {
		if out.Chunks, err = db.CountChunks(ctx, store); err != nil {
			return nil, err
		}
		if out.Embedded, err = db.CountEmbedded(ctx, store); err != nil {
			return nil, err
		}
		if out.Skipped, err = db.SkippedSources(ctx, store); err != nil {
			return nil, err
		}
	}

	meta, err := corpus.ReadMeta(h.FS)
	switch {
	case err == nil:
		out.Meta = meta
	case !errors.Is(err, errors.ErrMissingPrerequisite):
		return nil, err
	}
	return out, nil
}
