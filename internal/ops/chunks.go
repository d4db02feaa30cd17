package ops

import (
	"context"

	"github.com/hpungsan/arag/internal/chunk"
	"github.com/hpungsan/arag/internal/db"
	"github.com/hpungsan/arag/internal/errors"
)

// ChunksInput contains parameters for the Chunks operation.
type ChunksInput struct {
	Path     string // required, corpus directory or .arag archive
	FilePath string // required, content-relative path
}

// ChunksOutput contains the result of the Chunks operation.
type ChunksOutput struct {
	Path     string        `json:"path"`
	Packaged bool          `json:"packaged"`
	FilePath string        `json:"file_path"`
	Chunks   []chunk.Chunk `json:"chunks"`
}

// Chunks returns the stored chunks of one content file in order.
// A file with no chunks is NOT_FOUND.
func Chunks(ctx context.Context, input ChunksInput) (*ChunksOutput, error) {
	if input.FilePath == "" {
		return nil, errors.NewInvalidRequest("file path is required")
	}

	h, err := openHandle(input.Path)
	if err != nil {
		return nil, err
	}
	defer h.Close()

	store, err := h.openStore()
	if err != nil {
		return nil, err
	}
	chunks, err := db.ChunksForPath(ctx, store, input.FilePath)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, errors.NewNotFound(input.FilePath)
	}

	return &ChunksOutput{
		Path:     h.Path,
		Packaged: h.Packaged,
		FilePath: input.FilePath,
		Chunks:   chunks,
	}, nil
}
