package ops

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/hpungsan/arag/internal/chunk"
	"github.com/hpungsan/arag/internal/config"
	"github.com/hpungsan/arag/internal/corpus"
	"github.com/hpungsan/arag/internal/db"
	"github.com/hpungsan/arag/internal/embed"
	"github.com/hpungsan/arag/internal/errors"
	"github.com/hpungsan/arag/internal/logger"
)

// IndexInput contains parameters for the AttachEmbeddings operation.
type IndexInput struct {
	Root  string // required, unpacked corpus directory
	Force bool   // clear and recompute every embedding
}

// IndexOutput contains the result of the AttachEmbeddings operation.
type IndexOutput struct {
	Meta      *corpus.Meta `json:"meta"`
	Embedded  int          `json:"embedded"`
	UpToDate  bool         `json:"up_to_date"`
	CacheHits int          `json:"cache_hits,omitempty"`
}

// AttachEmbeddings embeds every chunk without a vector and records the
// provider in index.json. Vectors are committed every cfg.IndexBatchSize
// chunks; a provider failure rolls back only the current batch.
func AttachEmbeddings(ctx context.Context, cfg *config.Config, provider embed.Provider, input IndexInput) (*IndexOutput, error) {
	layout, err := corpusDir(input.Root)
	if err != nil {
		return nil, err
	}
	if !layout.HasStore() {
		return nil, errors.NewMissingPrerequisite("corpus has no chunk store; run build first: " + layout.Root)
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.NewCancelled("index")
	}

	store, err := db.Open(layout.StorePath())
	if err != nil {
		return nil, err
	}
	defer store.Close()

	if err := db.EnsureEmbeddingColumn(ctx, store); err != nil {
		return nil, err
	}

	existing, err := corpus.ReadMeta(os.DirFS(layout.Root))
	if err != nil && !errors.Is(err, errors.ErrMissingPrerequisite) {
		return nil, err
	}
	want := &corpus.Meta{Method: provider.Method(), Model: provider.Model(), Endpoint: provider.Endpoint()}

	embedded, err := db.CountEmbedded(ctx, store)
	if err != nil {
		return nil, err
	}
	if !input.Force && embedded > 0 && existing != nil && !existing.SameProvider(want) {
		return nil, errors.NewConfirmationRequired(
			fmt.Sprintf("corpus is indexed with %s/%s; pass force to re-embed with %s/%s",
				existing.Method, existing.Model, want.Method, want.Model),
			map[string]any{"indexed_method": existing.Method, "indexed_model": existing.Model},
		)
	}

	if input.Force {
		if err := db.ClearEmbeddings(ctx, store); err != nil {
			return nil, err
		}
		// The old index.json no longer describes any stored vector. Dropping
		// it lets an aborted forced run be resumed without force.
		if err := corpus.RemoveMeta(layout.Root); err != nil {
			return nil, err
		}
		existing = nil
	}

	pending, err := db.PendingChunks(ctx, store)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 && !input.Force && existing != nil && existing.SameProvider(want) {
		return &IndexOutput{Meta: existing, UpToDate: true}, nil
	}

	dim, haveDim, err := db.EmbeddingDimension(ctx, store)
	if err != nil {
		return nil, err
	}

	batchSize := cfg.IndexBatchSize
	if batchSize < 1 {
		batchSize = config.DefaultIndexBatchSize
	}

	committed := 0
	for start := 0; start < len(pending); start += batchSize {
		end := min(start+batchSize, len(pending))
		n, err := embedBatch(ctx, store, provider, pending[start:end], &dim, &haveDim)
		if err != nil {
			if errors.Is(err, errors.ErrCancelled) {
				return nil, err
			}
			logger.Warn("indexing aborted after %d committed embeddings: %v", committed, err)
			return nil, errors.NewIndexingAborted(pending[start+n].ID, committed, err)
		}
		committed += n
		logger.Debug("committed %d/%d embeddings", committed, len(pending))
	}

	total, err := db.CountEmbedded(ctx, store)
	if err != nil {
		return nil, err
	}
	meta := &corpus.Meta{
		Method:          want.Method,
		Model:           want.Model,
		VectorSize:      dim,
		TotalEmbeddings: total,
		Version:         cfg.FormatVersion,
		Endpoint:        want.Endpoint,
	}
	// The store is closed before index.json is written so its mtime is final.
	if err := store.Close(); err != nil {
		return nil, errors.NewInternal(err)
	}
	if err := corpus.WriteMeta(layout.Root, meta); err != nil {
		return nil, err
	}

	out := &IndexOutput{Meta: meta, Embedded: committed}
	if c, ok := provider.(*embed.Cached); ok {
		out.CacheHits = c.Hits()
	}
	logger.Info("indexed %s: %d new embeddings, %d total, dimension %d", layout.Root, committed, total, dim)
	return out, nil
}

// embedBatch embeds chunks in one transaction. On failure it returns the
// index within chunks of the chunk that failed; nothing from the batch is kept.
func embedBatch(ctx context.Context, store *sql.DB, provider embed.Provider, chunks []chunk.Chunk,
	dim *int, haveDim *bool) (int, error) {
	tx, err := store.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	defer tx.Rollback()

	batchDim, batchHave := *dim, *haveDim
	for i, c := range chunks {
		if err := ctx.Err(); err != nil {
			return i, errors.NewCancelled("index")
		}

		vec, err := provider.Embed(ctx, c.Content)
		if err != nil {
			return i, err
		}
		if len(vec) == 0 {
			return i, errors.NewProviderError(fmt.Errorf("empty embedding for chunk %d", c.ID))
		}
		if batchHave && len(vec) != batchDim {
			return i, errors.NewInvalidRequest(
				fmt.Sprintf("embedding dimension %d does not match stored dimension %d", len(vec), batchDim))
		}
		batchDim, batchHave = len(vec), true

		if err := db.SetEmbedding(ctx, tx, c.ID, vec); err != nil {
			return i, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.NewInternal(err)
	}
	*dim, *haveDim = batchDim, batchHave
	return len(chunks), nil
}
