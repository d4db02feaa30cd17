package ops

import (
	"context"
	"strings"

	"github.com/hpungsan/arag/internal/config"
	"github.com/hpungsan/arag/internal/corpus"
	"github.com/hpungsan/arag/internal/db"
	"github.com/hpungsan/arag/internal/embed"
	"github.com/hpungsan/arag/internal/errors"
	"github.com/hpungsan/arag/internal/logger"
	"github.com/hpungsan/arag/internal/retrieval"
)

// QueryInput contains parameters for the Query operation.
// Exactly one of Text and Vector must be set.
type QueryInput struct {
	Path   string    // required, corpus directory or .arag archive
	Text   string    // embedded with the provider recorded in index.json
	Vector []float32 // used as-is
	TopK   int       // default: cfg.DefaultTopK
}

// QueryResult is one retrieved chunk.
type QueryResult struct {
	ID       int64   `json:"id"`
	FilePath string  `json:"file_path"`
	Order    int     `json:"order"`
	Score    float32 `json:"score"`
	Content  string  `json:"content"`
}

// QueryOutput contains the result of the Query operation.
type QueryOutput struct {
	Path     string        `json:"path"`
	Packaged bool          `json:"packaged"`
	Method   string        `json:"method"`
	Model    string        `json:"model"`
	Results  []QueryResult `json:"results"`
}

// Query returns the chunks whose embeddings score highest against the query.
// A packaged corpus is queried in place through its stored chunk store member.
func Query(ctx context.Context, cfg *config.Config, input QueryInput) (*QueryOutput, error) {
	hasText := strings.TrimSpace(input.Text) != ""
	if hasText == (len(input.Vector) > 0) {
		return nil, errors.NewInvalidRequest("specify exactly one of query text or vector")
	}
	k := input.TopK
	if k == 0 {
		k = cfg.DefaultTopK
	}
	if k < 1 {
		return nil, errors.NewInvalidRequest("top_k must be at least 1")
	}

	h, err := openHandle(input.Path)
	if err != nil {
		return nil, err
	}
	defer h.Close()

	meta, err := corpus.ReadMeta(h.FS)
	if err != nil {
		return nil, err
	}
	store, err := h.openStore()
	if err != nil {
		return nil, err
	}

	vecs, err := db.LoadEmbeddings(ctx, store)
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, errors.NewEmptyIndex()
	}

	q := input.Vector
	if hasText {
		provider, err := embed.New(embed.OptionsFromMeta(meta, cfg))
		if err != nil {
			return nil, err
		}
		if q, err = provider.Embed(ctx, input.Text); err != nil {
			return nil, err
		}
	}

	scored, err := retrieval.TopK(vecs, q, k)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(scored))
	for i, s := range scored {
		ids[i] = s.ID
	}
	chunks, err := db.GetChunksByIDs(ctx, store, ids)
	if err != nil {
		return nil, err
	}

	scores := make(map[int64]float32, len(scored))
	for _, s := range scored {
		scores[s.ID] = s.Score
	}
	results := make([]QueryResult, 0, len(chunks))
	for _, c := range chunks {
		results = append(results, QueryResult{
			ID:       c.ID,
			FilePath: c.FilePath,
			Order:    c.Order,
			Score:    scores[c.ID],
			Content:  c.Content,
		})
	}

	logger.Debug("query over %d vectors returned %d results", len(vecs), len(results))
	return &QueryOutput{
		Path:     h.Path,
		Packaged: h.Packaged,
		Method:   meta.Method,
		Model:    meta.Model,
		Results:  results,
	}, nil
}
