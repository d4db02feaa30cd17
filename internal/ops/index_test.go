package ops

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hpungsan/arag/internal/config"
	"github.com/hpungsan/arag/internal/corpus"
	"github.com/hpungsan/arag/internal/db"
	"github.com/hpungsan/arag/internal/embed"
	"github.com/hpungsan/arag/internal/errors"
)

func TestAttachEmbeddings_WritesMeta(t *testing.T) {
	root := newCorpus(t, map[string]string{"a.txt": "alpha", "b.txt": "beta"})
	cfg := hashConfig()
	cfg.FormatVersion = "9.9.9"
	ctx := context.Background()

	if _, err := Build(ctx, cfg, BuildInput{Root: root}); err != nil {
		t.Fatal(err)
	}
	out, err := AttachEmbeddings(ctx, cfg, hashProvider(t), IndexInput{Root: root})
	if err != nil {
		t.Fatalf("AttachEmbeddings failed: %v", err)
	}
	if out.Embedded != 2 || out.UpToDate {
		t.Errorf("Embedded = %d, UpToDate = %v", out.Embedded, out.UpToDate)
	}

	meta, err := corpus.ReadMeta(os.DirFS(root))
	if err != nil {
		t.Fatalf("ReadMeta failed: %v", err)
	}
	want := corpus.Meta{Method: embed.MethodHash, Model: "fnv-32", VectorSize: 32, TotalEmbeddings: 2, Version: "9.9.9"}
	if *meta != want {
		t.Errorf("meta = %+v, want %+v", *meta, want)
	}
}

func TestAttachEmbeddings_UpToDate(t *testing.T) {
	root := newCorpus(t, map[string]string{"a.txt": "alpha"})
	cfg := config.DefaultConfig()
	ctx := context.Background()

	if _, err := Build(ctx, cfg, BuildInput{Root: root}); err != nil {
		t.Fatal(err)
	}
	if _, err := AttachEmbeddings(ctx, cfg, &fakeProvider{}, IndexInput{Root: root}); err != nil {
		t.Fatal(err)
	}
	metaPath := filepath.Join(root, "index.json")
	before, err := os.Stat(metaPath)
	if err != nil {
		t.Fatal(err)
	}

	p := &fakeProvider{}
	out, err := AttachEmbeddings(ctx, cfg, p, IndexInput{Root: root})
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if !out.UpToDate || out.Embedded != 0 {
		t.Errorf("UpToDate = %v, Embedded = %d", out.UpToDate, out.Embedded)
	}
	if p.calls != 0 {
		t.Errorf("provider called %d times on an up-to-date corpus", p.calls)
	}
	after, err := os.Stat(metaPath)
	if err != nil {
		t.Fatal(err)
	}
	if !after.ModTime().Equal(before.ModTime()) {
		t.Error("index.json rewritten on an up-to-date corpus")
	}
}

func TestAttachEmbeddings_MissingStore(t *testing.T) {
	root := newCorpus(t, map[string]string{"a.txt": "alpha"})
	_, err := AttachEmbeddings(context.Background(), config.DefaultConfig(), &fakeProvider{}, IndexInput{Root: root})
	assertCode(t, err, errors.ErrMissingPrerequisite)
}

func TestAttachEmbeddings_AbortKeepsCommittedBatches(t *testing.T) {
	root := newCorpus(t, map[string]string{"a.txt": "abcdefghij"})
	cfg := config.DefaultConfig()
	cfg.IndexBatchSize = 2
	ctx := context.Background()

	if _, err := Build(ctx, cfg, BuildInput{Root: root, ChunkSize: 2}); err != nil {
		t.Fatal(err)
	}
	store, err := db.Open(filepath.Join(root, "corpus.db"))
	if err != nil {
		t.Fatal(err)
	}
	chunks, err := db.PendingChunks(ctx, store)
	store.Close()
	if err != nil || len(chunks) != 5 {
		t.Fatalf("PendingChunks = %d, %v", len(chunks), err)
	}

	// Batch one (calls 1-2) commits; call 4 fails inside batch two.
	_, err = AttachEmbeddings(ctx, cfg, &fakeProvider{failAt: 4}, IndexInput{Root: root})
	assertCode(t, err, errors.ErrIndexingAborted)
	aErr, _ := errors.As(err)
	if aErr.Details["committed"] != 2 {
		t.Errorf("committed = %v, want 2", aErr.Details["committed"])
	}
	if aErr.Details["chunk_id"] != chunks[3].ID {
		t.Errorf("chunk_id = %v, want %d", aErr.Details["chunk_id"], chunks[3].ID)
	}
	if !errors.Is(aErr.Err, errors.ErrProviderUnavailable) {
		t.Errorf("cause = %v, want PROVIDER_UNAVAILABLE", aErr.Err)
	}
	if _, err := os.Stat(filepath.Join(root, "index.json")); !os.IsNotExist(err) {
		t.Error("index.json written by an aborted run")
	}

	store, err = db.Open(filepath.Join(root, "corpus.db"))
	if err != nil {
		t.Fatal(err)
	}
	n, err := db.CountEmbedded(ctx, store)
	store.Close()
	if err != nil || n != 2 {
		t.Fatalf("CountEmbedded = %d, %v, want 2", n, err)
	}

	// A retry only embeds what is missing.
	p := &fakeProvider{}
	out, err := AttachEmbeddings(ctx, cfg, p, IndexInput{Root: root})
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if out.Embedded != 3 || p.calls != 3 {
		t.Errorf("Embedded = %d, calls = %d, want 3/3", out.Embedded, p.calls)
	}
	if out.Meta.TotalEmbeddings != 5 {
		t.Errorf("TotalEmbeddings = %d, want 5", out.Meta.TotalEmbeddings)
	}
}

func TestAttachEmbeddings_DimensionMismatch(t *testing.T) {
	root := newCorpus(t, map[string]string{"a.txt": "alpha", "b.txt": "beta"})
	cfg := config.DefaultConfig()
	ctx := context.Background()
	if _, err := Build(ctx, cfg, BuildInput{Root: root}); err != nil {
		t.Fatal(err)
	}

	p := &fakeProvider{vectorFor: func(call int, _ string) []float32 {
		return make([]float32, call+1)
	}}
	_, err := AttachEmbeddings(ctx, cfg, p, IndexInput{Root: root})
	assertCode(t, err, errors.ErrIndexingAborted)
	aErr, _ := errors.As(err)
	if !errors.Is(aErr.Err, errors.ErrInvalidRequest) {
		t.Errorf("cause = %v, want INVALID_REQUEST", aErr.Err)
	}
}

func TestAttachEmbeddings_ProviderChange(t *testing.T) {
	root := newCorpus(t, map[string]string{"a.txt": "alpha", "b.txt": "beta"})
	cfg := config.DefaultConfig()
	ctx := context.Background()
	if _, err := Build(ctx, cfg, BuildInput{Root: root}); err != nil {
		t.Fatal(err)
	}
	if _, err := AttachEmbeddings(ctx, cfg, &fakeProvider{model: "v1"}, IndexInput{Root: root}); err != nil {
		t.Fatal(err)
	}

	_, err := AttachEmbeddings(ctx, cfg, &fakeProvider{model: "v2"}, IndexInput{Root: root})
	assertCode(t, err, errors.ErrConfirmationRequired)

	p := &fakeProvider{model: "v2"}
	out, err := AttachEmbeddings(ctx, cfg, p, IndexInput{Root: root, Force: true})
	if err != nil {
		t.Fatalf("forced run failed: %v", err)
	}
	if out.Embedded != 2 || p.calls != 2 {
		t.Errorf("Embedded = %d, calls = %d, want 2/2", out.Embedded, p.calls)
	}
	if out.Meta.Model != "v2" {
		t.Errorf("Model = %q, want v2", out.Meta.Model)
	}
}

func TestAttachEmbeddings_ForcedRunResumes(t *testing.T) {
	root := newCorpus(t, map[string]string{"a.txt": "abcdefghij"})
	cfg := config.DefaultConfig()
	cfg.IndexBatchSize = 2
	ctx := context.Background()
	if _, err := Build(ctx, cfg, BuildInput{Root: root, ChunkSize: 2}); err != nil {
		t.Fatal(err)
	}
	if _, err := AttachEmbeddings(ctx, cfg, &fakeProvider{model: "v1"}, IndexInput{Root: root}); err != nil {
		t.Fatal(err)
	}

	// Re-embed with v2; batch one commits, call 3 fails.
	_, err := AttachEmbeddings(ctx, cfg, &fakeProvider{model: "v2", failAt: 3}, IndexInput{Root: root, Force: true})
	assertCode(t, err, errors.ErrIndexingAborted)
	if _, err := os.Stat(filepath.Join(root, "index.json")); !os.IsNotExist(err) {
		t.Error("index.json from v1 kept after its vectors were cleared")
	}

	// Resuming with the same provider needs no force and keeps the committed batch.
	p := &fakeProvider{model: "v2"}
	out, err := AttachEmbeddings(ctx, cfg, p, IndexInput{Root: root})
	if err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	if out.Embedded != 3 || p.calls != 3 {
		t.Errorf("Embedded = %d, calls = %d, want 3/3", out.Embedded, p.calls)
	}
	if out.Meta.Model != "v2" || out.Meta.TotalEmbeddings != 5 {
		t.Errorf("Meta = %+v, want v2 with 5 embeddings", out.Meta)
	}
}

func TestAttachEmbeddings_CacheHits(t *testing.T) {
	root := newCorpus(t, map[string]string{"a.txt": "same text", "b.txt": "same text"})
	cfg := hashConfig()
	ctx := context.Background()
	if _, err := Build(ctx, cfg, BuildInput{Root: root}); err != nil {
		t.Fatal(err)
	}

	out, err := AttachEmbeddings(ctx, cfg, embed.NewCached(hashProvider(t)), IndexInput{Root: root})
	if err != nil {
		t.Fatalf("AttachEmbeddings failed: %v", err)
	}
	if out.Embedded != 2 || out.CacheHits != 1 {
		t.Errorf("Embedded = %d, CacheHits = %d, want 2/1", out.Embedded, out.CacheHits)
	}
}

func TestAttachEmbeddings_Cancelled(t *testing.T) {
	root := newCorpus(t, map[string]string{"a.txt": "alpha"})
	cfg := config.DefaultConfig()
	if _, err := Build(context.Background(), cfg, BuildInput{Root: root}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := AttachEmbeddings(ctx, cfg, &fakeProvider{}, IndexInput{Root: root})
	assertCode(t, err, errors.ErrCancelled)
}
