package ops

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/arag/internal/errors"
)

func TestChunks(t *testing.T) {
	ctx := context.Background()
	cfg := hashConfig()
	cfg.ChunkSize = 8
	root := newCorpus(t, map[string]string{"a.txt": "alpha beta gamma", "b.txt": "delta"})
	_, err := Build(ctx, cfg, BuildInput{Root: root})
	require.NoError(t, err)

	out, err := Chunks(ctx, ChunksInput{Path: root, FilePath: "a.txt"})
	require.NoError(t, err)
	require.Len(t, out.Chunks, 2)
	assert.Equal(t, "alpha be", out.Chunks[0].Content)
	assert.Equal(t, "ta gamma", out.Chunks[1].Content)
	assert.Equal(t, 1, out.Chunks[1].Order)

	packed, err := Pack(ctx, PackInput{Root: root})
	require.NoError(t, err)
	arc, err := Chunks(ctx, ChunksInput{Path: packed.Path, FilePath: "a.txt"})
	require.NoError(t, err)
	assert.True(t, arc.Packaged)
	assert.Equal(t, out.Chunks, arc.Chunks)

	_, err = Chunks(ctx, ChunksInput{Path: root, FilePath: "missing.txt"})
	assertCode(t, err, errors.ErrNotFound)

	_, err = Chunks(ctx, ChunksInput{Path: root})
	assertCode(t, err, errors.ErrInvalidRequest)
}
