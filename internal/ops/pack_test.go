package ops

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/arag/internal/corpus"
	"github.com/hpungsan/arag/internal/errors"
	"github.com/hpungsan/arag/internal/freshness"
)

func TestPack_ExistingDestLeavesCorpusUntouched(t *testing.T) {
	ctx := context.Background()
	root := newCorpus(t, map[string]string{"a.txt": "alpha beta"})
	buildAndIndex(t, hashConfig(), root)

	listPath := filepath.Join(root, corpus.ListFile)
	before, err := os.ReadFile(listPath)
	require.NoError(t, err)

	writeContent(t, root, "b.txt", "gamma delta")
	dest := filepath.Join(t.TempDir(), "taken.arag")
	require.NoError(t, os.WriteFile(dest, []byte("occupied"), 0644))

	_, err = Pack(ctx, PackInput{Root: root, Dest: dest})
	assertCode(t, err, errors.ErrDestinationExists)

	after, err := os.ReadFile(listPath)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "occupied", string(data))
}

func TestPack_KeepsLeftoverLookingContent(t *testing.T) {
	ctx := context.Background()
	root := newCorpus(t, map[string]string{
		"a.txt":      "alpha beta",
		"notes.tmp":  "scratch notes kept as content",
		"db-journal": "a journal entry kept as content",
	})
	buildAndIndex(t, hashConfig(), root)

	packed, err := Pack(ctx, PackInput{Root: root})
	require.NoError(t, err)
	assert.Equal(t, freshness.Fresh, packed.State)

	st, err := Status(ctx, StatusInput{Path: packed.Path})
	require.NoError(t, err)
	assert.Equal(t, freshness.Fresh, st.State)
	assert.Empty(t, st.Removed)
	assert.Equal(t, 3, st.ContentFiles)

	list, err := List(ListInput{Path: packed.Path})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "db-journal", "notes.tmp"}, list.Files)
}
