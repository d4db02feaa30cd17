package ops

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/arag/internal/errors"
)

// memStore is an in-memory ObjectStore.
type memStore struct {
	prefix  string
	objects map[string][]byte
}

func newMemStore(prefix string) *memStore {
	return &memStore{prefix: prefix, objects: map[string][]byte{}}
}

func (m *memStore) Key(name string) string { return m.prefix + name }

func (m *memStore) Upload(_ context.Context, key, src string) (int64, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return 0, errors.NewNotFound(src)
	}
	m.objects[key] = data
	return int64(len(data)), nil
}

func (m *memStore) Download(_ context.Context, key, dest string) (int64, error) {
	data, ok := m.objects[key]
	if !ok {
		return 0, errors.NewNotFound(key)
	}
	if _, err := os.Lstat(dest); err == nil {
		return 0, errors.NewDestinationExists(dest)
	}
	if err := os.WriteFile(dest, data, 0644); err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

func packedCorpus(t *testing.T) string {
	t.Helper()
	root := newCorpus(t, map[string]string{"a.txt": "alpha beta"})
	cfg := hashConfig()
	buildAndIndex(t, cfg, root)
	out, err := Pack(context.Background(), PackInput{Root: root})
	require.NoError(t, err)
	return out.Path
}

func TestPublishAndFetch(t *testing.T) {
	ctx := context.Background()
	store := newMemStore("corpora/")
	archivePath := packedCorpus(t)

	pub, err := Publish(ctx, store, PublishInput{Archive: archivePath})
	require.NoError(t, err)
	assert.Equal(t, "corpora/test.arag", pub.Key)
	assert.Positive(t, pub.Bytes)

	dest := filepath.Join(t.TempDir(), "copy.arag")
	got, err := Fetch(ctx, store, FetchInput{Name: "test.arag", Dest: dest})
	require.NoError(t, err)
	assert.Equal(t, pub.Key, got.Key)
	assert.Equal(t, pub.Bytes, got.Bytes)

	res, err := Query(ctx, hashConfig(), QueryInput{Path: dest, Text: "alpha beta"})
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "a.txt", res.Results[0].FilePath)

	_, err = Fetch(ctx, store, FetchInput{Name: "test.arag", Dest: dest})
	assertCode(t, err, errors.ErrDestinationExists)

	raw := filepath.Join(t.TempDir(), "raw.arag")
	_, err = Fetch(ctx, store, FetchInput{Name: "corpora/test.arag", Dest: raw, Raw: true})
	require.NoError(t, err)
}

func TestPublish_Rejects(t *testing.T) {
	ctx := context.Background()
	store := newMemStore("")

	_, err := Publish(ctx, store, PublishInput{})
	assertCode(t, err, errors.ErrInvalidRequest)

	root := newCorpus(t, map[string]string{"a.txt": "alpha"})
	_, err = Publish(ctx, store, PublishInput{Archive: root})
	assertCode(t, err, errors.ErrInvalidRequest)

	// Packed before build: no chunk store member.
	out, err := Pack(ctx, PackInput{Root: root})
	require.NoError(t, err)
	_, err = Publish(ctx, store, PublishInput{Archive: out.Path})
	assertCode(t, err, errors.ErrMissingPrerequisite)
	assert.Empty(t, store.objects)
}

func TestFetch_CorruptDownloadRemoved(t *testing.T) {
	ctx := context.Background()
	store := newMemStore("")
	store.objects["bad.arag"] = []byte("not a zip archive")

	dest := filepath.Join(t.TempDir(), "bad.arag")
	_, err := Fetch(ctx, store, FetchInput{Name: "bad.arag", Dest: dest})
	require.Error(t, err)
	assert.NoFileExists(t, dest)

	_, err = Fetch(ctx, store, FetchInput{Name: "missing.arag", Dest: dest})
	assertCode(t, err, errors.ErrNotFound)
}
