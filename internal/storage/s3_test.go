package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/arag/internal/errors"
)

// fakeS3 serves path-style PUT and GET for a single bucket.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = body
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		body, ok := f.objects[r.URL.Path]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?>`+
				`<Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		_, _ = w.Write(body)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestClient(t *testing.T) (*S3Client, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: map[string][]byte{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c, err := NewS3Client(context.Background(), S3ClientConfig{
		Endpoint:        srv.URL,
		Region:          "us-east-1",
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		Bucket:          "corpora",
		Prefix:          "team/",
		UsePathStyle:    true,
	})
	require.NoError(t, err)
	return c, fake
}

func TestObjectKey(t *testing.T) {
	tests := []struct {
		prefix, name, want string
	}{
		{"", "docs.arag", "docs.arag"},
		{"team", "docs.arag", "team/docs.arag"},
		{"/team/", "docs.arag", "team/docs.arag"},
		{"a/b", "docs.arag", "a/b/docs.arag"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ObjectKey(tt.prefix, tt.name))
	}
}

func TestNewS3Client_RequiresBucket(t *testing.T) {
	_, err := NewS3Client(context.Background(), S3ClientConfig{Region: "us-east-1"})
	assert.True(t, errors.Is(err, errors.ErrUnsupportedConfiguration))
}

func TestUploadDownload(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()
	dir := t.TempDir()

	src := filepath.Join(dir, "docs.arag")
	require.NoError(t, os.WriteFile(src, []byte("PK archive bytes"), 0644))

	key := c.Key("docs.arag")
	assert.Equal(t, "team/docs.arag", key)

	n, err := c.Upload(ctx, key, src)
	require.NoError(t, err)
	assert.Equal(t, int64(16), n)
	require.Contains(t, fake.objects, "/corpora/team/docs.arag")
	assert.Contains(t, string(fake.objects["/corpora/team/docs.arag"]), "PK archive bytes")

	// Store the raw bytes so the download check does not depend on upload encoding.
	fake.objects["/corpora/team/docs.arag"] = []byte("PK archive bytes")

	dest := filepath.Join(dir, "fetched", "docs.arag")
	n, err = c.Download(ctx, key, dest)
	require.NoError(t, err)
	assert.Equal(t, int64(16), n)
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "PK archive bytes", string(got))

	_, err = c.Download(ctx, key, dest)
	assert.True(t, errors.Is(err, errors.ErrDestinationExists))
}

func TestDownload_NoSuchKey(t *testing.T) {
	c, _ := newTestClient(t)
	dest := filepath.Join(t.TempDir(), "missing.arag")

	_, err := c.Download(context.Background(), c.Key("missing.arag"), dest)
	assert.True(t, errors.Is(err, errors.ErrNotFound), "got %v", err)

	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr), "no partial file is left behind")
}

func TestUpload_MissingSource(t *testing.T) {
	c, _ := newTestClient(t)
	_, err := c.Upload(context.Background(), "k", filepath.Join(t.TempDir(), "nope.arag"))
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}
