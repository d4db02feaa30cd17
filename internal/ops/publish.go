package ops

import (
	"context"
	"os"
	"path/filepath"

	"github.com/hpungsan/arag/internal/archive"
	"github.com/hpungsan/arag/internal/corpus"
	"github.com/hpungsan/arag/internal/errors"
	"github.com/hpungsan/arag/internal/logger"
	"github.com/hpungsan/arag/internal/storage"
)

// ObjectStore is the subset of storage.S3Client used by Publish and Fetch.
type ObjectStore interface {
	Key(name string) string
	Upload(ctx context.Context, key, src string) (int64, error)
	Download(ctx context.Context, key, dest string) (int64, error)
}

var _ ObjectStore = (*storage.S3Client)(nil)

// PublishInput contains parameters for the Publish operation.
type PublishInput struct {
	Archive string // required, packaged corpus
	Key     string // default: prefix + archive file name
}

// PublishOutput contains the result of the Publish operation.
type PublishOutput struct {
	Key   string `json:"key"`
	Bytes int64  `json:"bytes"`
}

// Publish uploads a packaged corpus. Only archives that open cleanly and
// carry a chunk store are uploaded.
func Publish(ctx context.Context, store ObjectStore, input PublishInput) (*PublishOutput, error) {
	if input.Archive == "" {
		return nil, errors.NewInvalidRequest("archive path is required")
	}
	if !corpus.IsPackaged(input.Archive) {
		return nil, errors.NewInvalidRequest("publish takes a packaged corpus; run pack first: " + input.Archive)
	}

	member, err := archive.OpenStore(input.Archive)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, errors.NewMissingPrerequisite("archive has no chunk store: " + input.Archive)
		}
		return nil, err
	}
	member.Close()

	key := input.Key
	if key == "" {
		key = store.Key(filepath.Base(input.Archive))
	}
	n, err := store.Upload(ctx, key, input.Archive)
	if err != nil {
		return nil, err
	}
	logger.Info("published %s to %s (%d bytes)", input.Archive, key, n)
	return &PublishOutput{Key: key, Bytes: n}, nil
}

// FetchInput contains parameters for the Fetch operation.
type FetchInput struct {
	Name string // required, archive file name or full key
	Dest string // default: Name's base in the current directory
	Raw  bool   // treat Name as a full key without the configured prefix
}

// FetchOutput contains the result of the Fetch operation.
type FetchOutput struct {
	Key   string `json:"key"`
	Path  string `json:"path"`
	Bytes int64  `json:"bytes"`
}

// Fetch downloads a packaged corpus. The download is verified to be a
// readable archive; a corrupt download is removed.
func Fetch(ctx context.Context, store ObjectStore, input FetchInput) (*FetchOutput, error) {
	if input.Name == "" {
		return nil, errors.NewInvalidRequest("archive name is required")
	}
	key := input.Name
	if !input.Raw {
		key = store.Key(input.Name)
	}
	dest := input.Dest
	if dest == "" {
		dest = filepath.Base(filepath.FromSlash(input.Name))
	}

	n, err := store.Download(ctx, key, dest)
	if err != nil {
		return nil, err
	}

	a, err := archive.Open(dest)
	if err != nil {
		os.Remove(dest)
		return nil, err
	}
	a.Close()

	logger.Info("fetched %s to %s (%d bytes)", key, dest, n)
	return &FetchOutput{Key: key, Path: dest, Bytes: n}, nil
}
