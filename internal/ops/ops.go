package ops

import (
	"io"
	"io/fs"
	"os"

	"github.com/hpungsan/arag/internal/archive"
	"github.com/hpungsan/arag/internal/config"
	"github.com/hpungsan/arag/internal/corpus"
	"github.com/hpungsan/arag/internal/db"
	"github.com/hpungsan/arag/internal/errors"
	"github.com/hpungsan/arag/internal/extract"
	"github.com/hpungsan/arag/internal/vfs"
)

// Warning reports a content file that an operation skipped.
type Warning struct {
	Path    string           `json:"path"`
	Code    errors.ErrorCode `json:"code"`
	Message string           `json:"message"`
}

func warningFrom(path string, err *errors.AragError) Warning {
	return Warning{Path: path, Code: err.Code, Message: err.Message}
}

// newRegistry returns the extractors enabled by cfg.
func newRegistry(cfg *config.Config) *extract.Registry {
	reg := extract.NewRegistry()
	if cfg.StripMarkdown {
		md := extract.NewMarkdown()
		reg.Register(".md", md)
		reg.Register(".markdown", md)
	}
	return reg
}

// corpusDir validates root as an unpacked corpus that may be written to.
func corpusDir(root string) (corpus.Layout, error) {
	if root == "" {
		return corpus.Layout{}, errors.NewInvalidRequest("corpus path is required")
	}
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return corpus.Layout{}, errors.NewNotFound(root)
		}
		return corpus.Layout{}, errors.NewInternal(err)
	}
	if !info.IsDir() {
		return corpus.Layout{}, errors.NewWriteNotSupported(
			"packaged corpus is read-only; unpack it first: " + root)
	}
	return corpus.New(root), nil
}

// handle is a read-only view of a corpus, unpacked or packaged.
type handle struct {
	Path     string
	Packaged bool
	FS       fs.FS

	closers []io.Closer
}

func openHandle(path string) (*handle, error) {
	if path == "" {
		return nil, errors.NewInvalidRequest("corpus path is required")
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound(path)
		}
		return nil, errors.NewInternal(err)
	}

	if info.IsDir() {
		return &handle{Path: path, FS: os.DirFS(path)}, nil
	}
	a, err := archive.Open(path)
	if err != nil {
		return nil, err
	}
	return &handle{Path: path, Packaged: true, FS: a, closers: []io.Closer{a}}, nil
}

// openStore opens the chunk store read-only: in place inside an archive, or
// as a plain file. A missing store is MISSING_PREREQUISITE.
func (h *handle) openStore() (*db.ReadOnly, error) {
	var (
		rd  vfs.RandomAccessReader
		err error
	)
	if h.Packaged {
		rd, err = archive.OpenStore(h.Path)
	} else {
		rd, err = vfs.OpenFile(corpus.New(h.Path).StorePath())
	}
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, errors.NewMissingPrerequisite("corpus has no chunk store; run build first: " + h.Path)
		}
		return nil, err
	}

	store, err := db.OpenReader(rd)
	if err != nil {
		rd.Close()
		return nil, err
	}
	h.closers = append(h.closers, rd, store)
	return store, nil
}

// Close releases everything opened through h, most recent first.
func (h *handle) Close() error {
	var first error
	for i := len(h.closers) - 1; i >= 0; i-- {
		if err := h.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	h.closers = nil
	return first
}
