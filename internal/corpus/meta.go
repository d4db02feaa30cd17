package corpus

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/hpungsan/arag/internal/errors"
)

// Meta is the content of index.json: which provider produced the stored
// embeddings and their shape.
type Meta struct {
	Method          string `json:"method"`
	Model           string `json:"model"`
	VectorSize      int    `json:"vector_size"`
	TotalEmbeddings int    `json:"total_embeddings"`
	Version         string `json:"version"`
	Endpoint        string `json:"endpoint,omitempty"`
}

// SameProvider reports whether m and other describe the same embedding source.
func (m *Meta) SameProvider(other *Meta) bool {
	if m == nil || other == nil {
		return false
	}
	return m.Method == other.Method && m.Model == other.Model && m.Endpoint == other.Endpoint
}

// ReadMeta reads index.json from fsys. A missing file is reported as
// MISSING_PREREQUISITE so callers can tell "not indexed" from corruption.
func ReadMeta(fsys fs.FS) (*Meta, error) {
	data, err := fs.ReadFile(fsys, MetaFile)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.NewMissingPrerequisite("corpus is not indexed (no index.json); run index first")
		}
		return nil, errors.NewInternal(err)
	}

	var m Meta
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid %s: %v", MetaFile, err))
	}
	return &m, nil
}

// WriteMeta atomically replaces index.json under root.
func WriteMeta(root string, m *Meta) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.NewInternal(err)
	}
	return WriteFileAtomic(New(root).MetaPath(), append(data, '\n'), 0644)
}

// RemoveMeta deletes index.json under root. A missing file is not an error.
func RemoveMeta(root string) error {
	if err := os.Remove(New(root).MetaPath()); err != nil && !os.IsNotExist(err) {
		return errors.NewInternal(err)
	}
	return nil
}
