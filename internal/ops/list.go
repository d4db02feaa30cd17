package ops

import (
	"github.com/hpungsan/arag/internal/corpus"
)

// ListInput contains parameters for the List operation.
type ListInput struct {
	Path string // required, corpus directory or .arag archive
}

// ListOutput contains the result of the List operation.
type ListOutput struct {
	Path     string   `json:"path"`
	Packaged bool     `json:"packaged"`
	Files    []string `json:"files"`
	Count    int      `json:"count"`
}

// List returns the corpus's content_list. Archives are read in place.
func List(input ListInput) (*ListOutput, error) {
	h, err := openHandle(input.Path)
	if err != nil {
		return nil, err
	}
	defer h.Close()

	files, err := corpus.ReadContentList(h.FS)
	if err != nil {
		return nil, err
	}

	// Ensure we return an empty array rather than nil
	if files == nil {
		files = []string{}
	}

	return &ListOutput{
		Path:     h.Path,
		Packaged: h.Packaged,
		Files:    files,
		Count:    len(files),
	}, nil
}
