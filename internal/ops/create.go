package ops

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hpungsan/arag/internal/corpus"
	"github.com/hpungsan/arag/internal/errors"
	"github.com/hpungsan/arag/internal/logger"
)

// CreateInput contains parameters for the Create operation.
type CreateInput struct {
	Parent string // default: current directory
	Name   string // required; the directory is <Name>-arag
}

// CreateOutput contains the result of the Create operation.
type CreateOutput struct {
	Root string `json:"root"`
}

// Create makes an empty corpus directory with a content/ folder and an
// empty content_list.
func Create(input CreateInput) (*CreateOutput, error) {
	name, err := ValidateCorpusName(input.Name)
	if err != nil {
		return nil, err
	}
	parent := input.Parent
	if parent == "" {
		parent = "."
	}

	root := filepath.Join(parent, name+"-arag")
	if _, err := os.Lstat(root); err == nil {
		return nil, errors.NewDestinationExists(root)
	}

	layout := corpus.New(root)
	if err := os.MkdirAll(layout.ContentPath(), 0755); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create corpus: %w", err))
	}
	if err := corpus.WriteFileAtomic(layout.ListPath(), nil, 0644); err != nil {
		return nil, err
	}

	logger.Info("created corpus %s", root)
	return &CreateOutput{Root: root}, nil
}

// AddInput contains parameters for the AddContent operation.
type AddInput struct {
	Root   string // required, unpacked corpus directory
	Source string // required, file or directory to copy
}

// AddOutput contains the result of the AddContent operation.
type AddOutput struct {
	Added []string `json:"added"`
}

// AddContent copies a file into content/, or a directory into
// content/<basename>/. Existing targets are not overwritten.
// The chunk store becomes stale until the next build.
func AddContent(input AddInput) (*AddOutput, error) {
	layout, err := corpusDir(input.Root)
	if err != nil {
		return nil, err
	}
	if input.Source == "" {
		return nil, errors.NewInvalidRequest("source path is required")
	}
	if err := checkNotSymlink(input.Source); err != nil {
		return nil, err
	}
	info, err := os.Stat(input.Source)
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	target := filepath.Join(layout.ContentPath(), filepath.Base(filepath.Clean(input.Source)))
	if _, err := os.Lstat(target); err == nil {
		return nil, errors.NewDestinationExists(target)
	}

	out := &AddOutput{Added: []string{}}
	record := func(dst string) error {
		rel, err := filepath.Rel(layout.ContentPath(), dst)
		if err != nil {
			return err
		}
		out.Added = append(out.Added, filepath.ToSlash(rel))
		return nil
	}

	if !info.IsDir() {
		if err := copyFile(input.Source, target, info.Mode().Perm()); err != nil {
			return nil, errors.NewInternal(err)
		}
		if err := record(target); err != nil {
			return nil, errors.NewInternal(err)
		}
	} else {
		err = filepath.WalkDir(input.Source, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(input.Source, p)
			if err != nil {
				return err
			}
			dst := filepath.Join(target, rel)
			switch {
			case d.IsDir():
				return os.MkdirAll(dst, 0755)
			case d.Type().IsRegular():
				fi, err := d.Info()
				if err != nil {
					return err
				}
				if err := copyFile(p, dst, fi.Mode().Perm()); err != nil {
					return err
				}
				return record(dst)
			default:
				logger.Debug("skipping non-regular file %s", p)
				return nil
			}
		})
		if err != nil {
			return nil, errors.NewInternal(fmt.Errorf("copy %s: %w", input.Source, err))
		}
	}

	if _, err := corpus.WriteContentList(os.DirFS(layout.Root), layout.Root); err != nil {
		return nil, err
	}
	logger.Info("added %d files to %s", len(out.Added), layout.Root)
	return out, nil
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_EXCL, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
