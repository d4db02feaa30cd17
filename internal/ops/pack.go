package ops

import (
	"context"
	"os"

	"github.com/hpungsan/arag/internal/archive"
	"github.com/hpungsan/arag/internal/corpus"
	"github.com/hpungsan/arag/internal/errors"
	"github.com/hpungsan/arag/internal/freshness"
	"github.com/hpungsan/arag/internal/logger"
)

// PackInput contains parameters for the Pack operation.
type PackInput struct {
	Root string // required, unpacked corpus directory
	Dest string // default: <name>.arag next to Root
}

// PackOutput contains the result of the Pack operation.
type PackOutput struct {
	*archive.PackOutput
	State freshness.State `json:"state"`
}

// Pack writes Root into a single archive. Content is compressed; the chunk
// store and metadata are stored so the archive can be queried in place.
// A stale corpus is packed as-is; State reports what it was.
func Pack(ctx context.Context, input PackInput) (*PackOutput, error) {
	layout, err := corpusDir(input.Root)
	if err != nil {
		return nil, err
	}
	dest := input.Dest
	if dest == "" {
		dest = corpus.ArchiveName(layout.Root)
	}
	if _, err := os.Lstat(dest); err == nil {
		return nil, errors.NewDestinationExists(dest)
	}

	status, err := Status(ctx, StatusInput{Path: layout.Root})
	if err != nil {
		return nil, err
	}
	if status.State != freshness.Fresh {
		logger.Warn("packing %s while %s: %s", layout.Root, status.State, status.Reason)
	}

	if _, err := corpus.WriteContentList(os.DirFS(layout.Root), layout.Root); err != nil {
		return nil, err
	}

	out, err := archive.Pack(layout.Root, dest)
	if err != nil {
		return nil, err
	}
	logger.Info("packed %s into %s (%d members)", layout.Root, out.Path, len(out.Members))
	return &PackOutput{PackOutput: out, State: status.State}, nil
}

// UnpackInput contains parameters for the Unpack operation.
type UnpackInput struct {
	Archive string // required
	Dest    string // default: <name>-arag next to Archive
}

// UnpackOutput contains the result of the Unpack operation.
type UnpackOutput struct {
	Root    string           `json:"root"`
	Members []archive.Member `json:"members"`
}

// Unpack extracts an archive into a new directory.
func Unpack(input UnpackInput) (*UnpackOutput, error) {
	if input.Archive == "" {
		return nil, errors.NewInvalidRequest("archive path is required")
	}
	dest := input.Dest
	if dest == "" {
		dest = corpus.DirName(input.Archive)
	}

	members, err := archive.Unpack(input.Archive, dest)
	if err != nil {
		return nil, err
	}
	logger.Info("unpacked %s into %s", input.Archive, dest)
	return &UnpackOutput{Root: dest, Members: members}, nil
}
