package telemetry

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/arag/internal/errors"
)

func TestInit_EmptyDSNIsNoop(t *testing.T) {
	flush, err := Init(Config{})
	require.NoError(t, err)
	require.NotNil(t, flush)
	flush()

	// Must not panic without a client.
	CaptureError("build", errors.NewInternal(fmt.Errorf("boom")))
}

func TestShouldReport(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", fmt.Errorf("disk on fire"), true},
		{"internal", errors.NewInternal(fmt.Errorf("x")), true},
		{"indexing aborted", errors.NewIndexingAborted(3, 2, fmt.Errorf("x")), true},
		{"missing prerequisite", errors.NewMissingPrerequisite("run build"), false},
		{"destination exists", errors.NewDestinationExists("/tmp/x"), false},
		{"invalid request", errors.NewInvalidRequest("bad"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldReport(tt.err))
		})
	}
}
