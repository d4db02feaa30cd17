package freshness

import (
	"context"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/arag/internal/errors"
)

func lister(paths ...string) PathLister {
	return func(context.Context) ([]string, error) { return paths, nil }
}

func TestClassify(t *testing.T) {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	at := func(minutes int) time.Time { return base.Add(time.Duration(minutes) * time.Minute) }

	tests := []struct {
		name       string
		fsys       fstest.MapFS
		stored     []string
		wantState  State
		wantCorpus State
		wantAdded  []string
		wantGone   []string
	}{
		{
			name: "no store",
			fsys: fstest.MapFS{
				"content/a.txt": {ModTime: at(0)},
			},
			wantState:  Missing,
			wantCorpus: Missing,
		},
		{
			name: "fresh",
			fsys: fstest.MapFS{
				"content/a.txt": {ModTime: at(0)},
				"corpus.db":     {ModTime: at(1)},
				"index.json":    {ModTime: at(2)},
			},
			stored:     []string{"a.txt"},
			wantState:  Fresh,
			wantCorpus: Fresh,
		},
		{
			name: "equal timestamps are fresh",
			fsys: fstest.MapFS{
				"content/a.txt": {ModTime: at(1)},
				"corpus.db":     {ModTime: at(1)},
				"index.json":    {ModTime: at(1)},
			},
			stored:     []string{"a.txt"},
			wantState:  Fresh,
			wantCorpus: Fresh,
		},
		{
			name: "content modified after build",
			fsys: fstest.MapFS{
				"content/a.txt": {ModTime: at(5)},
				"corpus.db":     {ModTime: at(1)},
				"index.json":    {ModTime: at(2)},
			},
			stored:     []string{"a.txt"},
			wantState:  StaleCorpus,
			wantCorpus: StaleCorpus,
		},
		{
			name: "file added",
			fsys: fstest.MapFS{
				"content/a.txt": {ModTime: at(0)},
				"content/b.txt": {ModTime: at(0)},
				"corpus.db":     {ModTime: at(1)},
				"index.json":    {ModTime: at(2)},
			},
			stored:     []string{"a.txt"},
			wantState:  StaleCorpus,
			wantCorpus: StaleCorpus,
			wantAdded:  []string{"b.txt"},
		},
		{
			name: "file removed",
			fsys: fstest.MapFS{
				"content/a.txt": {ModTime: at(0)},
				"corpus.db":     {ModTime: at(1)},
				"index.json":    {ModTime: at(2)},
			},
			stored:     []string{"a.txt", "gone.txt"},
			wantState:  StaleCorpus,
			wantCorpus: StaleCorpus,
			wantGone:   []string{"gone.txt"},
		},
		{
			name: "store newer than index",
			fsys: fstest.MapFS{
				"content/a.txt": {ModTime: at(0)},
				"corpus.db":     {ModTime: at(3)},
				"index.json":    {ModTime: at(2)},
			},
			stored:     []string{"a.txt"},
			wantState:  StaleIndex,
			wantCorpus: Fresh,
		},
		{
			name: "not indexed",
			fsys: fstest.MapFS{
				"content/a.txt": {ModTime: at(0)},
				"corpus.db":     {ModTime: at(1)},
			},
			stored:     []string{"a.txt"},
			wantState:  Missing,
			wantCorpus: Fresh,
		},
		{
			name: "empty content and empty store",
			fsys: fstest.MapFS{
				"corpus.db":  {ModTime: at(1)},
				"index.json": {ModTime: at(2)},
			},
			wantState:  Fresh,
			wantCorpus: Fresh,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Classify(context.Background(), tt.fsys, lister(tt.stored...))
			require.NoError(t, err)
			assert.Equal(t, tt.wantState, r.State, r.Reason)
			assert.Equal(t, tt.wantCorpus, r.Corpus)
			assert.Equal(t, tt.wantAdded, r.Added)
			assert.Equal(t, tt.wantGone, r.Removed)
			assert.NotEmpty(t, r.Reason)
		})
	}
}

func TestClassify_ListerNotCalledWithoutStore(t *testing.T) {
	called := false
	_, err := Classify(context.Background(), fstest.MapFS{}, func(context.Context) ([]string, error) {
		called = true
		return nil, nil
	})
	require.NoError(t, err)
	assert.False(t, called)
}

func TestClassify_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Classify(ctx, fstest.MapFS{"corpus.db": {}}, lister())
	assert.True(t, errors.Is(err, errors.ErrCancelled))
}
