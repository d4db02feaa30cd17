package ops

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hpungsan/arag/internal/config"
	"github.com/hpungsan/arag/internal/embed"
	"github.com/hpungsan/arag/internal/errors"
	"github.com/hpungsan/arag/internal/logger"
)

// DefaultWatchDebounce is how long content must be quiet before a rebuild.
const DefaultWatchDebounce = 500 * time.Millisecond

// WatchInput contains parameters for the Watch operation.
type WatchInput struct {
	Root     string        // required, unpacked corpus directory
	Debounce time.Duration // default: DefaultWatchDebounce
	Index    bool          // re-embed after each rebuild
}

// WatchEvent reports one rebuild.
type WatchEvent struct {
	Changed []string     `json:"changed"`
	Build   *BuildOutput `json:"build,omitempty"`
	Index   *IndexOutput `json:"index,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// Watch rebuilds the chunk store whenever files under content/ change, and
// re-indexes when input.Index is set. Rebuilds discard embeddings without
// asking. It returns nil when ctx is cancelled.
func Watch(ctx context.Context, cfg *config.Config, provider embed.Provider, input WatchInput, onEvent func(WatchEvent)) error {
	layout, err := corpusDir(input.Root)
	if err != nil {
		return err
	}
	if input.Index && provider == nil {
		return errors.NewInvalidRequest("an embedding provider is required to re-index")
	}
	debounce := input.Debounce
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.NewInternal(err)
	}
	defer watcher.Close()

	contentDir := layout.ContentPath()
	if err := os.MkdirAll(contentDir, 0755); err != nil {
		return errors.NewInternal(err)
	}
	if err := watchTree(watcher, contentDir); err != nil {
		return err
	}
	logger.Info("watching %s", contentDir)

	changed := map[string]bool{}
	timer := time.NewTimer(debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := watchTree(watcher, ev.Name); err != nil {
						logger.Warn("cannot watch %s: %v", ev.Name, err)
					}
				}
			}
			rel, ok := relevantChange(contentDir, ev)
			if !ok {
				continue
			}
			logger.Debug("content change: %s %s", ev.Op, rel)
			changed[rel] = true
			timer.Reset(debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error: %v", err)

		case <-timer.C:
			paths := make([]string, 0, len(changed))
			for p := range changed {
				paths = append(paths, p)
			}
			sort.Strings(paths)
			clear(changed)

			ev := rebuild(ctx, cfg, provider, layout.Root, input.Index)
			ev.Changed = paths
			if onEvent != nil {
				onEvent(ev)
			}
		}
	}
}

func rebuild(ctx context.Context, cfg *config.Config, provider embed.Provider, root string, index bool) WatchEvent {
	var ev WatchEvent
	build, err := Build(ctx, cfg, BuildInput{Root: root, Overwrite: true, Confirm: true})
	if err != nil {
		logger.Warn("rebuild failed: %v", err)
		ev.Error = err.Error()
		return ev
	}
	ev.Build = build

	if index {
		idx, err := AttachEmbeddings(ctx, cfg, provider, IndexInput{Root: root})
		if err != nil {
			logger.Warn("re-index failed: %v", err)
			ev.Error = err.Error()
			return ev
		}
		ev.Index = idx
	}
	return ev
}

// watchTree adds dir and every directory below it.
func watchTree(w *fsnotify.Watcher, dir string) error {
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(p)
		}
		return nil
	})
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// relevantChange maps an event to a content path. Chmod-only events,
// directory creation and hidden files are ignored. Names such as
// "notes.tmp" are ordinary content.
func relevantChange(contentDir string, ev fsnotify.Event) (string, bool) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return "", false
	}
	base := filepath.Base(ev.Name)
	if strings.HasPrefix(base, ".") {
		return "", false
	}
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			return "", false
		}
	}
	rel, err := filepath.Rel(contentDir, ev.Name)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}
