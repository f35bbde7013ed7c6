// Package watch reports audio files that appear in a directory.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/Xz3r0-M/ComfyUI-Xz3r0-Nodes/internal/audio"
)

// DefaultSettle is how long a file must go without writes before it is reported.
const DefaultSettle = 500 * time.Millisecond

// Watcher emits each new audio file in Dir once its writes have settled.
type Watcher struct {
	Dir    string
	Settle time.Duration
	Logger *zap.Logger

	// Ignore skips matching paths, e.g. the output directory's own files.
	Ignore func(path string) bool
}

// Run watches until ctx is cancelled, sending settled paths to out.
// It returns nil on cancellation.
func (w *Watcher) Run(ctx context.Context, out chan<- string) error {
	log := w.Logger
	if log == nil {
		log = zap.NewNop()
	}
	settle := w.Settle
	if settle <= 0 {
		settle = DefaultSettle
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.Dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.Dir, err)
	}
	log.Info("watching for audio files", zap.String("dir", w.Dir))

	pending := make(map[string]time.Time)
	seen := make(map[string]bool)
	tick := time.NewTicker(settle / 4)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			path := filepath.Clean(event.Name)
			if seen[path] || !audio.IsAudioFile(path) || (w.Ignore != nil && w.Ignore(path)) {
				continue
			}
			pending[path] = time.Now()

		case now := <-tick.C:
			for path, last := range pending {
				if now.Sub(last) < settle {
					continue
				}
				delete(pending, path)
				seen[path] = true
				log.Debug("audio file settled", zap.String("path", path))
				select {
				case out <- path:
				case <-ctx.Done():
					return nil
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("watcher error", zap.Error(err))
		}
	}
}
