package planparser

import (
	"context"
	"log/slog"
	"os"

	"github.com/fsnotify/fsnotify"
)

// FSWatcher is the default FileWatcher, backed by fsnotify, matching the
// config hot-reload watcher's debounce-and-reread idiom used elsewhere in
// the ambient stack.
type FSWatcher struct {
	logger *slog.Logger
}

func NewFSWatcher(logger *slog.Logger) *FSWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &FSWatcher{logger: logger}
}

// Watch emits the file's current contents once immediately (if it
// exists) and again after each Write/Create event, closing the channel
// when ctx is done or the underlying watcher fails unrecoverably.
func (f *FSWatcher) Watch(ctx context.Context, path string) (<-chan string, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(path); err != nil {
		// The plan file may not exist yet; watch its parent directory and
		// filter to this path once it's created.
		dir := dirOf(path)
		if addErr := watcher.Add(dir); addErr != nil {
			_ = watcher.Close()
			return nil, err
		}
	}

	out := make(chan string, 1)
	go func() {
		defer close(out)
		defer watcher.Close()

		if data, readErr := os.ReadFile(path); readErr == nil {
			select {
			case out <- string(data):
			case <-ctx.Done():
				return
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != path {
					continue
				}
				if !(event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create) {
					continue
				}
				data, readErr := os.ReadFile(path)
				if readErr != nil {
					f.logger.Warn("plan file watcher: read failed", "path", path, "error", readErr)
					continue
				}
				select {
				case out <- string(data):
				case <-ctx.Done():
					return
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				f.logger.Warn("plan file watcher error", "path", path, "error", err)
			}
		}
	}()

	return out, nil
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}
