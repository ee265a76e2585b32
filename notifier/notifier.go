package notifier

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-hclog"
	"github.com/magdyamr542/livereload/events"
)

// A notifier takes a set of files to watch and emits events when one of them is touched.
// Events are hints: receivers still have to check whether the file really changed.
// The notifier keeps watching until the ctx is done or the closer is called.
type Notifier interface {
	Notify(ctx context.Context, paths []string, events chan<- events.Event) (Closer, error)
}

type Closer func() error

const watchedOps = fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename | fsnotify.Chmod

type notifier struct {
	logger hclog.Logger
}

func New(logger hclog.Logger) Notifier {
	return &notifier{logger: logger}
}

func (n *notifier) Notify(ctx context.Context,
	paths []string,
	eventCh chan<- events.Event) (Closer, error) {

	// Create new watcher.
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Files are replaced on save by many editors, so the parent directories are
	// watched rather than the files themselves.
	watched := make(map[string]struct{}, len(paths))
	dirs := make(map[string]struct{})
	for _, p := range paths {
		p = filepath.Clean(p)
		watched[p] = struct{}{}
		dirs[filepath.Dir(p)] = struct{}{}
	}

	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			// The directory may be created later; polling still covers it.
			n.logger.Debug("Can't watch directory", "directory", dir, "error", err)
		}
	}

	stop := make(chan struct{})
	var once sync.Once

	// Start listening for events.
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&watchedOps == 0 {
					continue
				}
				if _, ok := watched[filepath.Clean(event.Name)]; !ok {
					continue
				}
				n.logger.Trace("File event", "file", event.Name, "op", event.Op.String())
				select {
				case eventCh <- events.Event{File: event.Name, Timestamp: time.Now()}:
				case <-stop:
					return
				case <-ctx.Done():
					return
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				n.logger.Warn("Files watcher error", "error", err)
			case <-ctx.Done():
				n.logger.Trace("Stopping the files watcher")
				return
			}
		}
	}()

	return func() error {
		once.Do(func() { close(stop) })
		if err := watcher.Close(); err != nil {
			return fmt.Errorf("close files watcher: %w", err)
		}
		return nil
	}, nil
}
