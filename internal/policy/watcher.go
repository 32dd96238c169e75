package policy

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watcher reloads the policy store when the policy file changes on disk.
type Watcher struct {
	watcher *fsnotify.Watcher
	path    string
	store   *Store
	done    chan struct{}
}

func NewWatcher(store *Store) (*Watcher, error) {
	if store.path == "" {
		return nil, fmt.Errorf("no policy file to watch")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	// Watch the directory, not the file: editors replace files on save.
	if err := watcher.Add(filepath.Dir(store.path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch directory: %w", err)
	}

	w := &Watcher{
		watcher: watcher,
		path:    store.path,
		store:   store,
		done:    make(chan struct{}),
	}

	go w.watch()

	return w, nil
}

func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}

func (w *Watcher) watch() {
	debounce := time.NewTimer(0)
	<-debounce.C // Drain initial timer

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if w.shouldHandle(event) {
				// Debounce rapid changes
				debounce.Reset(500 * time.Millisecond)
				go w.waitAndReload(debounce)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("policy watcher error")

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) shouldHandle(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return false
	}
	return filepath.Clean(event.Name) == filepath.Clean(w.path)
}

func (w *Watcher) waitAndReload(timer *time.Timer) {
	<-timer.C
	if err := w.store.Reload(); err != nil {
		log.Error().Err(err).Str("path", w.path).Msg("policy reload failed, previous policy kept")
	}
}
