package credstore

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the store when the backing file changes on disk, so edits
// made by other tools (or another running instance) are picked up without a
// restart. The watcher stops when ctx is cancelled. onReload may be nil.
func (s *Store) Watch(ctx context.Context, onReload func(error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	// Watch the directory: editors and the atomic rename in saveLocked both
	// replace the file, which would drop a watch on the path itself.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != s.path {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
					err := s.Load()
					if onReload != nil {
						onReload(err)
					}
				}
			case <-watcher.Errors:
				// Periodic polling by the caller still refreshes state.
			}
		}
	}()

	return nil
}
