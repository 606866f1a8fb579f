package store

import (
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads list records when their files change on disk, so a
// long-running status view tracks mutations made by another process sharing
// the same data directory.
type Watcher struct {
	store   *Store
	files   *FileStore
	fw      *fsnotify.Watcher
	events  chan string
	done    chan struct{}
	stopped chan struct{}
}

// Watch starts watching the file store's directory. Each reloaded list id is
// sent on Events; slow consumers drop events rather than block the watcher.
func (s *Store) Watch(files *FileStore) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(files.Dir()); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		store:   s,
		files:   files,
		fw:      fw,
		events:  make(chan string, 16),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Events delivers the id of each list reloaded from disk.
func (w *Watcher) Events() <-chan string {
	return w.events
}

func (w *Watcher) loop() {
	defer close(w.stopped)
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.reload(event.Name)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.store.logf("watcher: %v", err)
		}
	}
}

func (w *Watcher) reload(path string) {
	name := filepath.Base(path)
	if !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
		return
	}
	listID := strings.TrimSuffix(name, ".json")

	rec, err := w.files.Load(listID)
	if err != nil {
		// Rename races leave a brief window where the file is gone.
		w.store.logf("watcher reload %s: %v", listID, err)
		return
	}
	w.store.install(listID, rec)

	select {
	case w.events <- listID:
	default:
	}
}

// Close stops the watcher and waits for its loop to exit.
func (w *Watcher) Close() error {
	close(w.done)
	err := w.fw.Close()
	<-w.stopped
	return err
}
