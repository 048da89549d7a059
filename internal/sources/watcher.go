package sources

import (
	"context"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads sources.yaml into a Manager whenever the file changes.
// The parent directory is watched, not the file itself, so editors that
// replace the file via rename keep working.
type Watcher struct {
	path    string
	manager *Manager
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewWatcher creates a watcher for the given sources.yaml path.
func NewWatcher(path string, manager *Manager) *Watcher {
	return &Watcher{
		path:    path,
		manager: manager,
		done:    make(chan struct{}),
	}
}

// Start begins watching. Call Stop to clean up.
func (w *Watcher) Start() error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		_ = fw.Close()
		return err
	}
	w.watcher = fw

	go w.loop()
	log.Printf("sources: watching %s for changes", w.path)
	return nil
}

// Stop shuts down the watcher.
func (w *Watcher) Stop() {
	if w.watcher != nil {
		_ = w.watcher.Close()
	}
	<-w.done
}

func (w *Watcher) loop() {
	defer close(w.done)

	// Editors fire bursts of events per save; debounce before reloading.
	var pending <-chan time.Time
	for {
		select {
		case evt, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) != filepath.Clean(w.path) {
				continue
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				pending = time.After(200 * time.Millisecond)
			}
		case <-pending:
			pending = nil
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("sources: watcher error: %v", err)
		}
	}
}

func (w *Watcher) reload() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := w.manager.LoadFromFile(ctx, w.path); err != nil {
		// A bad edit keeps the previous configuration active.
		log.Printf("sources: reload failed, keeping previous config: %v", err)
		return
	}
	log.Printf("sources: reloaded %s", w.path)
}
