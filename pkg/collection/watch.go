package collection

import (
	"fmt"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches a collection's refuse-pattern file and scan root for
// external changes, so a server holding a scanfile cache (spec §7
// "servers may maintain a scanfile cache") knows when to invalidate it
// instead of trusting a stale directory listing indefinitely.
type Watcher struct {
	fsw      *fsnotify.Watcher
	onChange func(path string)
	done     chan struct{}
}

// NewWatcher starts a Watcher that calls onChange with the changed
// path whenever a write, create, remove, or rename is observed on a
// watched path.
func NewWatcher(onChange func(path string)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("collection: new watcher: %w", err)
	}
	w := &Watcher{fsw: fsw, onChange: onChange, done: make(chan struct{})}
	go w.run()
	return w, nil
}

// Watch adds path (a file or directory) to the set of watched paths.
func (w *Watcher) Watch(path string) error {
	if err := w.fsw.Add(path); err != nil {
		return fmt.Errorf("collection: watch %q: %w", path, err)
	}
	return nil
}

func (w *Watcher) run() {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if w.onChange != nil {
				w.onChange(ev.Name)
			}
		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
		}
	}
}

// Close stops the watcher and releases its inotify/kqueue descriptor.
func (w *Watcher) Close() error {
	err := w.fsw.Close()
	<-w.done
	return err
}
