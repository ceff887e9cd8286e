package shader

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/Carmen-Shannon/oxy-rt/engine/logger"
)

// Watcher reports writes to shader artifacts in a directory.
type Watcher struct {
	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// Watch starts watching dir and calls onChange with the base name of every artifact that
// is written, created or renamed into place. onChange runs on the watcher goroutine.
//
// Parameters:
//   - dir: the shader directory
//   - onChange: called once per change event
//
// Returns:
//   - *Watcher: the running watcher, stopped with Close
//   - error: if the directory cannot be watched
func Watch(dir string, onChange func(artifact string)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create shader watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", dir, err)
	}
	w := &Watcher{watcher: fw, done: make(chan struct{})}
	w.wg.Add(1)
	go w.run(onChange)
	return w, nil
}

func (w *Watcher) run(onChange func(string)) {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			onChange(filepath.Base(event.Name))
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Logger().Warn("shader watcher error", "error", err)
		}
	}
}

// Close stops the watcher and waits for its goroutine.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.watcher.Close()
		w.wg.Wait()
	})
	return err
}
