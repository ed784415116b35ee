package scanner

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce batches bursts of filesystem events into one rescan; tag
// editors and copies touch files many times in quick succession.
const watchDebounce = 2 * time.Second

type Watcher struct {
	mu      sync.Mutex
	service *Service
	watcher *fsnotify.Watcher
	stop    chan struct{}
	done    chan struct{}
}

// StartWatching watches all library roots recursively and triggers a full
// rescan after changes settle.
func (s *Service) StartWatching() (*Watcher, error) {
	if len(s.roots) == 0 {
		return nil, errors.New("no library folders configured")
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	for _, root := range s.roots {
		if err := addRecursive(fsWatcher, root); err != nil {
			fsWatcher.Close()
			return nil, err
		}
	}

	watcher := &Watcher{
		service: s,
		watcher: fsWatcher,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go watcher.run()

	return watcher, nil
}

func addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if !entry.IsDir() {
			return nil
		}
		return watcher.Add(path)
	})
}

func (w *Watcher) run() {
	defer close(w.done)

	var debounce *time.Timer
	var debounceC <-chan time.Time

	for {
		select {
		case <-w.stop:
			if debounce != nil {
				debounce.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			// New directories need their own watch before files land in them.
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = addRecursive(w.watcher, event.Name)
				}
			}

			if debounce == nil {
				debounce = time.NewTimer(watchDebounce)
				debounceC = debounce.C
			} else {
				if !debounce.Stop() {
					select {
					case <-debounce.C:
					default:
					}
				}
				debounce.Reset(watchDebounce)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.service.logger.Warn("filesystem watch error", "err", err)

		case <-debounceC:
			debounce = nil
			debounceC = nil
			if err := w.service.TriggerFullScan(); err != nil {
				w.service.logger.Debug("rescan not triggered", "err", err)
			}
		}
	}
}

func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	select {
	case <-w.stop:
	default:
		close(w.stop)
	}

	err := w.watcher.Close()
	<-w.done
	return err
}
