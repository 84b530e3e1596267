// Package watch re-runs the suite when the executable under test or the
// fixture data changes.
package watch

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits for changes to settle.
const DefaultDebounce = 100 * time.Millisecond

// Watcher monitors the executable and the data directory for changes.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	Events    chan string // carries the last changed path of each settled burst
	done      chan struct{}
	closeOnce sync.Once

	exe      string
	dataDir  string
	debounce time.Duration
}

// New watches exe, by way of its directory, and every directory below
// dataDir. Changes to other files next to exe are ignored.
func New(exe, dataDir string) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fsWatcher: fsWatcher,
		Events:    make(chan string, 1),
		done:      make(chan struct{}),
		exe:       filepath.Clean(exe),
		dataDir:   filepath.Clean(dataDir),
		debounce:  DefaultDebounce,
	}

	if err := fsWatcher.Add(filepath.Dir(w.exe)); err != nil {
		fsWatcher.Close()
		return nil, err
	}
	// fsnotify is not recursive, so every fixture subdirectory is added.
	err = filepath.WalkDir(w.dataDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.dataDir && ignoreName(d.Name()) {
			return filepath.SkipDir
		}
		return fsWatcher.Add(path)
	})
	if err != nil {
		fsWatcher.Close()
		return nil, err
	}

	go w.loop()

	return w, nil
}

// Close stops the watcher and releases resources.
func (w *Watcher) Close() {
	w.closeOnce.Do(func() {
		close(w.done)
		w.fsWatcher.Close()
	})
}

// Loop calls run once, then again after each settled change, until ctx
// is done. Runs never overlap; changes seen during a run collapse into a
// single follow-up run.
func (w *Watcher) Loop(ctx context.Context, run func(ctx context.Context, changed string)) {
	run(ctx, "")
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case changed := <-w.Events:
			run(ctx, changed)
		}
	}
}

func (w *Watcher) loop() {
	var (
		timer   *time.Timer
		fire    <-chan time.Time
		pending string
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			// CHMOD-only events are noisy and never change content.
			if event.Op == fsnotify.Chmod || !w.relevant(event.Name) {
				continue
			}

			if event.Has(fsnotify.Create) {
				info, err := os.Stat(event.Name)
				if err == nil && info.IsDir() {
					_ = w.fsWatcher.Add(event.Name)
				}
			}

			pending = event.Name
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			select {
			case w.Events <- pending:
			default:
				// A notification is already queued; the next run sees this change too.
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.Printf("watcher error: %v", err)
		}
	}
}

// relevant reports whether a change to path should trigger a run.
func (w *Watcher) relevant(path string) bool {
	path = filepath.Clean(path)
	if path == w.exe {
		return true
	}
	if ignoreName(filepath.Base(path)) {
		return false
	}
	rel, err := filepath.Rel(w.dataDir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// ignoreName matches editor swap files, backups and hidden entries.
func ignoreName(name string) bool {
	return strings.HasPrefix(name, ".") ||
		strings.HasSuffix(name, "~") ||
		strings.HasSuffix(name, ".swp") ||
		strings.HasSuffix(name, ".swx")
}
