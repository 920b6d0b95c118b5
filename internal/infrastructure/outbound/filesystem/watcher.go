package filesystem

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sophialabs/httpmocker/internal/infrastructure/ports"
)

var _ ports.Watcher = (*Watcher)(nil)

// DefaultDebounce groups bursts of events, such as an editor's save sequence.
const DefaultDebounce = 100 * time.Millisecond

// Watcher watches a scenario tree and reports changed files, relative to the
// root and slash-separated, once events settle.
type Watcher struct {
	rootDir  string
	debounce time.Duration
	logger   ports.Logger
	watcher  *fsnotify.Watcher
	onChange func(paths []string)

	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewWatcher creates a watcher for every directory under rootDir.
func NewWatcher(rootDir string, debounce time.Duration, logger ports.Logger, onChange func(paths []string)) (*Watcher, error) {
	absRoot, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		rootDir:  absRoot,
		debounce: debounce,
		logger:   logger,
		watcher:  fsWatcher,
		onChange: onChange,
		done:     make(chan struct{}),
	}

	if err := w.addRecursive(absRoot); err != nil {
		_ = fsWatcher.Close()
		return nil, err
	}
	return w, nil
}

// Start runs the event loop until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	select {
	case <-w.done:
		return errors.New("watcher already stopped")
	default:
	}
	w.wg.Add(1)
	go w.loop(ctx)
	return nil
}

// Stop terminates the watcher and waits for the loop to exit.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.watcher.Close()
	})
	w.wg.Wait()
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	var (
		timer   *time.Timer
		timerC  <-chan time.Time
		pending = make(map[string]struct{})
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.addRecursive(event.Name)
					continue
				}
			}
			rel, ok := w.relevant(event.Name)
			if !ok {
				continue
			}

			w.logger.Debug("scenario file change detected", "file", rel, "op", event.Op.String())
			pending[rel] = struct{}{}

			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			timerC = timer.C

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)

		case <-timerC:
			timerC = nil
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			sort.Strings(paths)
			clear(pending)

			w.logger.Info("scenario files changed", "count", len(paths))
			w.onChange(paths)
		}
	}
}

// relevant maps an event path into the root and filters out temp files.
func (w *Watcher) relevant(name string) (string, bool) {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".httpmocker-") {
		return "", false
	}
	rel, err := filepath.Rel(w.rootDir, name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.watcher.Add(path)
		}
		return nil
	})
}
