package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/karrick/godirwalk"
	"github.com/rs/zerolog/log"
	"github.com/seanblong/docqa/internal/discovery"
)

// DefaultDebounce is how long the tree must stay quiet before a trigger.
const DefaultDebounce = 2 * time.Second

// Watcher triggers re-ingestion when files with enabled extensions change
// under a directory tree.
type Watcher struct {
	watcher    *fsnotify.Watcher
	root       string
	extensions map[string]bool
	debounce   time.Duration
}

// New watches root and every non-hidden directory below it.
func New(root string, extensions map[string]bool, debounce time.Duration) (*Watcher, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	ww := &Watcher{watcher: w, root: root, extensions: extensions, debounce: debounce}
	if _, err := ww.addTree(root); err != nil {
		w.Close()
		return nil, err
	}
	return ww, nil
}

// addTree watches dir and its non-hidden subdirectories. It reports whether
// the tree already holds a file with an enabled extension, which is the case
// when a populated directory is moved in.
func (w *Watcher) addTree(dir string) (bool, error) {
	found := false
	err := godirwalk.Walk(dir, &godirwalk.Options{
		Unsorted: true,
		Callback: func(path string, de *godirwalk.Dirent) error {
			hidden := strings.HasPrefix(filepath.Base(path), ".")
			if !de.IsDir() {
				if !hidden && w.extensions[discovery.Extension(path)] {
					found = true
				}
				return nil
			}
			if path != dir && hidden {
				return godirwalk.SkipThis
			}
			return w.watcher.Add(path)
		},
		ErrorCallback: func(path string, err error) godirwalk.ErrorAction {
			log.Warn().Err(err).Str("path", path).Msg("cannot watch directory")
			return godirwalk.SkipNode
		},
	})
	return found, err
}

// Run calls trigger once per burst of relevant events, after the tree has
// been quiet for the debounce interval. Triggers never overlap. It returns
// when ctx is done.
func (w *Watcher) Run(ctx context.Context, trigger func(context.Context)) error {
	defer w.watcher.Close()

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Create == fsnotify.Create && isDir(event.Name) {
				if strings.HasPrefix(filepath.Base(event.Name), ".") {
					continue
				}
				found, err := w.addTree(event.Name)
				if err != nil {
					log.Warn().Err(err).Str("path", event.Name).Msg("cannot watch new directory")
				}
				if found {
					log.Debug().Str("path", event.Name).Msg("directory with documents added")
					timer.Reset(w.debounce)
				}
				continue
			}
			if !w.relevant(event) {
				continue
			}
			log.Debug().Str("path", event.Name).Str("op", event.Op.String()).Msg("change detected")
			timer.Reset(w.debounce)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("watch error")
		case <-timer.C:
			log.Info().Str("dir", w.root).Msg("corpus changed, re-ingesting")
			trigger(ctx)
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return false
	}
	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return false
	}
	return w.extensions[discovery.Extension(event.Name)]
}

func isDir(path string) bool {
	de, err := godirwalk.NewDirent(path)
	return err == nil && de.IsDir()
}
