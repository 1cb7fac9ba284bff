// Package watch reports PDFs written into a corpus directory.
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-logr/logr"

	"pdfchat/src/log"
)

const DefaultQuietPeriod = 2 * time.Second

// Watcher batches PDF create and write events under a directory tree. A batch is
// emitted once no further event has arrived for the quiet period, so a file that is
// still being copied is reported once, after the copy settles.
type Watcher struct {
	watcher *fsnotify.Watcher
	quiet   time.Duration
	logger  logr.Logger
}

func New(quiet time.Duration) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}
	return &Watcher{watcher: w, quiet: quiet, logger: log.WithName("watch")}, nil
}

// Watch starts monitoring dir and its subdirectories. Each value received is a sorted
// list of the PDF paths that changed. The channel is closed when ctx ends or the
// watcher is closed.
func (w *Watcher) Watch(ctx context.Context, dir string) (<-chan []string, error) {
	if err := w.addTree(dir); err != nil {
		return nil, err
	}

	batches := make(chan []string)

	go func() {
		defer close(batches)

		pending := make(map[string]struct{})
		timer := time.NewTimer(w.quiet)
		timer.Stop()
		defer timer.Stop()
		var fire <-chan time.Time

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if event.Op&fsnotify.Create == fsnotify.Create {
					if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
						if err := w.addTree(event.Name); err != nil {
							w.logger.Error(err, "failed to watch new directory", "path", event.Name)
						}
						continue
					}
				}
				if !isPDF(event.Name) || event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
					continue
				}
				pending[event.Name] = struct{}{}
				timer.Reset(w.quiet)
				fire = timer.C
			case <-fire:
				fire = nil
				batch := make([]string, 0, len(pending))
				for p := range pending {
					batch = append(batch, p)
				}
				sort.Strings(batch)
				pending = make(map[string]struct{})

				select {
				case batches <- batch:
				case <-ctx.Done():
					return
				}
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.logger.Error(err, "watch error", "dir", dir)
			}
		}
	}()

	return batches, nil
}

func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.watcher.Add(path)
		}
		return nil
	})
}

func isPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}
