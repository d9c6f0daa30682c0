package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// watchDelay collapses editor save bursts into one report.
const watchDelay = 250 * time.Millisecond

func newWatchCommand(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <path>...",
		Short: "Print preflight reports whenever chart documents change",
		Long: `Watch chart documents and directories and print a fresh preflight report
for each document that changes. A change to any other file in a watched
directory, such as a CSV, clears the data cache and re-checks every
watched document.`,
		Example: `  chartkit watch charts/
  chartkit watch charts/draft.yaml data/`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, version)
			if err != nil {
				return err
			}
			defer a.Close()

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return fmt.Errorf("failed to create file watcher: %w", err)
			}
			defer watcher.Close()

			docs := map[string]bool{}
			for _, path := range args {
				info, err := os.Stat(path)
				if err != nil {
					return err
				}
				if info.IsDir() {
					files, err := a.processor.Collect([]string{path})
					if err != nil {
						return err
					}
					for _, f := range files {
						docs[filepath.Clean(f)] = true
					}
				} else {
					docs[filepath.Clean(path)] = true
					path = filepath.Dir(path)
				}
				if err := watcher.Add(path); err != nil {
					return fmt.Errorf("failed to watch %s: %w", path, err)
				}
			}

			w := &docWatcher{
				docs: docs,
				check: func(file string) {
					doc, err := readRawDocument(a.fs, file)
					if err != nil {
						log.Warn().Err(err).Str("file", file).Msg("Skipping unreadable document")
						return
					}
					report := a.preflight.Preflight(ctx, doc)
					if jsonOutput {
						_ = printJSON(cmd.OutOrStdout(), map[string]any{"file": file, "report": report})
						return
					}
					printReport(cmd.OutOrStdout(), file, report)
				},
				purge: a.loader.Purge,
			}
			for _, file := range w.sorted() {
				w.check(file)
			}
			log.Info().Int("documents", len(docs)).Msg("Watching for changes")
			return w.run(ctx, watcher)
		},
	}
	return cmd
}

// docWatcher turns file events into debounced preflight checks.
type docWatcher struct {
	mu      sync.Mutex
	docs    map[string]bool
	pending map[string]bool
	all     bool
	timer   *time.Timer

	check func(file string)
	purge func()
}

func (w *docWatcher) sorted() []string {
	files := make([]string, 0, len(w.docs))
	for f := range w.docs {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

func (w *docWatcher) run(ctx context.Context, watcher *fsnotify.Watcher) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("File watcher error")
		}
	}
}

func (w *docWatcher) handle(event fsnotify.Event) {
	if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
		return
	}
	file := filepath.Clean(event.Name)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pending == nil {
		w.pending = map[string]bool{}
	}
	switch {
	case w.docs[file]:
		w.pending[file] = true
	case isDocumentFile(file) && event.Has(fsnotify.Create):
		w.docs[file] = true
		w.pending[file] = true
	case strings.HasPrefix(filepath.Base(file), "."):
		return
	default:
		w.all = true
	}

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(watchDelay, w.flush)
}

func (w *docWatcher) flush() {
	w.mu.Lock()
	files := make([]string, 0, len(w.pending))
	if w.all {
		files = w.sorted()
	} else {
		for f := range w.pending {
			files = append(files, f)
		}
		sort.Strings(files)
	}
	all := w.all
	w.pending, w.all = nil, false
	w.mu.Unlock()

	if all && w.purge != nil {
		w.purge()
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		w.check(f)
	}
}

func isDocumentFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
