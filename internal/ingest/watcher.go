package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/halverson/skald/internal/parser"
)

// settleDelay is how long a file must stay quiet after its last write
// before it is ingested. Editors and downloads write in bursts.
const settleDelay = 2 * time.Second

// Watcher ingests supported files dropped into a directory.
type Watcher struct {
	ingestor *Ingestor
	dir      string

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// NewWatcher creates a Watcher over dir. The directory is created if it
// does not exist.
func NewWatcher(ingestor *Ingestor, dir string) (*Watcher, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating watch directory: %w", err)
	}
	return &Watcher{
		ingestor: ingestor,
		dir:      dir,
		pending:  make(map[string]*time.Timer),
	}, nil
}

// Run watches the directory until ctx is cancelled. Each created or
// written file is ingested after it settles.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}
	slog.Info("watching directory for documents", "dir", w.dir)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !parser.Supported(event.Name) {
				continue
			}
			w.schedule(ctx, event.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watcher error", "error", err)
		}
	}
}

// schedule (re)starts the settle timer for a path. Repeated writes push
// the ingestion back until the file goes quiet.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[path]; ok {
		timer.Stop()
	}
	w.pending[path] = time.AfterFunc(settleDelay, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.ingestFile(ctx, path)
	})
}

func (w *Watcher) ingestFile(ctx context.Context, path string) {
	content, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("reading watched file failed", "path", path, "error", err)
		return
	}

	doc, err := w.ingestor.Ingest(ctx, filepath.Base(path), content)
	if err != nil {
		slog.Warn("ingesting watched file failed", "path", path, "error", err)
		return
	}
	slog.Info("watched file indexed", "path", path, "doc_id", doc.ID)
}
