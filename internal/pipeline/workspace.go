package pipeline

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Workspace is the working directory holding per-chunk audio for one run.
// Close removes only the files this run created, then the directory itself
// when it is left empty.
type Workspace struct {
	dir  string
	keep bool

	mu    sync.Mutex
	files []string
}

// OpenWorkspace creates dir if needed. Unless keep is set, regular files left
// in it by earlier runs are removed first; subdirectories are left alone.
func OpenWorkspace(dir string, keep bool) (*Workspace, error) {
	if !keep {
		entries, err := os.ReadDir(dir)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read workspace: %w", err)
		}
		for _, e := range entries {
			if !e.Type().IsRegular() {
				continue
			}
			if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
				return nil, fmt.Errorf("clear workspace: %w", err)
			}
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &Workspace{dir: dir, keep: keep}, nil
}

func (w *Workspace) Dir() string { return w.dir }

// Track registers a file for removal on Close.
func (w *Workspace) Track(path string) {
	w.mu.Lock()
	w.files = append(w.files, path)
	w.mu.Unlock()
}

// Close cleans up unless the workspace is kept. Failures are logged only.
func (w *Workspace) Close(log *slog.Logger) {
	if w.keep {
		log.Info("keeping temporary audio", "dir", w.dir)
		return
	}
	w.mu.Lock()
	files := w.files
	w.files = nil
	w.mu.Unlock()

	for _, f := range files {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			log.Warn("remove temporary audio", "path", f, "error", err)
		}
	}

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("read workspace", "dir", w.dir, "error", err)
		}
		return
	}
	if len(entries) > 0 {
		log.Debug("workspace not empty, leaving it", "dir", w.dir, "entries", len(entries))
		return
	}
	if err := os.Remove(w.dir); err != nil {
		log.Warn("remove workspace", "dir", w.dir, "error", err)
	}
}
