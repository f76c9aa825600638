package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultReloadDebounce coalesces editor save bursts into one reload.
const DefaultReloadDebounce = 200 * time.Millisecond

// ReloadFunc receives each successfully reloaded configuration.
type ReloadFunc func(*Config)

// Watcher reloads the configuration when the project config, .env or the
// user config changes. Invalid edits are logged and the previous
// configuration stays in effect.
type Watcher struct {
	dir      string
	debounce time.Duration
	onReload ReloadFunc
	watcher  *fsnotify.Watcher
	files    map[string]bool

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// NewWatcher watches the directories holding dir's config files.
func NewWatcher(dir string, debounce time.Duration, onReload ReloadFunc) (*Watcher, error) {
	if onReload == nil {
		return nil, fmt.Errorf("reload callback is required")
	}
	if debounce <= 0 {
		debounce = DefaultReloadDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}

	w := &Watcher{
		dir:      absDir,
		debounce: debounce,
		onReload: onReload,
		watcher:  fsw,
		files: map[string]bool{
			filepath.Join(absDir, ProjectConfigName): true,
			filepath.Join(absDir, ".foldrank.yml"):   true,
			filepath.Join(absDir, ".env"):            true,
			GetUserConfigPath():                      true,
		},
	}

	// Watch directories rather than files so atomic renames are seen.
	if err := fsw.Add(absDir); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", absDir, err)
	}
	if userDir := filepath.Dir(GetUserConfigPath()); dirExists(userDir) {
		if err := fsw.Add(userDir); err != nil {
			slog.Warn("config_watch_user_dir_failed",
				slog.String("dir", userDir),
				slog.String("error", err.Error()))
		}
	}

	return w, nil
}

// Run processes events until ctx is cancelled or Close is called.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.files[filepath.Clean(event.Name)] {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			w.schedule()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("config_watch_error", slog.String("error", err.Error()))
		}
	}
}

// schedule restarts the debounce timer.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := Load(w.dir)
	if err != nil {
		slog.Warn("config_reload_failed",
			slog.String("dir", w.dir),
			slog.String("error", err.Error()))
		return
	}

	w.mu.Lock()
	stopped := w.stopped
	w.mu.Unlock()
	if stopped {
		return
	}

	slog.Info("config_reloaded",
		slog.String("dir", w.dir),
		slog.Float64("keyword_weight", cfg.Search.KeywordWeight),
		slog.Float64("embedding_weight", cfg.Search.EmbeddingWeight),
		slog.String("fusion", cfg.Search.Fusion))
	w.onReload(cfg)
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
	}
}

// Close stops the watcher. Pending reloads are dropped.
func (w *Watcher) Close() error {
	w.stopTimer()
	return w.watcher.Close()
}

// dirExists checks if a directory exists.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
