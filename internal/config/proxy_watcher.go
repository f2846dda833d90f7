package config

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const proxyReloadDebounce = 250 * time.Millisecond

// ProxyWatcher reloads a proxies YAML file into a ProxyList whenever the
// file changes. Inline proxies from PROXIES stay underneath the file's
// entries on every reload.
type ProxyWatcher struct {
	path   string
	base   map[string]string
	list   *ProxyList
	logger *zap.Logger

	// OnReload, when set, is called after each successful reload.
	OnReload func(names []string)
}

func NewProxyWatcher(path string, base map[string]string, list *ProxyList, logger *zap.Logger) *ProxyWatcher {
	return &ProxyWatcher{path: path, base: base, list: list, logger: logger}
}

// Reload reads the file once and swaps the list. Parse errors keep the
// previous list in place.
func (w *ProxyWatcher) Reload() error {
	entries, err := LoadProxiesFile(w.path)
	if err != nil {
		return err
	}
	w.list.Replace(Merge(w.base, entries))
	names := w.list.Names()
	w.logger.Info("proxies reloaded", zap.String("path", w.path), zap.Strings("proxies", names))
	if w.OnReload != nil {
		w.OnReload(names)
	}
	return nil
}

// Run watches the file's directory until ctx is cancelled. Editors often
// replace files by rename, so the directory is watched rather than the file.
func (w *ProxyWatcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("proxy watcher: %w", err)
	}
	defer fw.Close()

	dir := filepath.Dir(w.path)
	file := filepath.Base(w.path)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("proxy watcher add %s: %w", dir, err)
	}
	w.logger.Info("proxy watcher started", zap.String("path", w.path))

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(proxyReloadDebounce, func() {
			if ctx.Err() != nil {
				return
			}
			if err := w.Reload(); err != nil {
				w.logger.Warn("proxies reload failed", zap.String("path", w.path), zap.Error(err))
			}
		})
	}
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("proxy watcher stopped")
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !strings.EqualFold(filepath.Base(ev.Name), file) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				debounce()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			if err != nil {
				w.logger.Warn("proxy watcher error", zap.Error(err))
			}
		}
	}
}
