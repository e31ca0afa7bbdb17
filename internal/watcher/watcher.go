// Package watcher keeps the credential pool in sync with a key file on disk.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/router-for-me/GeminiKeyRelay/internal/keypool"
	log "github.com/sirupsen/logrus"
)

// defaultDebounce coalesces bursts of editor write events into one reload.
const defaultDebounce = 100 * time.Millisecond

// KeyFile serves the credential pool read from a file and reloads it when the file changes.
// The file may separate keys with commas, newlines, or both.
type KeyFile struct {
	path     string
	debounce time.Duration
	keys     atomic.Pointer[[]string]
	reloads  atomic.Int64
}

// NewKeyFile loads path once. The initial load must succeed so startup fails fast on a bad path.
func NewKeyFile(path string) (*KeyFile, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("key file: empty path")
	}
	abs, errAbs := filepath.Abs(path)
	if errAbs != nil {
		return nil, fmt.Errorf("key file: resolve path: %w", errAbs)
	}
	w := &KeyFile{path: abs, debounce: defaultDebounce}
	if _, errLoad := w.reload(); errLoad != nil {
		return nil, errLoad
	}
	return w, nil
}

// Path returns the watched file.
func (w *KeyFile) Path() string { return w.path }

// Reloads returns how many successful loads happened, the initial one included.
func (w *KeyFile) Reloads() int64 { return w.reloads.Load() }

// Keys implements keypool.Source. Every call returns the pool as of the last successful load.
func (w *KeyFile) Keys() ([]string, error) {
	ptr := w.keys.Load()
	if ptr == nil || len(*ptr) == 0 {
		return nil, keypool.ErrNoCredentials
	}
	return *ptr, nil
}

// Run watches the file's directory until ctx is done. Atomic-rename saves are handled by
// watching the directory instead of the file itself.
func (w *KeyFile) Run(ctx context.Context) error {
	fsw, errNew := fsnotify.NewWatcher()
	if errNew != nil {
		return fmt.Errorf("key file: create watcher: %w", errNew)
	}
	defer func() { _ = fsw.Close() }()

	if errAdd := fsw.Add(filepath.Dir(w.path)); errAdd != nil {
		return fmt.Errorf("key file: watch %s: %w", filepath.Dir(w.path), errAdd)
	}
	log.WithField("path", w.path).Info("key file: watching for changes")

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			pending = time.After(w.debounce)
		case errWatch, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			log.WithError(errWatch).Warn("key file: watcher error")
		case <-pending:
			pending = nil
			count, errLoad := w.reload()
			if errLoad != nil {
				log.WithError(errLoad).WithField("path", w.path).Warn("key file: reload failed, keeping previous keys")
				continue
			}
			log.WithFields(log.Fields{"path": w.path, "keys": count}).Info("key file: reloaded")
		}
	}
}

func (w *KeyFile) reload() (int, error) {
	data, errRead := os.ReadFile(w.path)
	if errRead != nil {
		return 0, fmt.Errorf("key file: read: %w", errRead)
	}
	normalized := strings.NewReplacer("\r\n", ",", "\n", ",", "\r", ",").Replace(string(data))
	keys := keypool.Parse(normalized)
	if len(keys) == 0 {
		return 0, fmt.Errorf("key file: %w", keypool.ErrNoCredentials)
	}
	w.keys.Store(&keys)
	w.reloads.Add(1)
	return len(keys), nil
}
