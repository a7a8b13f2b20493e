package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
)

// DefaultReloadDebounce collapses the burst of events one save produces.
const DefaultReloadDebounce = 200 * time.Millisecond

// ReloadFunc receives a freshly loaded config.
type ReloadFunc func(*Config) error

// Watcher reloads a config file whenever it changes on disk. The parent
// directory is watched so that atomic replace-by-rename saves are seen.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	debounce time.Duration

	mu        sync.Mutex
	callbacks []ReloadFunc
	timer     *time.Timer
	closed    bool

	done chan struct{}
	wg   sync.WaitGroup
}

// NewWatcher creates a watcher for configPath. Call Start to begin.
func NewWatcher(configPath string) (*Watcher, error) {
	abs, err := filepath.Abs(configPath)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", configPath)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "create fsnotify watcher")
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, errors.Wrapf(err, "watch %s", filepath.Dir(abs))
	}
	return &Watcher{
		path:     abs,
		watcher:  fw,
		debounce: DefaultReloadDebounce,
		done:     make(chan struct{}),
	}, nil
}

// SetDebounce changes the reload debounce period.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounce = d
}

// OnReload registers fn to run after every successful reload.
func (w *Watcher) OnReload(fn ReloadFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, fn)
}

// Start begins watching in the background.
func (w *Watcher) Start() {
	w.wg.Add(1)
	go w.watchLoop()
}

// Close stops watching and waits for the loop to exit.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
	}
	close(w.done)
	w.mu.Unlock()

	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) watchLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				log.Debug("config change detected", "file", event.Name, "op", event.Op.String())
				w.scheduleReload()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn("config watcher error", "err", err)
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		if err := w.reload(); err != nil {
			log.Error("config reload failed", "err", err)
		}
	})
}

func (w *Watcher) reload() error {
	cfg, err := LoadConfig(w.path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	callbacks := append([]ReloadFunc(nil), w.callbacks...)
	w.mu.Unlock()

	log.Info("config reloaded", "path", w.path)
	var errs error
	for _, fn := range callbacks {
		if err := fn(cfg); err != nil {
			errs = errors.CombineErrors(errs, err)
		}
	}
	return errs
}
