package config

import (
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/spaghettifunk/dmatex/core"
)

// Watcher hot-reloads a policy file. Current() always returns a complete
// policy: a malformed rewrite keeps the previous one.
type Watcher struct {
	path string

	mutex   sync.RWMutex
	current *Config

	done     chan struct{}
	fsnotify *fsnotify.Watcher
}

// Watch loads the file once and starts following writes to it. The caller
// must Close the watcher when done.
func Watch(path string) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsWatch.Add(path); err != nil {
		fsWatch.Close()
		return nil, err
	}

	w := &Watcher{
		path:     path,
		current:  cfg,
		fsnotify: fsWatch,
		done:     make(chan struct{}),
	}
	go w.start()
	return w, nil
}

// Current returns the active policy.
func (w *Watcher) Current() *Config {
	w.mutex.RLock()
	defer w.mutex.RUnlock()
	return w.current
}

// Admit applies the active policy; usable directly as an importer policy
// hook.
func (w *Watcher) Admit(format string) error {
	return w.Current().Admit(format)
}

// Close stops watching. Current() keeps returning the last policy.
func (w *Watcher) Close() {
	close(w.done)
}

func (w *Watcher) start() {
	for {
		select {
		case e := <-w.fsnotify.Events:
			if e.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			w.reload()

		case e := <-w.fsnotify.Errors:
			core.LogError(e.Error())

		case <-w.done:
			w.fsnotify.Close()
			return
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		core.LogWarn("config reload failed, keeping previous policy: %v", err)
		return
	}

	w.mutex.Lock()
	w.current = cfg
	w.mutex.Unlock()
	core.LogInfo("config reloaded from %s", w.path)
}
