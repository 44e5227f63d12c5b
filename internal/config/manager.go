package config

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Manager serves the current configuration snapshot and reloads it
// when the config file changes on disk.
type Manager struct {
	path    string
	logger  *zap.Logger
	watcher *fsnotify.Watcher
	stopCh  chan struct{}

	mu  sync.RWMutex
	cfg *Config
}

// NewManager loads the initial snapshot and begins watching the file's
// directory. Callers must Stop the manager on shutdown.
func NewManager(path string, logger *zap.Logger) (*Manager, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory, not the file: editors replace files on save
	// and a file watch dies with the old inode.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}

	m := &Manager{
		path:    path,
		logger:  logger,
		watcher: watcher,
		stopCh:  make(chan struct{}),
		cfg:     cfg,
	}
	go m.watch()
	return m, nil
}

// Current returns the latest snapshot. The returned value must not be
// mutated.
func (m *Manager) Current() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Stop terminates the watch loop.
func (m *Manager) Stop() {
	close(m.stopCh)
	m.watcher.Close()
}

func (m *Manager) watch() {
	for {
		select {
		case <-m.stopCh:
			return
		case ev, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(m.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			m.reload()
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Warn("Config watcher error", zap.Error(err))
		}
	}
}

func (m *Manager) reload() {
	cfg, err := LoadFile(m.path)
	if err != nil {
		// Keep serving the last good snapshot.
		m.logger.Warn("Config reload failed, keeping previous snapshot",
			zap.String("path", m.path),
			zap.Error(err),
		)
		return
	}
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
	m.logger.Info("Config reloaded",
		zap.String("path", m.path),
		zap.Int("max_steps", cfg.Pipeline.MaxSteps),
	)
}
