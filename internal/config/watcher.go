package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"upbot/internal/logger"
	"upbot/internal/pkg/jsonutil"
)

// StrategySnapshot is one successfully loaded version of the strategy file.
type StrategySnapshot struct {
	Version  int64
	LoadedAt time.Time
	Strategy Strategy
}

type StrategyListener func(StrategySnapshot)

// StrategyWatcher owns the strategy file. It reloads on filesystem events
// and on explicit Reload calls; a failed reload keeps the last good
// snapshot.
type StrategyWatcher struct {
	path string
	// v only drives fsnotify; viper re-reads it from its own goroutine, so
	// reloads parse through a private instance.
	v *viper.Viper

	// reloadMu orders parse and publish so an older file never replaces a
	// newer snapshot.
	reloadMu sync.Mutex

	mu        sync.RWMutex
	snapshot  StrategySnapshot
	listeners []StrategyListener
}

// NewStrategyWatcher loads path, creating it from defaults when absent.
func NewStrategyWatcher(path string) (*StrategyWatcher, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("strategy watcher requires path")
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		logger.Warnf("Strategy: %s not found, writing defaults", path)
		if err := writeStrategyFile(path, DefaultStrategy()); err != nil {
			return nil, err
		}
	}
	v := viper.New()
	v.SetConfigFile(path)
	w := &StrategyWatcher{path: path, v: v}
	if err := w.Reload(); err != nil {
		logger.Errorf("Strategy: initial load failed, using defaults: %v", err)
		w.store(DefaultStrategy())
	}
	return w, nil
}

// Watch starts fsnotify-based reloads.
func (w *StrategyWatcher) Watch() {
	w.v.OnConfigChange(func(evt fsnotify.Event) {
		if err := w.Reload(); err != nil {
			logger.Errorf("Strategy: reload failed (%s): %v", evt.Name, err)
		}
	})
	w.v.WatchConfig()
}

func (w *StrategyWatcher) Path() string { return w.path }

func (w *StrategyWatcher) Current() Strategy {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.snapshot.Strategy
}

func (w *StrategyWatcher) Snapshot() StrategySnapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.snapshot
}

// Subscribe registers fn for future reloads.
func (w *StrategyWatcher) Subscribe(fn StrategyListener) {
	if fn == nil {
		return
	}
	w.mu.Lock()
	w.listeners = append(w.listeners, fn)
	w.mu.Unlock()
}

// Reload re-reads the file. It is safe to call from the fsnotify callback
// and the controller at the same time.
func (w *StrategyWatcher) Reload() error {
	w.reloadMu.Lock()
	defer w.reloadMu.Unlock()
	s, err := LoadStrategy(w.path)
	if err != nil {
		return err
	}
	w.store(s)
	return nil
}

// Save validates s, writes it as YAML and publishes it.
func (w *StrategyWatcher) Save(s Strategy) (Strategy, error) {
	w.reloadMu.Lock()
	defer w.reloadMu.Unlock()
	s.sanitize()
	if err := writeStrategyFile(w.path, s); err != nil {
		return Strategy{}, err
	}
	w.store(s)
	return s, nil
}

func (w *StrategyWatcher) store(s Strategy) {
	w.mu.Lock()
	changed := w.snapshot.Version == 0 || !reflect.DeepEqual(w.snapshot.Strategy, s)
	w.snapshot = StrategySnapshot{
		Version:  w.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Strategy: s,
	}
	snap := w.snapshot
	listeners := append([]StrategyListener(nil), w.listeners...)
	w.mu.Unlock()
	if !changed {
		return
	}
	logger.Infof("Strategy: loaded v%d from %s (%s)", snap.Version, filepath.Base(w.path), s)
	for _, fn := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("Strategy: listener panic: %v", r)
				}
			}()
			fn(snap)
		}()
	}
}

// LoadStrategy parses a strategy file once.
func LoadStrategy(path string) (Strategy, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return parseStrategy(v)
}

func parseStrategy(v *viper.Viper) (Strategy, error) {
	if err := v.ReadInConfig(); err != nil {
		return Strategy{}, fmt.Errorf("read strategy failed: %w", err)
	}
	var s Strategy
	if err := decode(v, &s); err != nil {
		return Strategy{}, fmt.Errorf("parse strategy failed: %w", err)
	}
	keys := make(keySet)
	collectSettingsKeys(v.AllSettings(), keys)
	s.applyDefaults(keys)
	s.sanitize()
	return s, nil
}

func writeStrategyFile(path string, s Strategy) error {
	buf, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal strategy: %w", err)
	}
	return jsonutil.WriteBytes(path, buf)
}
