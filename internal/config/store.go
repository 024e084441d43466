package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Store holds the current Config. Sessions read it once at start, so a
// reload only affects sessions started afterwards.
type Store struct {
	cur atomic.Pointer[Config]
}

// NewStore creates a store holding cfg.
func NewStore(cfg *Config) *Store {
	s := &Store{}
	s.cur.Store(cfg)
	return s
}

// Get returns the current Config. Callers must not mutate it.
func (s *Store) Get() *Config {
	return s.cur.Load()
}

// Set replaces the current Config.
func (s *Store) Set(cfg *Config) {
	s.cur.Store(cfg)
}

// keepBrowserSetup carries over the browser settings that are only prepared
// at daemon start (backend, image, profile store) and warns when a reload
// tried to change them.
func keepBrowserSetup(prev, next *Config, logger *zap.Logger) {
	var changed []string
	if prev.Browser.Type != next.Browser.Type {
		changed = append(changed, "browser.type")
	}
	if prev.Browser.Image != next.Browser.Image {
		changed = append(changed, "browser.image")
	}
	if prev.Browser.Profile != next.Browser.Profile {
		changed = append(changed, "browser.profile")
	}
	if prev.Browser.ProfileDir != next.Browser.ProfileDir {
		changed = append(changed, "browser.profile_dir")
	}
	if len(changed) == 0 {
		return
	}

	logger.Warn("browser setup changes need a daemon restart, keeping current values",
		zap.Strings("keys", changed),
		zap.String("type", prev.Browser.Type),
		zap.String("profile", prev.Browser.Profile))
	next.Browser.Type = prev.Browser.Type
	next.Browser.Image = prev.Browser.Image
	next.Browser.Profile = prev.Browser.Profile
	next.Browser.ProfileDir = prev.Browser.ProfileDir
}

// Watch reloads dir into the store whenever one of its YAML files changes,
// until ctx is done. Invalid edits are logged and the previous config kept.
// overlay is applied to every reloaded config (env overrides).
func (s *Store) Watch(ctx context.Context, dir string, overlay func(*Config) error, logger *zap.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	// editors emit bursts of events; reload once things settle
	const settle = 250 * time.Millisecond
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			name := filepath.Base(ev.Name)
			if name != SettingsFile && name != WebsitesFile {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			pending = time.After(settle)
		case <-pending:
			pending = nil
			cfg, err := Load(dir)
			if err == nil && overlay != nil {
				err = overlay(cfg)
			}
			if err != nil {
				logger.Warn("config reload rejected", zap.Error(err))
				continue
			}
			keepBrowserSetup(s.Get(), cfg, logger)
			s.Set(cfg)
			logger.Info("config reloaded",
				zap.Int("sites", len(cfg.Catalogue.Sites())),
				zap.Int("queries", len(cfg.Catalogue.SearchQueries)))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watcher error", zap.Error(err))
		}
	}
}
