package browser

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/decoyd/internal/config"
	"github.com/shehryarbajwa/decoyd/internal/profile"
	"github.com/shehryarbajwa/decoyd/internal/timing"
)

// Backend names accepted in browser.type.
const (
	BackendRod        = "rod"
	BackendContainer  = "container"
	BackendPlaywright = "playwright"
)

// Constructor builds a driver for one session from the browser settings.
type Constructor func(cfg config.BrowserConfig, f *Factory) (Driver, error)

// Factory hands out a fresh Driver per session for the configured backend.
type Factory struct {
	backends map[string]Constructor
	mu       sync.RWMutex

	profiles *profile.Store
	policy   *timing.Policy
	logger   *zap.Logger
}

// NewFactory registers the built-in backends. profiles may be nil when no
// profile is configured.
func NewFactory(profiles *profile.Store, policy *timing.Policy, logger *zap.Logger) *Factory {
	f := &Factory{
		backends: make(map[string]Constructor),
		profiles: profiles,
		policy:   policy,
		logger:   logger,
	}

	f.Register(BackendRod, func(cfg config.BrowserConfig, f *Factory) (Driver, error) {
		var l Launcher
		if cfg.ControlURL != "" {
			l = &remoteLauncher{url: cfg.ControlURL}
		} else {
			l = newLocalLauncher(cfg.Bin, cfg.Profile, f.profiles, f.logger)
		}
		return newRodDriver(l, cfg.NavigationTimeout, f.persistent(cfg), f.policy, f.logger), nil
	})

	f.Register(BackendContainer, func(cfg config.BrowserConfig, f *Factory) (Driver, error) {
		l, err := newContainerLauncher(cfg.Image, cfg.Profile, f.profiles, f.logger)
		if err != nil {
			return nil, err
		}
		return newRodDriver(l, cfg.NavigationTimeout, f.persistent(cfg), f.policy, f.logger), nil
	})

	f.Register(BackendPlaywright, func(cfg config.BrowserConfig, f *Factory) (Driver, error) {
		if cfg.Profile != "" {
			f.logger.Warn("browser profiles are not supported by the playwright backend",
				zap.String("profile", cfg.Profile))
		}
		return newPlaywrightDriver(cfg.NavigationTimeout, f.policy, f.logger), nil
	})

	return f
}

func (f *Factory) persistent(cfg config.BrowserConfig) bool {
	return cfg.Profile != "" && f.profiles != nil && cfg.ControlURL == ""
}

// Register adds or replaces a backend.
func (f *Factory) Register(name string, c Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.backends[name] = c
}

// New builds an unopened driver for cfg.Type.
func (f *Factory) New(cfg config.BrowserConfig) (Driver, error) {
	f.mu.RLock()
	c, ok := f.backends[cfg.Type]
	f.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unsupported browser backend: %q", cfg.Type)
	}
	return c(cfg, f)
}

// Backends lists registered backend names.
func (f *Factory) Backends() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	names := make([]string, 0, len(f.backends))
	for name := range f.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Prepare does backend setup that should happen once at daemon start,
// such as pulling the container image.
func (f *Factory) Prepare(ctx context.Context, cfg config.BrowserConfig) error {
	if cfg.Type != BackendContainer {
		return nil
	}
	if err := EnsureImage(ctx, cfg.Image); err != nil {
		return fmt.Errorf("failed to ensure image %s: %w", cfg.Image, err)
	}
	return nil
}
