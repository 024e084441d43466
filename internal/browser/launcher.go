package browser

import (
	"context"
	"fmt"
	"os"

	"github.com/go-rod/rod/lib/launcher"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/decoyd/internal/profile"
)

// Launcher provides a DevTools endpoint for the rod driver and tears it
// down again when the session ends.
type Launcher interface {
	Launch(ctx context.Context, headless bool) (controlURL string, err error)
	Stop(ctx context.Context) error
	// Owned reports whether the driver may close the whole browser.
	Owned() bool
}

// localLauncher starts a Chrome process on this machine.
type localLauncher struct {
	bin      string
	profile  string
	profiles *profile.Store
	logger   *zap.Logger

	l       *launcher.Launcher
	dataDir string
}

func newLocalLauncher(bin, profileName string, profiles *profile.Store, logger *zap.Logger) *localLauncher {
	return &localLauncher{bin: bin, profile: profileName, profiles: profiles, logger: logger}
}

func (l *localLauncher) Launch(_ context.Context, headless bool) (string, error) {
	ln := launcher.New().Headless(headless)
	if l.bin != "" {
		ln = ln.Bin(l.bin)
	}

	if l.profile != "" && l.profiles != nil {
		dir, err := l.profiles.Checkout(l.profile)
		if err != nil {
			return "", fmt.Errorf("checkout profile %q: %w", l.profile, err)
		}
		l.dataDir = dir
		ln = ln.UserDataDir(dir)
	}

	url, err := ln.Launch()
	if err != nil {
		l.discardDataDir()
		return "", err
	}
	l.l = ln
	return url, nil
}

func (l *localLauncher) Stop(context.Context) error {
	if l.l == nil {
		return nil
	}
	ln := l.l
	l.l = nil

	if l.dataDir == "" {
		ln.Kill()
		ln.Cleanup()
		return nil
	}

	ln.Kill()
	err := l.profiles.Commit(l.profile, l.dataDir)
	if err != nil {
		l.logger.Warn("failed to save browser profile", zap.String("profile", l.profile), zap.Error(err))
	}
	l.discardDataDir()
	return err
}

func (l *localLauncher) Owned() bool { return true }

func (l *localLauncher) discardDataDir() {
	if l.dataDir != "" {
		os.RemoveAll(l.dataDir)
		l.dataDir = ""
	}
}

// remoteLauncher attaches to a browser someone else runs.
type remoteLauncher struct {
	url string
}

func (r *remoteLauncher) Launch(ctx context.Context, _ bool) (string, error) {
	u, err := launcher.ResolveURL(r.url)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", r.url, err)
	}
	return u, nil
}

func (r *remoteLauncher) Stop(context.Context) error { return nil }

func (r *remoteLauncher) Owned() bool { return false }
