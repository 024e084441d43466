package config

import (
	"os"
	"path/filepath"
	"time"
)

// HomeDir is where the daemon keeps its socket, logs and profiles.
func HomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".decoy-service")
	}
	return filepath.Join(home, ".decoy-service")
}

func applyDefaults(cfg *Config) {
	if cfg.Browser.Type == "" {
		cfg.Browser.Type = "rod"
	}
	if cfg.Browser.Image == "" {
		cfg.Browser.Image = "browserless/chrome:latest"
	}
	if cfg.Browser.ProfileDir == "" {
		cfg.Browser.ProfileDir = filepath.Join(HomeDir(), "profiles")
	}
	if cfg.Browser.NavigationTimeout == 0 {
		cfg.Browser.NavigationTimeout = 30 * time.Second
	}

	if cfg.Activity.ClickIntervalMin == 0 && cfg.Activity.ClickIntervalMax == 0 {
		cfg.Activity.ClickIntervalMin = 2
		cfg.Activity.ClickIntervalMax = 8
	}
	if cfg.Activity.PageDwellMin == 0 && cfg.Activity.PageDwellMax == 0 {
		cfg.Activity.PageDwellMin = 5
		cfg.Activity.PageDwellMax = 30
	}

	if cfg.Clicking.ClicksPerPageMin == 0 {
		cfg.Clicking.ClicksPerPageMin = 1
	}
	if cfg.Clicking.ClicksPerPageMax == 0 {
		cfg.Clicking.ClicksPerPageMax = 5
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.LogFile == "" {
		cfg.Logging.LogFile = filepath.Join(HomeDir(), "daemon.log")
	}

	if cfg.Daemon.SocketPath == "" {
		cfg.Daemon.SocketPath = filepath.Join(HomeDir(), "daemon.sock")
	}
	if cfg.Daemon.HTTPAddr == "" {
		cfg.Daemon.HTTPAddr = "localhost:9999"
	}
	if cfg.Daemon.ReadTimeout == 0 {
		cfg.Daemon.ReadTimeout = 5 * time.Second
	}
	if cfg.Daemon.RateLimitPerHour == 0 {
		cfg.Daemon.RateLimitPerHour = 3600
	}
	if cfg.Daemon.RateBurst == 0 {
		cfg.Daemon.RateBurst = 30
	}
}
