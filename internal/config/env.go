package config

import (
	"os"
	"strconv"
)

// Environment overrides, read after an optional .env file is loaded.
const (
	EnvConfigDir = "DECOY_CONFIG_DIR"
	EnvSocket    = "DECOY_SOCKET"
	EnvHTTPAddr  = "DECOY_HTTP_ADDR"
	EnvBrowser   = "DECOY_BROWSER"
	EnvHeadless  = "DECOY_HEADLESS"
	EnvLogLevel  = "DECOY_LOG_LEVEL"
)

// ApplyEnv overlays environment overrides onto cfg and revalidates it.
func ApplyEnv(cfg *Config) error {
	if v := os.Getenv(EnvSocket); v != "" {
		cfg.Daemon.SocketPath = v
	}
	if v := os.Getenv(EnvHTTPAddr); v != "" {
		cfg.Daemon.HTTPAddr = v
	}
	if v := os.Getenv(EnvBrowser); v != "" {
		cfg.Browser.Type = v
	}
	if v := os.Getenv(EnvHeadless); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		cfg.Browser.Headless = &b
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = v
	}
	return Validate(cfg)
}

// Dir resolves the config directory: explicit flag, then env, then ./config.
func Dir(flag string) string {
	if flag != "" {
		return flag
	}
	if v := os.Getenv(EnvConfigDir); v != "" {
		return v
	}
	return "config"
}
