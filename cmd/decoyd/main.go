package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/decoyd/internal/browser"
	"github.com/shehryarbajwa/decoyd/internal/config"
	"github.com/shehryarbajwa/decoyd/internal/logging"
	"github.com/shehryarbajwa/decoyd/internal/profile"
	"github.com/shehryarbajwa/decoyd/internal/timing"
)

var (
	// Global flags
	configDir  string
	socketPath string
	verbose    bool
)

// prepareTimeout bounds image pulls and browser downloads at startup.
const prepareTimeout = 5 * time.Minute

var rootCmd = &cobra.Command{
	Use:   "decoyd",
	Short: "Decoy browsing daemon",
	Long: `decoyd generates synthetic browsing activity (site visits, searches,
clicks, scrolling, dwell time) in a headless browser to blur the signal
behavioral trackers collect.

Run "decoyd serve" to start the background daemon, then control it with
start, stop, status, activity-log and shutdown.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configDir, "config", "c", "", "Config directory (default: $DECOY_CONFIG_DIR or ./config)")
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "", "Control socket path (overrides daemon.socket_path)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(clientCommands()...)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads .env, the config directory and env overrides, then
// applies command line flags. It returns the resolved directory too so the
// daemon can watch it.
func loadConfig() (*config.Config, string, error) {
	// .env is optional
	_ = godotenv.Load()

	dir := config.Dir(configDir)
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, "", err
	}
	if err := applyOverrides(cfg); err != nil {
		return nil, "", err
	}
	return cfg, dir, nil
}

// applyOverrides layers env and flags over a freshly loaded config. It is
// also applied on every hot reload.
func applyOverrides(cfg *config.Config) error {
	if err := config.ApplyEnv(cfg); err != nil {
		return fmt.Errorf("apply environment: %w", err)
	}
	if socketPath != "" {
		cfg.Daemon.SocketPath = socketPath
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	return nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.Logging.Level, cfg.Logging.LogFile)
}

// newFactory builds the driver factory for cfg and prepares its backend.
func newFactory(ctx context.Context, cfg *config.Config, policy *timing.Policy, logger *zap.Logger) (*browser.Factory, error) {
	var profiles *profile.Store
	if cfg.Browser.Profile != "" {
		var err error
		profiles, err = profile.NewStore(cfg.Browser.ProfileDir)
		if err != nil {
			return nil, fmt.Errorf("failed to create profile store: %w", err)
		}
		logger.Info("✓ Profile store initialized",
			zap.String("profile", cfg.Browser.Profile),
			zap.String("dir", cfg.Browser.ProfileDir))
	}

	factory := browser.NewFactory(profiles, policy, logger.Named("browser"))

	prepCtx, cancel := context.WithTimeout(ctx, prepareTimeout)
	defer cancel()

	logger.Info("⏳ Preparing browser backend...", zap.String("backend", cfg.Browser.Type))
	if err := factory.Prepare(prepCtx, cfg.Browser); err != nil {
		return nil, err
	}
	logger.Info("✓ Browser backend ready", zap.Strings("available", factory.Backends()))
	return factory, nil
}
