package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/decoyd/internal/session"
	"github.com/shehryarbajwa/decoyd/internal/timing"
	"github.com/shehryarbajwa/decoyd/internal/tracker"
)

var runDuration int

// runCmd drives one session in the foreground without a daemon.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one decoy session in the foreground",
	Long: `Opens a browser and runs the activity loop in this process until the
duration elapses or the process is interrupted, then prints the session
summary as JSON.

Example:
  decoyd run --duration 30`,
	Args: cobra.NoArgs,
	RunE: runForeground,
}

func init() {
	runCmd.Flags().IntVarP(&runDuration, "duration", "d", 0, "Session duration in minutes, 0 runs until interrupted (default: service.session_duration)")
}

func runForeground(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	minutes := cfg.Service.SessionDuration
	if cmd.Flags().Changed("duration") {
		if runDuration < 0 {
			return fmt.Errorf("duration must be >= 0, got %d", runDuration)
		}
		minutes = runDuration
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	policy := timing.Default()
	factory, err := newFactory(ctx, cfg, policy, logger)
	if err != nil {
		return err
	}
	driver, err := factory.New(cfg.Browser)
	if err != nil {
		return fmt.Errorf("%w: %w", session.ErrDriverInit, err)
	}

	sess := session.New(session.Options{
		Config:   cfg,
		Duration: minutes,
		Driver:   driver,
		Log:      tracker.NewActivityLog(tracker.DefaultLogLines),
		Policy:   policy,
		Logger:   logger.Named("session"),
	})

	logger.Info("🚀 Running decoy session",
		zap.String("session", sess.ID()),
		zap.Int("duration_minutes", minutes))
	if err := sess.Run(ctx); err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(sess.Stats().Wire())
}
