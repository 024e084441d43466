package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shehryarbajwa/decoyd/internal/api"
	"github.com/shehryarbajwa/decoyd/internal/config"
	"github.com/shehryarbajwa/decoyd/internal/control"
	"github.com/shehryarbajwa/decoyd/internal/ratelimit"
	"github.com/shehryarbajwa/decoyd/internal/scheduler"
	"github.com/shehryarbajwa/decoyd/internal/session"
	"github.com/shehryarbajwa/decoyd/internal/timing"
	"github.com/shehryarbajwa/decoyd/internal/tracker"
)

const (
	httpShutdownTimeout    = 10 * time.Second
	sessionShutdownTimeout = 30 * time.Second

	limiterSweepInterval = 10 * time.Minute
	limiterIdle          = time.Hour
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the decoy daemon",
	Long: `Starts the long-running daemon. It answers JSON commands on a local
unix socket, serves the same commands over HTTP for the browser extension,
and fires any schedules configured in settings.yaml.

The daemon exits on SIGINT, SIGTERM or a shutdown command.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, dir, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting decoy daemon...", zap.String("config", dir))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	policy := timing.Default()
	factory, err := newFactory(ctx, cfg, policy, logger)
	if err != nil {
		return err
	}

	store := config.NewStore(cfg)
	activityLog := tracker.NewActivityLog(tracker.DefaultLogLines)
	logger.Info("✓ Config store initialized",
		zap.Int("sites", len(cfg.Catalogue.Sites())),
		zap.Int("queries", len(cfg.Catalogue.SearchQueries)))

	// Sessions are not tied to the signal context: they are stopped
	// explicitly during shutdown so browsers close in order.
	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	mgr := session.NewManager(runCtx, store, factory, activityLog, policy, logger.Named("session"))
	router := control.NewRouter(mgr, logger.Named("control"))
	logger.Info("✓ Session manager initialized")

	entries, err := scheduler.FromConfig(cfg.Schedule)
	if err != nil {
		return fmt.Errorf("invalid schedule: %w", err)
	}
	sched := scheduler.New(entries, mgr.RunScheduled, logger.Named("scheduler"))
	sched.Busy = mgr.Busy
	logger.Info("✓ Scheduler initialized", zap.Int("entries", len(entries)))

	limiter := ratelimit.NewLimiter(cfg.Daemon.RateLimitPerHour, cfg.Daemon.RateBurst)
	logger.Info("✓ Rate limiter initialized",
		zap.Int("per_hour", cfg.Daemon.RateLimitPerHour),
		zap.Int("burst", cfg.Daemon.RateBurst))

	srvCtx, cancelSrv := context.WithCancel(ctx)
	defer cancelSrv()

	apiLogger := logger.Named("api")
	stream := api.NewActivityStream(srvCtx, activityLog, apiLogger)
	handler := api.NewHandler(router, store, apiLogger)
	srv := api.NewServer(cfg.Daemon.HTTPAddr, handler.SetupRoutes(stream, limiter, cfg.Daemon.RateLimitPerHour))
	logger.Info("✓ HTTP routes configured")

	socket := control.NewServer(cfg.Daemon.SocketPath, router, cfg.Daemon.ReadTimeout, logger.Named("control"))

	g, gctx := errgroup.WithContext(srvCtx)

	g.Go(func() error {
		select {
		case <-router.ShutdownRequested():
			logger.Info("shutdown requested over control plane")
			cancelSrv()
		case <-gctx.Done():
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("🔌 Control socket listening", zap.String("path", cfg.Daemon.SocketPath))
		return socket.Serve(gctx)
	})

	g.Go(func() error {
		logger.Info("🚀 HTTP bridge starting", zap.String("url", "http://"+cfg.Daemon.HTTPAddr+"/api"))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("HTTP server forced to shutdown", zap.Error(err))
		}
		return nil
	})

	g.Go(func() error {
		if err := store.Watch(gctx, dir, applyOverrides, logger.Named("config")); err != nil {
			// hot reload is optional; the daemon keeps its loaded config
			logger.Warn("config watcher disabled", zap.Error(err))
		}
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(limiterSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if n := limiter.Sweep(limiterIdle); n > 0 {
					logger.Debug("rate limiter swept idle clients", zap.Int("dropped", n))
				}
			}
		}
	})

	if len(entries) > 0 {
		sched.Start(runCtx)
	}

	err = g.Wait()

	logger.Info("⏳ Shutting down daemon gracefully...")
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), sessionShutdownTimeout)
	defer cancel()
	if serr := mgr.Shutdown(shutdownCtx); serr != nil {
		logger.Warn("sessions did not stop in time", zap.Error(serr))
	}
	cancelRun()
	sched.Wait()

	if err != nil {
		logger.Error("daemon stopped with error", zap.Error(err))
		return err
	}
	logger.Info("✅ Daemon stopped cleanly")
	return nil
}
