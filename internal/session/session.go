// Package session runs decoy browsing sessions. A Session is one run of the
// activity loop; the Manager owns the single interactive session the
// control plane talks to.
package session

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/decoyd/internal/browser"
	"github.com/shehryarbajwa/decoyd/internal/config"
	"github.com/shehryarbajwa/decoyd/internal/timing"
	"github.com/shehryarbajwa/decoyd/internal/tracker"
	"github.com/shehryarbajwa/decoyd/pkg/models"
)

var (
	ErrAlreadyRunning = errors.New("session already running")
	ErrSessionStopped = errors.New("session already stopped")
	ErrDriverInit     = errors.New("failed to open browser")
)

// Probabilities and fixed pauses of the activity loop.
const (
	visitProbability     = 0.7
	extendDwellChance    = 0.15
	visitInteractionTime = 10.0
	searchDwellMin       = 10.0
	searchDwellMax       = 20.0
	searchInteraction    = 5.0
	fallbackQuery        = "random topic"
)

var searchEngines = []string{
	"https://www.google.com",
	"https://www.bing.com",
	"https://duckduckgo.com",
}

type interactionStyle string

const (
	styleDeepRead    interactionStyle = "deep_read"
	styleQuickBrowse interactionStyle = "quick_browse"
	styleMediaFocus  interactionStyle = "media_focus"
)

var interactionStyles = []interactionStyle{styleDeepRead, styleQuickBrowse, styleMediaFocus}

// Sleeper waits for d. It returns early with ctx.Err() when ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Options configure one session.
type Options struct {
	// Config is a snapshot; reloads do not reach a running session.
	Config *config.Config
	// Duration in minutes; 0 runs until stopped.
	Duration int
	Driver   browser.Driver
	Log      *tracker.ActivityLog
	Policy   *timing.Policy
	Logger   *zap.Logger
	Sleep    Sleeper
}

// Session is one run of the activity loop: IDLE, then RUNNING, then
// STOPPED for good.
type Session struct {
	id          string
	cfg         *config.Config
	maxDuration int
	driver      browser.Driver
	tracker     *tracker.Tracker
	policy      *timing.Policy
	logger      *zap.Logger
	sleep       Sleeper
	now         func() time.Time

	// stops the loop after this many activities when positive
	maxIterations int

	mu            sync.Mutex
	status        models.SessionStatus
	opening       bool
	startTime     *time.Time
	activityCount int
	final         *tracker.Stats
	cancel        context.CancelFunc

	closeOnce sync.Once
	doneOnce  sync.Once
	done      chan struct{}
}

// New creates an idle session. The driver is not opened until Start.
func New(opts Options) *Session {
	id := uuid.NewString()
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("session", id[:8]))

	policy := opts.Policy
	if policy == nil {
		policy = timing.Default()
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}

	return &Session{
		id:          id,
		cfg:         cfg,
		maxDuration: opts.Duration,
		driver:      opts.Driver,
		tracker:     tracker.New(opts.Log, logger),
		policy:      policy,
		logger:      logger,
		sleep:       sleep,
		now:         time.Now,
		status:      models.StatusIdle,
		done:        make(chan struct{}),
	}
}

func (s *Session) ID() string { return s.id }

// Start opens the driver and launches the activity loop on its own
// goroutine. It returns once the browser is open. The loop runs until Stop,
// expiry, a fatal driver error, or cancellation of ctx.
func (s *Session) Start(ctx context.Context) error {
	if err := s.claim(); err != nil {
		return err
	}
	return s.open(ctx)
}

// Run starts the session and blocks until it has stopped.
func (s *Session) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-s.done
	return nil
}

// claim reserves the IDLE to RUNNING transition for the caller.
func (s *Session) claim() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.status == models.StatusRunning || s.opening:
		return ErrAlreadyRunning
	case s.status == models.StatusStopped:
		return ErrSessionStopped
	}
	s.opening = true
	return nil
}

func (s *Session) open(ctx context.Context) error {
	err := s.driver.Open(ctx, s.cfg.Browser.IsHeadless())

	s.mu.Lock()
	s.opening = false
	if err != nil {
		stopped := s.status == models.StatusStopped
		s.mu.Unlock()
		if stopped {
			s.markDone()
		}
		s.logger.Error("failed to open browser", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrDriverInit, err)
	}
	if s.status == models.StatusStopped {
		// stopped while the browser was still starting
		s.mu.Unlock()
		s.closeDriver()
		s.markDone()
		return ErrSessionStopped
	}

	now := s.now()
	s.startTime = &now
	s.status = models.StatusRunning
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	s.logger.Info("🚀 decoy session started",
		zap.Int("max_duration_minutes", s.maxDuration),
		zap.String("browser", s.cfg.Browser.Type))

	go s.loop(loopCtx)
	return nil
}

// Stop ends the session and freezes its counters. It is safe from any
// state and any goroutine and returns without waiting for the loop; use
// Done to wait.
func (s *Session) Stop() {
	s.mu.Lock()
	prev := s.status
	opening := s.opening
	s.status = models.StatusStopped
	s.startTime = nil
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.snapshot()
	if prev == models.StatusIdle && !opening {
		s.markDone()
	}
}

// Done is closed once the session has stopped and released its browser.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Active reports whether the session is running or still opening its
// browser.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status == models.StatusRunning || s.opening
}

func (s *Session) running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status == models.StatusRunning
}

// Stats returns the live counters, or the final snapshot after stop.
func (s *Session) Stats() tracker.Stats {
	s.mu.Lock()
	final := s.final
	s.mu.Unlock()
	if final != nil {
		return *final
	}
	return s.tracker.Summary()
}

// Info describes the session for status queries.
func (s *Session) Info() models.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := models.SessionInfo{
		ID:            s.id,
		Status:        s.status,
		MaxDuration:   s.maxDuration,
		ActivityCount: s.activityCount,
		Opening:       s.opening,
	}
	if s.startTime != nil {
		t := *s.startTime
		info.StartedAt = &t
	}
	return info
}

func (s *Session) expired() bool {
	if s.maxDuration <= 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startTime == nil {
		return false
	}
	return s.now().Sub(*s.startTime) >= time.Duration(s.maxDuration)*time.Minute
}

func (s *Session) loop(ctx context.Context) {
	defer s.finish()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("activity loop panicked",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
		}
	}()

	for s.running() && ctx.Err() == nil {
		if s.expired() {
			s.logger.Info("⏰ session duration expired")
			return
		}

		if err := s.step(ctx); err != nil {
			if errors.Is(err, browser.ErrFatal) {
				s.logger.Error("browser failed, stopping session", zap.Error(err))
			}
			return
		}

		s.mu.Lock()
		s.activityCount++
		count := s.activityCount
		s.mu.Unlock()

		if s.maxIterations > 0 && count >= s.maxIterations {
			return
		}

		interval := s.policy.Duration(s.cfg.Activity.ClickIntervalMin, s.cfg.Activity.ClickIntervalMax)
		s.logger.Info("activity complete",
			zap.Int("activity", count),
			zap.Duration("next_in", interval.Round(100*time.Millisecond)))
		if s.sleep(ctx, interval) != nil {
			return
		}
	}
}

// finish moves the session to STOPPED and releases the driver exactly once.
func (s *Session) finish() {
	s.Stop()
	s.closeDriver()
	stats := s.snapshot()
	s.logger.Info("🛑 decoy session ended",
		zap.Int("sites_visited", stats.WebsitesVisited),
		zap.Int("clicks_made", stats.ClicksMade),
		zap.Int("searches_performed", stats.SearchQueries),
		zap.Int("forms_filled", stats.FormsFilled),
		zap.Float64("duration_minutes", stats.DurationMinutes()))
	s.markDone()
}

func (s *Session) snapshot() tracker.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.final == nil {
		stats := s.tracker.Summary()
		s.final = &stats
	}
	return *s.final
}

func (s *Session) closeDriver() {
	s.closeOnce.Do(func() {
		if err := s.driver.Close(); err != nil {
			s.logger.Warn("failed to close browser", zap.Error(err))
		}
	})
}

func (s *Session) markDone() {
	s.doneOnce.Do(func() { close(s.done) })
}
