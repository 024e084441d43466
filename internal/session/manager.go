package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/decoyd/internal/browser"
	"github.com/shehryarbajwa/decoyd/internal/config"
	"github.com/shehryarbajwa/decoyd/internal/timing"
	"github.com/shehryarbajwa/decoyd/internal/tracker"
	"github.com/shehryarbajwa/decoyd/pkg/models"
)

// ErrClosed is returned once Shutdown has begun.
var ErrClosed = errors.New("session manager is shut down")

// DriverFactory builds a fresh, unopened driver for each session.
type DriverFactory interface {
	New(cfg config.BrowserConfig) (browser.Driver, error)
}

// Manager owns the one interactive session the control plane starts and
// stops, plus any sessions the scheduler runs alongside it.
type Manager struct {
	ctx     context.Context
	cfg     *config.Store
	drivers DriverFactory
	log     *tracker.ActivityLog
	policy  *timing.Policy
	logger  *zap.Logger
	sleep   Sleeper

	mu        sync.Mutex
	current   *Session
	scheduled map[*Session]struct{}
	closed    bool
	wg        sync.WaitGroup
}

// NewManager creates a manager whose sessions live no longer than ctx.
func NewManager(ctx context.Context, cfg *config.Store, drivers DriverFactory, log *tracker.ActivityLog, policy *timing.Policy, logger *zap.Logger) *Manager {
	return &Manager{
		ctx:       ctx,
		cfg:       cfg,
		drivers:   drivers,
		log:       log,
		policy:    policy,
		logger:    logger,
		scheduled: make(map[*Session]struct{}),
	}
}

func (m *Manager) newSession(duration *int) (*Session, error) {
	cfg := m.cfg.Get()
	d, err := m.drivers.New(cfg.Browser)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDriverInit, err)
	}

	minutes := cfg.Service.SessionDuration
	if duration != nil {
		minutes = *duration
	}
	return New(Options{
		Config:   cfg,
		Duration: minutes,
		Driver:   d,
		Log:      m.log,
		Policy:   m.policy,
		Logger:   m.logger,
		Sleep:    m.sleep,
	}), nil
}

// Start begins a new interactive session in the background. It returns
// ErrAlreadyRunning when one is running or still opening its browser. A
// nil duration uses the configured session duration.
func (m *Manager) Start(duration *int) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	if m.current != nil && m.current.Active() {
		return nil, ErrAlreadyRunning
	}

	sess, err := m.newSession(duration)
	if err != nil {
		return nil, err
	}
	if err := sess.claim(); err != nil {
		return nil, err
	}
	m.current = sess

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		// open logs its own failure
		if err := sess.open(m.ctx); err != nil {
			return
		}
		<-sess.Done()
	}()
	return sess, nil
}

// Stop stops the interactive session. It reports whether one was active.
func (m *Manager) Stop() bool {
	m.mu.Lock()
	sess := m.current
	m.mu.Unlock()

	if sess == nil {
		return false
	}
	active := sess.Active()
	sess.Stop()
	return active
}

// Current returns the interactive session, or nil if none was started.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Status reports whether the interactive session is active together with
// its counters. Counters are zero when nothing is running. A session still
// opening its browser counts as running, since start is refused until it
// settles; its info then reads IDLE with Opening set.
func (m *Manager) Status() (bool, models.Stats, *models.SessionInfo) {
	sess := m.Current()
	if sess == nil || !sess.Active() {
		return false, models.Stats{}, nil
	}
	info := sess.Info()
	return true, sess.Stats().Wire(), &info
}

// Activities returns recent visit and search lines from every session.
func (m *Manager) Activities() []string {
	return m.log.Activities()
}

// Busy reports whether any session, interactive or scheduled, is active.
func (m *Manager) Busy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil && m.current.Active() {
		return true
	}
	for sess := range m.scheduled {
		if sess.Active() {
			return true
		}
	}
	return false
}

// RunScheduled runs an independent session for duration minutes and waits
// for it to end. It does not occupy the interactive slot.
func (m *Manager) RunScheduled(ctx context.Context, duration int) error {
	sess, err := m.newSession(&duration)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.scheduled[sess] = struct{}{}
	m.wg.Add(1)
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.scheduled, sess)
		m.mu.Unlock()
		m.wg.Done()
	}()

	// stop with the daemon as well as with the caller
	stop := context.AfterFunc(m.ctx, sess.Stop)
	defer stop()

	return sess.Run(ctx)
}

// Shutdown stops every session and waits for their browsers to close.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	sessions := make([]*Session, 0, len(m.scheduled)+1)
	if m.current != nil {
		sessions = append(sessions, m.current)
	}
	for sess := range m.scheduled {
		sessions = append(sessions, sess)
	}
	m.mu.Unlock()

	for _, sess := range sessions {
		sess.Stop()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for sessions to stop: %w", ctx.Err())
	}
}
