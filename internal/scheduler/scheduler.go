// Package scheduler starts bounded decoy sessions on recurring triggers.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// DefaultTick is how often due entries are checked.
const DefaultTick = time.Minute

// RunFunc runs one fresh session for duration minutes and returns when it
// has ended.
type RunFunc func(ctx context.Context, duration int) error

type slot struct {
	entry Entry
	next  time.Time
	// held while this entry's session runs
	sem *semaphore.Weighted
}

// Scheduler fires each entry on its own; two entries due on the same tick
// both run. An entry whose previous session is still running is skipped.
type Scheduler struct {
	run    RunFunc
	logger *zap.Logger
	now    func() time.Time
	tick   time.Duration

	// Busy, when set, reports whether another session is active so an
	// overlapping firing can be logged.
	Busy func() bool

	mu       sync.Mutex
	slots    []*slot
	cancel   context.CancelFunc
	loopDone chan struct{}
	runs     sync.WaitGroup
}

// New creates a stopped scheduler.
func New(entries []Entry, run RunFunc, logger *zap.Logger) *Scheduler {
	s := &Scheduler{
		run:    run,
		logger: logger,
		now:    time.Now,
		tick:   DefaultTick,
	}
	for _, e := range entries {
		s.slots = append(s.slots, &slot{entry: e, sem: semaphore.NewWeighted(1)})
	}
	return s
}

// Entries returns the registered entries and their next due times.
func (s *Scheduler) Entries() ([]Entry, []time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]Entry, len(s.slots))
	next := make([]time.Time, len(s.slots))
	for i, sl := range s.slots {
		entries[i] = sl.entry
		next[i] = sl.next
	}
	return entries, next
}

// Start begins polling. Fired sessions derive from ctx; cancelling it
// ends both. Calling Start on a running scheduler does nothing.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return
	}
	now := s.now()
	for _, sl := range s.slots {
		sl.next = sl.entry.Next(now)
		s.logger.Info("schedule registered",
			zap.Stringer("entry", sl.entry),
			zap.Int("duration_minutes", sl.entry.Duration),
			zap.Time("next", sl.next))
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.loopDone = make(chan struct{})
	go s.loop(loopCtx, ctx, s.loopDone)
}

// Stop ends polling. Sessions already fired keep running; use Wait for
// them.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.loopDone
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the scheduler is polling.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Wait blocks until every fired session has returned.
func (s *Scheduler) Wait() {
	s.runs.Wait()
}

// loop polls until ctx is done. Fired sessions get runCtx so stopping the
// scheduler leaves them running.
func (s *Scheduler) loop(ctx, runCtx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fireDue(runCtx, s.now())
		}
	}
}

// fireDue starts every entry due at now.
func (s *Scheduler) fireDue(ctx context.Context, now time.Time) {
	s.mu.Lock()
	var due []*slot
	for _, sl := range s.slots {
		if !now.Before(sl.next) {
			due = append(due, sl)
			sl.next = sl.entry.Next(now)
		}
	}
	s.mu.Unlock()

	for _, sl := range due {
		s.fire(ctx, sl)
	}
}

func (s *Scheduler) fire(ctx context.Context, sl *slot) {
	if !sl.sem.TryAcquire(1) {
		s.logger.Info("skipping scheduled session, previous run still active",
			zap.Stringer("entry", sl.entry))
		return
	}
	if s.Busy != nil && s.Busy() {
		s.logger.Warn("scheduled session overlaps an active session",
			zap.Stringer("entry", sl.entry))
	}

	s.logger.Info("⏰ starting scheduled session",
		zap.Stringer("entry", sl.entry),
		zap.Int("duration_minutes", sl.entry.Duration))

	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		defer sl.sem.Release(1)

		if err := s.run(ctx, sl.entry.Duration); err != nil {
			s.logger.Error("scheduled session failed",
				zap.Stringer("entry", sl.entry),
				zap.Error(err))
		}
	}()
}
