package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/decoyd/internal/browser"
	"github.com/shehryarbajwa/decoyd/internal/timing"
	"github.com/shehryarbajwa/decoyd/internal/tracker"
	"github.com/shehryarbajwa/decoyd/pkg/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestSession(d *fakeDriver, sleep Sleeper, duration int) *Session {
	return New(Options{
		Config:   testConfig(),
		Duration: duration,
		Driver:   d,
		Log:      tracker.NewActivityLog(tracker.DefaultLogLines),
		Policy:   timing.New(42),
		Logger:   zap.NewNop(),
		Sleep:    sleep,
	})
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not stop")
	}
}

func TestFiveIterations(t *testing.T) {
	d := &fakeDriver{}
	s := newTestSession(d, noSleep, 0)
	s.maxIterations = 5

	require.NoError(t, s.Run(context.Background()))

	info := s.Info()
	assert.Equal(t, 5, info.ActivityCount)
	assert.Equal(t, models.StatusStopped, info.Status)
	assert.Nil(t, info.StartedAt)

	stats := s.Stats()
	assert.Equal(t, 5, stats.WebsitesVisited+stats.SearchQueries)
	assert.Equal(t, stats.SearchQueries, stats.FormsFilled)
	assert.Equal(t, 1, d.calls().closes)
}

func TestStartThenImmediateStop(t *testing.T) {
	d := &fakeDriver{visitGate: make(chan struct{})}
	s := newTestSession(d, noSleep, 0)

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.Active())
	s.Stop()
	close(d.visitGate)
	waitDone(t, s)

	stats := s.Stats()
	assert.Zero(t, stats.WebsitesVisited)
	assert.Zero(t, stats.ClicksMade)
	assert.Zero(t, stats.SearchQueries)
	assert.Zero(t, stats.FormsFilled)
	assert.Equal(t, 1, d.calls().closes)
}

func TestStopIsIdempotent(t *testing.T) {
	d := &fakeDriver{}
	s := newTestSession(d, blockSleep, 0)
	require.NoError(t, s.Start(context.Background()))

	for i := 0; i < 2; i++ {
		s.Stop()
		info := s.Info()
		assert.Equal(t, models.StatusStopped, info.Status)
		assert.Nil(t, info.StartedAt)
		assert.False(t, s.Active())
	}
	waitDone(t, s)
	assert.Equal(t, 1, d.calls().closes)
}

func TestStopBeforeStart(t *testing.T) {
	d := &fakeDriver{}
	s := newTestSession(d, noSleep, 0)

	s.Stop()
	waitDone(t, s)
	assert.ErrorIs(t, s.Start(context.Background()), ErrSessionStopped)
	assert.Zero(t, d.calls().opens)
	assert.Zero(t, d.calls().closes)
}

func TestConcurrentStartExactlyOneWins(t *testing.T) {
	d := &fakeDriver{}
	s := newTestSession(d, blockSleep, 0)

	const callers = 8
	var wg sync.WaitGroup
	var wins, rejected atomic.Int32
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Start(context.Background())
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, ErrAlreadyRunning):
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, wins.Load())
	assert.EqualValues(t, callers-1, rejected.Load())
	assert.Equal(t, 1, d.calls().opens)

	s.Stop()
	waitDone(t, s)
}

func TestDriverInitFailureLeavesSessionIdle(t *testing.T) {
	d := &fakeDriver{openErr: errors.New("chrome not found")}
	s := newTestSession(d, noSleep, 0)

	err := s.Start(context.Background())
	require.ErrorIs(t, err, ErrDriverInit)
	assert.Contains(t, err.Error(), "chrome not found")

	info := s.Info()
	assert.Equal(t, models.StatusIdle, info.Status)
	assert.Nil(t, info.StartedAt)
	assert.False(t, s.Active())

	// a failed open can be retried on the same session
	d.mu.Lock()
	d.openErr = nil
	d.mu.Unlock()
	require.NoError(t, s.Start(context.Background()))
	s.Stop()
	waitDone(t, s)
}

func TestSessionExpires(t *testing.T) {
	d := &fakeDriver{}
	s := newTestSession(d, noSleep, 1)

	base := time.Now()
	var ticks atomic.Int64
	s.now = func() time.Time {
		return base.Add(time.Duration(ticks.Add(1)) * 10 * time.Second)
	}

	require.NoError(t, s.Start(context.Background()))
	waitDone(t, s)

	assert.Equal(t, models.StatusStopped, s.Info().Status)
	assert.Positive(t, s.Info().ActivityCount)
	assert.Equal(t, 1, d.calls().closes)
}

func TestNavigationFailureIsSkipped(t *testing.T) {
	d := &fakeDriver{visitErr: browser.ErrNavigation}
	s := newTestSession(d, noSleep, 0)
	s.maxIterations = 4

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, 4, s.Info().ActivityCount)
	assert.Zero(t, s.Stats().WebsitesVisited)
	assert.Zero(t, s.Stats().SearchQueries)
}

func TestFormNotFoundIsNoop(t *testing.T) {
	d := &fakeDriver{formErr: browser.ErrFormNotFound}
	s := newTestSession(d, noSleep, 0)
	s.cfg.Catalogue.Categories = nil
	s.maxIterations = 3

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, 3, s.Info().ActivityCount)
	assert.Equal(t, 3, d.calls().forms)
	assert.Zero(t, s.Stats().SearchQueries)
	assert.Zero(t, d.calls().clicks)
}

func TestFatalDriverErrorStopsSession(t *testing.T) {
	d := &fakeDriver{visitErr: browser.ErrFatal}
	s := newTestSession(d, noSleep, 0)

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, models.StatusStopped, s.Info().Status)
	assert.Equal(t, 1, d.calls().closes)
}

func TestPanicInLoopStopsSession(t *testing.T) {
	d := &fakeDriver{panicOn: "visit"}
	s := newTestSession(d, noSleep, 0)

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, models.StatusStopped, s.Info().Status)
	assert.Equal(t, 1, d.calls().closes)
}

func TestContextCancellationStopsSession(t *testing.T) {
	d := &fakeDriver{}
	s := newTestSession(d, blockSleep, 0)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	cancel()
	waitDone(t, s)

	assert.False(t, s.Active())
	assert.Equal(t, 1, d.calls().closes)
}

func TestActivityLogIsShared(t *testing.T) {
	log := tracker.NewActivityLog(tracker.DefaultLogLines)
	for i := 0; i < 2; i++ {
		s := New(Options{
			Config: testConfig(),
			Driver: &fakeDriver{},
			Log:    log,
			Policy: timing.New(uint64(i)),
			Logger: zap.NewNop(),
			Sleep:  noSleep,
		})
		s.maxIterations = 1
		require.NoError(t, s.Run(context.Background()))
	}
	assert.Len(t, log.Activities(), 2)
}
