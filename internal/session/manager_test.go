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
	"go.uber.org/zap"

	"github.com/shehryarbajwa/decoyd/internal/config"
	"github.com/shehryarbajwa/decoyd/internal/timing"
	"github.com/shehryarbajwa/decoyd/internal/tracker"
	"github.com/shehryarbajwa/decoyd/pkg/models"
)

func newTestManager(t *testing.T, f *fakeFactory) *Manager {
	t.Helper()
	m := NewManager(context.Background(), config.NewStore(testConfig()), f,
		tracker.NewActivityLog(tracker.DefaultLogLines), timing.New(9), zap.NewNop())
	m.sleep = blockSleep
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, m.Shutdown(ctx))
	})
	return m
}

func TestManagerStatusBeforeAnySession(t *testing.T) {
	m := newTestManager(t, &fakeFactory{})

	running, stats, info := m.Status()
	assert.False(t, running)
	assert.Equal(t, models.Stats{}, stats)
	assert.Nil(t, info)
	assert.Empty(t, m.Activities())
	assert.False(t, m.Stop())
}

func TestManagerStartStop(t *testing.T) {
	f := &fakeFactory{}
	m := newTestManager(t, f)

	sess, err := m.Start(nil)
	require.NoError(t, err)
	assert.True(t, m.Busy())

	running, _, info := m.Status()
	assert.True(t, running)
	require.NotNil(t, info)
	assert.Equal(t, sess.ID(), info.ID)

	_, err = m.Start(nil)
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	assert.True(t, m.Stop())
	waitDone(t, sess)

	running, stats, _ := m.Status()
	assert.False(t, running)
	assert.Equal(t, models.Stats{}, stats)
	assert.False(t, m.Stop())

	// a new session is a fresh object
	next, err := m.Start(nil)
	require.NoError(t, err)
	assert.NotEqual(t, sess.ID(), next.ID())
	assert.Len(t, f.drivers(), 2)
}

func TestManagerStatusWhileOpening(t *testing.T) {
	gate := make(chan struct{})
	f := &fakeFactory{next: func() *fakeDriver { return &fakeDriver{openGate: gate} }}
	m := newTestManager(t, f)

	_, err := m.Start(nil)
	require.NoError(t, err)

	running, _, info := m.Status()
	assert.True(t, running)
	require.NotNil(t, info)
	assert.Equal(t, models.StatusIdle, info.Status)
	assert.True(t, info.Opening)

	close(gate)
	require.Eventually(t, func() bool {
		_, _, info := m.Status()
		return info != nil && info.Status == models.StatusRunning
	}, 5*time.Second, 10*time.Millisecond)

	_, _, info = m.Status()
	assert.False(t, info.Opening)
}

func TestManagerDurationOverride(t *testing.T) {
	m := newTestManager(t, &fakeFactory{})

	d := 15
	sess, err := m.Start(&d)
	require.NoError(t, err)
	assert.Equal(t, 15, sess.Info().MaxDuration)
}

func TestManagerConcurrentStart(t *testing.T) {
	m := newTestManager(t, &fakeFactory{})

	var wg sync.WaitGroup
	var wins atomic.Int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Start(nil); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, wins.Load())
}

func TestManagerDriverInitFailureFreesSlot(t *testing.T) {
	f := &fakeFactory{next: func() *fakeDriver {
		return &fakeDriver{openErr: errors.New("no chrome")}
	}}
	m := newTestManager(t, f)

	_, err := m.Start(nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return f.drivers()[0].calls().opens == 1 && !m.Busy()
	}, 5*time.Second, 10*time.Millisecond)

	running, _, _ := m.Status()
	assert.False(t, running)

	_, err = m.Start(nil)
	assert.NoError(t, err)
}

func TestManagerFactoryError(t *testing.T) {
	m := newTestManager(t, &fakeFactory{failErr: errors.New("unsupported browser backend")})

	_, err := m.Start(nil)
	assert.ErrorIs(t, err, ErrDriverInit)
	assert.False(t, m.Busy())
}

func TestManagerRunScheduled(t *testing.T) {
	f := &fakeFactory{}
	m := newTestManager(t, f)
	m.sleep = noSleep

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- m.RunScheduled(ctx, 5) }()

	require.Eventually(t, m.Busy, 5*time.Second, 10*time.Millisecond)

	// scheduled sessions leave the interactive slot free
	running, _, _ := m.Status()
	assert.False(t, running)

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduled session did not stop")
	}
	assert.False(t, m.Busy())
	assert.Equal(t, 1, f.drivers()[0].calls().closes)
}

func TestManagerShutdownStopsEverything(t *testing.T) {
	f := &fakeFactory{}
	m := NewManager(context.Background(), config.NewStore(testConfig()), f,
		tracker.NewActivityLog(tracker.DefaultLogLines), timing.New(9), zap.NewNop())
	m.sleep = blockSleep

	sess, err := m.Start(nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))
	waitDone(t, sess)

	_, err = m.Start(nil)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, m.RunScheduled(ctx, 1), ErrClosed)
}
