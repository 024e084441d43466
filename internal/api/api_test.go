package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/decoyd/internal/config"
	"github.com/shehryarbajwa/decoyd/internal/control"
	"github.com/shehryarbajwa/decoyd/internal/ratelimit"
	"github.com/shehryarbajwa/decoyd/internal/session"
	"github.com/shehryarbajwa/decoyd/internal/tracker"
	"github.com/shehryarbajwa/decoyd/pkg/models"
)

type fakeSessions struct {
	mu       sync.Mutex
	running  bool
	duration *int
	lines    []string
}

func (f *fakeSessions) Start(duration *int) (*session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return nil, session.ErrAlreadyRunning
	}
	f.running = true
	f.duration = duration
	return session.New(session.Options{}), nil
}

func (f *fakeSessions) Stop() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	was := f.running
	f.running = false
	return was
}

func (f *fakeSessions) Status() (bool, models.Stats, *models.SessionInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running, models.Stats{}, nil
}

func (f *fakeSessions) Activities() []string { return f.lines }

type bridge struct {
	sessions *fakeSessions
	log      *tracker.ActivityLog
	server   *httptest.Server
}

func newBridge(t *testing.T, perHour, burst int) *bridge {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	f := &fakeSessions{}
	log := tracker.NewActivityLog(tracker.DefaultLogLines)
	h := NewHandler(control.NewRouter(f, zap.NewNop()), config.NewStore(config.Default()), zap.NewNop())
	routes := h.SetupRoutes(NewActivityStream(ctx, log, zap.NewNop()), ratelimit.NewLimiter(perHour, burst), perHour)

	srv := httptest.NewServer(routes)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return &bridge{sessions: f, log: log, server: srv}
}

func (b *bridge) do(t *testing.T, method, path, body string) (*http.Response, models.Response) {
	t.Helper()
	req, err := http.NewRequest(method, b.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	var resp models.Response
	if res.Header.Get("Content-Type") == "application/json" {
		require.NoError(t, json.NewDecoder(res.Body).Decode(&resp))
	}
	return res, resp
}

func TestStatusDefaults(t *testing.T) {
	b := newBridge(t, 3600, 30)

	res, resp := b.do(t, http.MethodGet, "/api/status", "")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "*", res.Header.Get("Access-Control-Allow-Origin"))
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Running)
	assert.False(t, *resp.Running)
	require.NotNil(t, resp.Stats)
	assert.Equal(t, models.Stats{}, *resp.Stats)
}

func TestStartStop(t *testing.T) {
	b := newBridge(t, 3600, 30)

	_, resp := b.do(t, http.MethodPost, "/api/start", "")
	assert.True(t, resp.Success)

	// already running is still a 200
	res, resp := b.do(t, http.MethodPost, "/api/start", "")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.False(t, resp.Success)
	assert.Equal(t, "Service already running", resp.Error)

	_, resp = b.do(t, http.MethodPost, "/api/stop", "")
	assert.True(t, resp.Success)
	assert.Equal(t, "Service stopped", resp.Message)

	_, resp = b.do(t, http.MethodPost, "/api/start", `{"duration": 20}`)
	assert.True(t, resp.Success)
	require.NotNil(t, b.sessions.duration)
	assert.Equal(t, 20, *b.sessions.duration)
}

func TestStartBadBody(t *testing.T) {
	b := newBridge(t, 3600, 30)

	res, resp := b.do(t, http.MethodPost, "/api/start", `{"duration":`)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.False(t, resp.Success)
	assert.False(t, b.sessions.running)
}

func TestActivityLogEndpoint(t *testing.T) {
	b := newBridge(t, 3600, 30)

	_, resp := b.do(t, http.MethodGet, "/api/activity-log", "")
	require.NotNil(t, resp.Activities)
	assert.Empty(t, *resp.Activities)
}

func TestHealthAndConfig(t *testing.T) {
	b := newBridge(t, 3600, 30)

	res, err := http.Get(b.server.URL + "/api/health")
	require.NoError(t, err)
	var health map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&health))
	res.Body.Close()
	assert.Equal(t, "healthy", health["status"])

	res, err = http.Get(b.server.URL + "/api/config")
	require.NoError(t, err)
	var cfg struct {
		Success bool `json:"success"`
		Config  struct {
			Browser struct {
				Type string `json:"type"`
			} `json:"browser"`
		} `json:"config"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&cfg))
	res.Body.Close()
	assert.True(t, cfg.Success)
	assert.Equal(t, "rod", cfg.Config.Browser.Type)
}

func TestPreflight(t *testing.T) {
	b := newBridge(t, 3600, 30)

	res, _ := b.do(t, http.MethodOptions, "/api/start", "")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, res.Header.Get("Access-Control-Allow-Methods"), "POST")
	assert.False(t, b.sessions.running)
}

func TestRateLimit(t *testing.T) {
	b := newBridge(t, 60, 2)

	for i := 0; i < 2; i++ {
		res, _ := b.do(t, http.MethodGet, "/api/status", "")
		assert.Equal(t, http.StatusOK, res.StatusCode)
		assert.Equal(t, "60", res.Header.Get("X-RateLimit-Limit"))
	}
	res, resp := b.do(t, http.MethodGet, "/api/status", "")
	assert.Equal(t, http.StatusTooManyRequests, res.StatusCode)
	assert.Equal(t, "0", res.Header.Get("X-RateLimit-Remaining"))
	assert.False(t, resp.Success)

	// health is exempt
	res, _ = b.do(t, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestActivityStream(t *testing.T) {
	b := newBridge(t, 3600, 30)

	url := "ws" + strings.TrimPrefix(b.server.URL, "http") + "/api/activity/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return b.log.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	line := "2026-03-14 10:00:00 - Visited: https://news.example"
	b.log.Append(line)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, line, string(msg))
}
