// Package control answers start, stop, status, activity-log and shutdown
// commands. The Router holds the command semantics; the socket server and
// the HTTP bridge only translate their wire formats to it.
package control

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/decoyd/internal/session"
	"github.com/shehryarbajwa/decoyd/pkg/models"
)

// Sessions is the session manager as the control plane sees it.
type Sessions interface {
	Start(duration *int) (*session.Session, error)
	Stop() bool
	Status() (bool, models.Stats, *models.SessionInfo)
	Activities() []string
}

// Router dispatches commands to the single session manager.
type Router struct {
	sessions Sessions
	logger   *zap.Logger

	shutdownOnce sync.Once
	shutdown     chan struct{}
}

func NewRouter(sessions Sessions, logger *zap.Logger) *Router {
	return &Router{
		sessions: sessions,
		logger:   logger,
		shutdown: make(chan struct{}),
	}
}

// ShutdownRequested is closed after a shutdown command has been answered.
func (r *Router) ShutdownRequested() <-chan struct{} {
	return r.shutdown
}

// Handle executes one command. It never blocks on a running session.
func (r *Router) Handle(cmd models.Command) models.Response {
	switch cmd.Command {
	case models.CommandStart:
		return r.start(cmd.Duration)
	case models.CommandStop:
		return r.stop()
	case models.CommandStatus:
		return r.status()
	case models.CommandActivityLog:
		return r.activityLog()
	case models.CommandShutdown:
		return r.shutdownDaemon()
	default:
		r.logger.Warn("unknown command", zap.String("command", cmd.Command))
		return models.Fail("Unknown command: " + cmd.Command)
	}
}

func (r *Router) start(duration *int) models.Response {
	if duration != nil && *duration < 0 {
		return models.Fail("duration must be >= 0")
	}
	sess, err := r.sessions.Start(duration)
	if errors.Is(err, session.ErrAlreadyRunning) {
		return models.Fail("Service already running")
	}
	if err != nil {
		r.logger.Error("failed to start session", zap.Error(err))
		return models.Fail(err.Error())
	}

	r.logger.Info("starting decoy session", zap.String("session", sess.ID()))
	resp := models.OK("Service started")
	info := sess.Info()
	resp.Session = &info
	return resp
}

func (r *Router) stop() models.Response {
	if !r.sessions.Stop() {
		return models.OK("Service already stopped")
	}
	r.logger.Info("stopping decoy session")
	return models.OK("Service stopped")
}

func (r *Router) status() models.Response {
	running, stats, info := r.sessions.Status()
	return models.Response{
		Success: true,
		Running: &running,
		Stats:   &stats,
		Session: info,
	}
}

func (r *Router) activityLog() models.Response {
	lines := r.sessions.Activities()
	if lines == nil {
		lines = []string{}
	}
	return models.Response{Success: true, Activities: &lines}
}

func (r *Router) shutdownDaemon() models.Response {
	r.logger.Info("shutdown command received")
	r.sessions.Stop()
	r.shutdownOnce.Do(func() { close(r.shutdown) })
	return models.OK("Daemon shutting down")
}
