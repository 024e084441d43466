package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/decoyd/internal/config"
	"github.com/shehryarbajwa/decoyd/internal/control"
	"github.com/shehryarbajwa/decoyd/pkg/models"
)

// Handler translates HTTP requests into control commands.
type Handler struct {
	router *control.Router
	config *config.Store
	logger *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(router *control.Router, cfg *config.Store, logger *zap.Logger) *Handler {
	return &Handler{
		router: router,
		config: cfg,
		logger: logger,
	}
}

// startRequest is the optional body of POST /api/start.
type startRequest struct {
	Duration *int `json:"duration"`
}

// Start handles POST /api/start
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, models.Fail("Invalid JSON: "+err.Error()))
		return
	}
	h.command(w, models.Command{Command: models.CommandStart, Duration: req.Duration})
}

// Stop handles POST /api/stop
func (h *Handler) Stop(w http.ResponseWriter, r *http.Request) {
	h.command(w, models.Command{Command: models.CommandStop})
}

// Status handles GET /api/status
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	h.command(w, models.Command{Command: models.CommandStatus})
}

// ActivityLog handles GET /api/activity-log
func (h *Handler) ActivityLog(w http.ResponseWriter, r *http.Request) {
	h.command(w, models.Command{Command: models.CommandActivityLog})
}

// Health handles GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": "healthy"})
}

// Config handles GET /api/config. Daemon paths are not exposed.
func (h *Handler) Config(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "config": h.config.Get()})
}

// command answers with 200 whatever the outcome; failures are in the body.
func (h *Handler) command(w http.ResponseWriter, cmd models.Command) {
	writeJSON(w, http.StatusOK, h.router.Handle(cmd))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
