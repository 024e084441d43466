package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/decoyd/internal/ratelimit"
)

// SetupRoutes configures the HTTP bridge. Every route also answers
// OPTIONS so CORS preflights reach the middleware.
func (h *Handler) SetupRoutes(stream *ActivityStream, rateLimiter *ratelimit.Limiter, requestsPerHour int) *mux.Router {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()

	// health and the long-lived stream are not rate limited
	api.HandleFunc("/health", h.Health).Methods("GET", "OPTIONS")
	api.Handle("/activity/ws", stream).Methods("GET")

	limited := api.PathPrefix("").Subrouter()
	limited.Use(RateLimitMiddleware(rateLimiter, requestsPerHour))

	limited.HandleFunc("/status", h.Status).Methods("GET", "OPTIONS")
	limited.HandleFunc("/activity-log", h.ActivityLog).Methods("GET", "OPTIONS")
	limited.HandleFunc("/config", h.Config).Methods("GET", "OPTIONS")
	limited.HandleFunc("/start", h.Start).Methods("POST", "OPTIONS")
	limited.HandleFunc("/stop", h.Stop).Methods("POST", "OPTIONS")

	r.Use(corsMiddleware)
	r.Use(loggingMiddleware(h.logger))

	return r
}

// NewServer wraps handler in an http.Server with the bridge's timeouts.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
