package models

import "time"

// SessionStatus represents the current state of a decoy session
type SessionStatus string

const (
	StatusIdle    SessionStatus = "IDLE"
	StatusRunning SessionStatus = "RUNNING"
	StatusStopped SessionStatus = "STOPPED"
)

// Stats is the wire form of an activity snapshot, in the shape the
// browser extension expects.
type Stats struct {
	SitesVisited           int     `json:"sitesVisited"`
	ClicksMade             int     `json:"clicksMade"`
	SearchesPerformed      int     `json:"searchesPerformed"`
	FormsFilled            int     `json:"formsFilled"`
	SessionDurationMinutes float64 `json:"sessionDurationMinutes"`
}

// SessionInfo describes the session currently owned by the daemon
type SessionInfo struct {
	ID            string        `json:"id"`
	Status        SessionStatus `json:"status"`
	StartedAt     *time.Time    `json:"startedAt,omitempty"`
	MaxDuration   int           `json:"maxDurationMinutes"`
	ActivityCount int           `json:"activityCount"`
	// Opening is set while an IDLE session is launching its browser.
	Opening       bool          `json:"opening,omitempty"`
}
