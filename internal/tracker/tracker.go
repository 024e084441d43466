// Package tracker counts what a decoy session has done.
package tracker

import (
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/decoyd/pkg/models"
)

const (
	visitedMarker  = "Visited:"
	searchedMarker = "Searched:"
	clickedMarker  = "Clicked:"
	formMarker     = "Form filled"
)

// Stats is a point-in-time copy of a tracker's counters.
type Stats struct {
	WebsitesVisited int
	ClicksMade      int
	FormsFilled     int
	SearchQueries   int
	SessionStart    time.Time
	Duration        time.Duration
}

// DurationMinutes is the session duration rounded to one decimal.
func (s Stats) DurationMinutes() float64 {
	return math.Round(s.Duration.Minutes()*10) / 10
}

// Wire converts the snapshot to the control-plane representation.
func (s Stats) Wire() models.Stats {
	return models.Stats{
		SitesVisited:           s.WebsitesVisited,
		ClicksMade:             s.ClicksMade,
		SearchesPerformed:      s.SearchQueries,
		FormsFilled:            s.FormsFilled,
		SessionDurationMinutes: s.DurationMinutes(),
	}
}

// Tracker holds the counters of exactly one session.
type Tracker struct {
	mu     sync.Mutex
	stats  Stats
	log    *ActivityLog
	logger *zap.Logger
	now    func() time.Time
}

// New creates a tracker whose session starts now. Lines are appended to
// log, which may be shared across sessions; a nil log is allowed.
func New(log *ActivityLog, logger *zap.Logger) *Tracker {
	return newWithClock(log, logger, time.Now)
}

func newWithClock(log *ActivityLog, logger *zap.Logger, now func() time.Time) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		stats:  Stats{SessionStart: now()},
		log:    log,
		logger: logger,
		now:    now,
	}
}

// RecordVisit counts a successful site visit.
func (t *Tracker) RecordVisit(url string) {
	t.mu.Lock()
	t.stats.WebsitesVisited++
	t.mu.Unlock()

	t.logger.Info("visited", zap.String("url", url))
	t.appendLine(fmt.Sprintf("%s %s", visitedMarker, url))
}

// RecordClick counts a click.
func (t *Tracker) RecordClick() {
	t.mu.Lock()
	t.stats.ClicksMade++
	t.mu.Unlock()

	t.logger.Debug("clicked")
	t.appendLine(clickedMarker + " element")
}

// RecordSearch counts a submitted search.
func (t *Tracker) RecordSearch(query string) {
	t.mu.Lock()
	t.stats.SearchQueries++
	t.mu.Unlock()

	t.logger.Info("searched", zap.String("query", query))
	t.appendLine(fmt.Sprintf("%s %s", searchedMarker, query))
}

// RecordFormFill counts a filled form.
func (t *Tracker) RecordFormFill() {
	t.mu.Lock()
	t.stats.FormsFilled++
	t.mu.Unlock()

	t.logger.Debug("form filled")
	t.appendLine(formMarker)
}

// Summary returns a snapshot; the duration is computed at call time.
func (t *Tracker) Summary() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.stats
	s.Duration = t.now().Sub(s.SessionStart)
	return s
}

func (t *Tracker) appendLine(msg string) {
	if t.log == nil {
		return
	}
	t.log.Append(fmt.Sprintf("%s - %s", t.now().Format("2006-01-02 15:04:05"), msg))
}
