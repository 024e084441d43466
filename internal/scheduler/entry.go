package scheduler

import (
	"fmt"
	"time"

	"github.com/shehryarbajwa/decoyd/internal/config"
)

type Kind string

const (
	KindInterval Kind = "interval"
	KindDaily    Kind = "daily"
	KindHourly   Kind = "hourly"
)

// Entry is one recurring trigger. Entries are immutable once registered.
type Entry struct {
	Kind   Kind
	Every  time.Duration // interval only
	Hour   int           // daily only
	Minute int           // daily and hourly
	// Duration of each session in minutes; 0 runs until stopped.
	Duration int
}

// FromConfig converts validated schedule settings.
func FromConfig(cfgs []config.ScheduleConfig) ([]Entry, error) {
	entries := make([]Entry, 0, len(cfgs))
	for i, c := range cfgs {
		e := Entry{
			Kind:     Kind(c.Kind),
			Every:    time.Duration(c.EveryMinutes) * time.Minute,
			Hour:     c.Hour,
			Minute:   c.Minute,
			Duration: c.DurationMinutes,
		}
		if err := e.validate(); err != nil {
			return nil, fmt.Errorf("schedule[%d]: %w", i, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (e Entry) validate() error {
	switch e.Kind {
	case KindInterval:
		if e.Every < time.Minute {
			return fmt.Errorf("interval must be at least one minute")
		}
	case KindDaily:
		if e.Hour < 0 || e.Hour > 23 || e.Minute < 0 || e.Minute > 59 {
			return fmt.Errorf("daily time %02d:%02d out of range", e.Hour, e.Minute)
		}
	case KindHourly:
		if e.Minute < 0 || e.Minute > 59 {
			return fmt.Errorf("hourly minute %d out of range", e.Minute)
		}
	default:
		return fmt.Errorf("unknown kind %q", e.Kind)
	}
	return nil
}

// Next returns the first due time strictly after t.
func (e Entry) Next(t time.Time) time.Time {
	switch e.Kind {
	case KindInterval:
		return t.Add(e.Every)
	case KindDaily:
		next := time.Date(t.Year(), t.Month(), t.Day(), e.Hour, e.Minute, 0, 0, t.Location())
		if !next.After(t) {
			next = next.AddDate(0, 0, 1)
		}
		return next
	default:
		// hour boundary in t's zone, not UTC
		next := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), e.Minute, 0, 0, t.Location())
		if !next.After(t) {
			next = next.Add(time.Hour)
		}
		return next
	}
}

func (e Entry) String() string {
	switch e.Kind {
	case KindInterval:
		return fmt.Sprintf("every %s", e.Every)
	case KindDaily:
		return fmt.Sprintf("daily at %02d:%02d", e.Hour, e.Minute)
	default:
		return fmt.Sprintf("hourly at :%02d", e.Minute)
	}
}
