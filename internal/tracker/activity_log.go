package tracker

import (
	"strings"
	"sync"
)

// DefaultLogLines is how many recent lines an ActivityLog retains.
const DefaultLogLines = 20

// ActivityLog keeps the most recent human-readable activity lines and fans
// new lines out to subscribers. It outlives individual sessions.
type ActivityLog struct {
	mu    sync.RWMutex
	lines []string
	next  int
	full  bool
	subs  map[chan string]struct{}
}

// NewActivityLog creates a log retaining the last size lines.
func NewActivityLog(size int) *ActivityLog {
	if size <= 0 {
		size = DefaultLogLines
	}
	return &ActivityLog{
		lines: make([]string, size),
		subs:  make(map[chan string]struct{}),
	}
}

// Append adds a line, evicting the oldest once the log is full.
func (l *ActivityLog) Append(line string) {
	l.mu.Lock()
	l.lines[l.next] = line
	l.next = (l.next + 1) % len(l.lines)
	if l.next == 0 {
		l.full = true
	}
	for ch := range l.subs {
		select {
		case ch <- line:
		default:
			// slow subscriber, drop rather than block the session
		}
	}
	l.mu.Unlock()
}

// Lines returns the retained lines, oldest first.
func (l *ActivityLog) Lines() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if !l.full {
		out := make([]string, l.next)
		copy(out, l.lines[:l.next])
		return out
	}
	out := make([]string, 0, len(l.lines))
	out = append(out, l.lines[l.next:]...)
	out = append(out, l.lines[:l.next]...)
	return out
}

// Activities returns the retained lines that record a visit or a search.
func (l *ActivityLog) Activities() []string {
	lines := l.Lines()
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.Contains(line, visitedMarker) || strings.Contains(line, searchedMarker) {
			out = append(out, line)
		}
	}
	return out
}

// Subscribe returns a channel receiving every line appended after the call,
// and a func that unsubscribes and closes the channel.
func (l *ActivityLog) Subscribe(buffer int) (<-chan string, func()) {
	ch := make(chan string, buffer)
	l.mu.Lock()
	l.subs[ch] = struct{}{}
	l.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.subs, ch)
			l.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers is the number of live subscriptions.
func (l *ActivityLog) Subscribers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subs)
}
