package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowPerClient(t *testing.T) {
	l := NewLimiter(3600, 2)

	assert.True(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))

	// other clients have their own bucket
	assert.True(t, l.Allow("10.0.0.2"))
	assert.Equal(t, 2, l.Len())
}

func TestTokensDoNotSpend(t *testing.T) {
	l := NewLimiter(60, 5)
	assert.InDelta(t, 5, l.Tokens("a"), 0.01)
	assert.InDelta(t, 5, l.Tokens("a"), 0.01)
}

func TestSweepDropsIdleClients(t *testing.T) {
	l := NewLimiter(60, 5)
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.Allow("old")
	now = now.Add(time.Hour)
	l.Allow("fresh")

	assert.Equal(t, 1, l.Sweep(30*time.Minute))
	assert.Equal(t, 1, l.Len())
}
