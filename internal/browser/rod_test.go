package browser

import (
	"context"
	"testing"
	"time"

	"github.com/go-rod/rod"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRodElementDropsQueryDeadline(t *testing.T) {
	page := (&rod.Page{}).Context(context.Background()).Timeout(time.Minute)
	defer page.CancelTimeout()
	_, ok := page.GetContext().Deadline()
	require.True(t, ok)

	found := (&rod.Element{}).Context(page.GetContext())
	e := newRodElement(context.Background(), found)

	_, ok = e.el.GetContext().Deadline()
	assert.False(t, ok)
}

func TestRodElementTimedReleasesTimer(t *testing.T) {
	e := newRodElement(context.Background(), &rod.Element{})

	var inner context.Context
	err := e.timed(func(el *rod.Element) error {
		inner = el.GetContext()
		_, ok := inner.Deadline()
		assert.True(t, ok)
		return nil
	})
	require.NoError(t, err)
	assert.ErrorIs(t, inner.Err(), context.Canceled)
}
