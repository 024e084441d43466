package browser

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shehryarbajwa/decoyd/internal/timing"
)

type fakeScroller struct {
	height int
	moves  []int
}

func (f *fakeScroller) Scroll(_ context.Context, amount int) error {
	f.moves = append(f.moves, amount)
	return nil
}

func (f *fakeScroller) PageHeight(context.Context) int { return f.height }

func TestNaturalScrollReachesMostOfThePage(t *testing.T) {
	// a cancelled context turns every reading pause into a no-op
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := &fakeScroller{height: 3000}
	require.NoError(t, naturalScroll(ctx, s, timing.New(7)))

	total := 0
	for _, m := range s.moves {
		if m > 0 {
			assert.True(t, m >= 150 && m <= 400, "step %d out of range", m)
		} else {
			assert.True(t, -m >= 50 && -m <= 150, "back-scroll %d out of range", m)
		}
		total += m
	}
	assert.GreaterOrEqual(t, total, 2400)
	assert.Less(t, total, 2400+400)
}

func TestNaturalScrollShortPage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := &fakeScroller{height: 0}
	require.NoError(t, naturalScroll(ctx, s, timing.New(1)))
	assert.Empty(t, s.moves)
}

func TestNormalizeURL(t *testing.T) {
	assert.Equal(t, "https://example.com", normalizeURL("example.com"))
	assert.Equal(t, "http://example.com", normalizeURL("http://example.com"))
}

type fakeElement struct {
	clicks, hovers, scrolls int
	filled                  string
	submitted               bool
	fail                    bool
}

func (e *fakeElement) click(context.Context) error {
	if e.fail {
		return errors.New("detached")
	}
	e.clicks++
	return nil
}

func (e *fakeElement) hover(context.Context) error { e.hovers++; return nil }

func (e *fakeElement) scrollIntoView(context.Context) error { e.scrolls++; return nil }

func (e *fakeElement) fill(_ context.Context, text string) error {
	if e.fail {
		return errors.New("readonly")
	}
	e.filled = text
	return nil
}

func (e *fakeElement) submit(context.Context) error { e.submitted = true; return nil }

type fakeSurface struct {
	fakeScroller
	bySelector map[string][]*fakeElement
}

func (f *fakeSurface) query(_ context.Context, selector string) ([]element, error) {
	var out []element
	for _, el := range f.bySelector[selector] {
		out = append(out, el)
	}
	return out, nil
}

func doneContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

func TestRandomClickPicksAmongFirstTwenty(t *testing.T) {
	els := make([]*fakeElement, 30)
	for i := range els {
		els[i] = &fakeElement{}
	}
	s := &fakeSurface{bySelector: map[string][]*fakeElement{clickableSelector: els}}

	p := timing.New(3)
	for i := 0; i < 50; i++ {
		require.NoError(t, randomClick(doneContext(), s, p))
	}
	clicked := 0
	for i, el := range els {
		if i >= maxClickables {
			assert.Zero(t, el.clicks, "element %d beyond the first twenty was clicked", i)
		}
		clicked += el.clicks
	}
	assert.Equal(t, 50, clicked)
}

func TestRandomClickEmptyPage(t *testing.T) {
	s := &fakeSurface{}
	assert.ErrorIs(t, randomClick(doneContext(), s, timing.New(1)), ErrNoElements)
}

func TestFillSearchFormFallsThroughSelectors(t *testing.T) {
	readonly := &fakeElement{fail: true}
	box := &fakeElement{}
	s := &fakeSurface{bySelector: map[string][]*fakeElement{
		searchSelectors[0]: {readonly},
		searchSelectors[2]: {box},
	}}

	require.NoError(t, fillSearchForm(doneContext(), s, timing.New(1), "weather"))
	assert.Equal(t, "weather", box.filled)
	assert.True(t, box.submitted)
	assert.False(t, readonly.submitted)
}

func TestFillSearchFormNotFound(t *testing.T) {
	s := &fakeSurface{}
	assert.ErrorIs(t, fillSearchForm(doneContext(), s, timing.New(1), "weather"), ErrFormNotFound)
}

func TestHandlePopupsClicksFirstMatch(t *testing.T) {
	first := &fakeElement{}
	second := &fakeElement{}
	s := &fakeSurface{bySelector: map[string][]*fakeElement{
		popupSelectors[1]: {first},
		popupSelectors[3]: {second},
	}}

	require.NoError(t, handlePopups(doneContext(), s, popupSelectors))
	assert.Equal(t, 1, first.clicks)
	assert.Zero(t, second.clicks)

	// nothing to close is not an error
	require.NoError(t, handlePopups(doneContext(), &fakeSurface{}, popupSelectors))
}

func TestInteractWithMedia(t *testing.T) {
	assert.ErrorIs(t, interactWithMedia(doneContext(), &fakeSurface{}, timing.New(1)), ErrNoElements)

	imgs := []*fakeElement{{}, {}, {}, {}, {}}
	s := &fakeSurface{bySelector: map[string][]*fakeElement{"img": imgs}}
	require.NoError(t, interactWithMedia(doneContext(), s, timing.New(1)))

	viewed := 0
	for _, img := range imgs {
		viewed += img.scrolls
	}
	assert.GreaterOrEqual(t, viewed, 2)
	assert.LessOrEqual(t, viewed, 4)
}

func TestHoverElements(t *testing.T) {
	els := []*fakeElement{{}}
	s := &fakeSurface{bySelector: map[string][]*fakeElement{hoverSelector: els}}
	require.NoError(t, hoverElements(doneContext(), s, timing.New(1)))
	assert.Equal(t, 1, els[0].hovers)
}
