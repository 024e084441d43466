package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/shehryarbajwa/decoyd/internal/timing"
)

// scroller is the subset of a driver natural scrolling needs.
type scroller interface {
	Scroll(ctx context.Context, amount int) error
	PageHeight(ctx context.Context) int
}

// naturalScroll reads down to 80% of the page in uneven steps, sometimes
// scrolling back up or pausing longer, the way a person skims an article.
func naturalScroll(ctx context.Context, s scroller, p *timing.Policy) error {
	height := s.PageHeight(ctx)
	target := int(float64(height) * 0.8)

	pos := 0
	for steps := 0; pos < target && steps < 200; steps++ {
		amount := p.IntRange(150, 400)
		if err := s.Scroll(ctx, amount); err != nil {
			return err
		}
		pos += amount

		if amount > 250 {
			pause(ctx, p.Pause(1.5, 4.0))
		} else {
			pause(ctx, p.Pause(0.8, 2.0))
		}

		if p.Chance(0.15) {
			up := p.IntRange(50, 150)
			if err := s.Scroll(ctx, -up); err != nil {
				return err
			}
			pos -= up
			pause(ctx, p.Pause(0.5, 1.5))
		}

		if p.Chance(0.2) {
			pause(ctx, p.Pause(2.0, 5.0))
		}
	}
	return nil
}

// pause sleeps for d or until ctx is done.
func pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// element is one DOM node as the interaction helpers see it.
type element interface {
	click(ctx context.Context) error
	hover(ctx context.Context) error
	scrollIntoView(ctx context.Context) error
	fill(ctx context.Context, text string) error
	submit(ctx context.Context) error
}

// surface is a loaded page the helpers can query and scroll. Both backends
// implement it so the human-like behaviour lives in one place.
type surface interface {
	scroller
	query(ctx context.Context, selector string) ([]element, error)
}

func randomClick(ctx context.Context, s surface, p *timing.Policy) error {
	els, err := s.query(ctx, clickableSelector)
	if err != nil {
		return err
	}
	if len(els) == 0 {
		return ErrNoElements
	}
	if len(els) > maxClickables {
		els = els[:maxClickables]
	}
	el, _ := timing.Choice(p, els)
	if err := el.click(ctx); err != nil {
		return fmt.Errorf("click: %w", err)
	}
	pause(ctx, p.Pause(1.0, 3.0))
	return nil
}

func hoverElements(ctx context.Context, s surface, p *timing.Policy) error {
	els, err := s.query(ctx, hoverSelector)
	if err != nil {
		return err
	}
	if len(els) == 0 {
		return ErrNoElements
	}
	n := min(p.IntRange(2, 4), len(els))
	for i := 0; i < n; i++ {
		el, _ := timing.Choice(p, els)
		if err := el.hover(ctx); err != nil {
			continue
		}
		pause(ctx, p.Pause(0.3, 0.8))
	}
	return nil
}

// interactWithMedia sometimes watches a video and looks over a few images.
func interactWithMedia(ctx context.Context, s surface, p *timing.Policy) error {
	videos, err := s.query(ctx, "video")
	if err != nil {
		return err
	}
	images, err := s.query(ctx, "img")
	if err != nil {
		return err
	}
	if len(videos) == 0 && len(images) <= 3 {
		return ErrNoElements
	}

	if len(videos) > 0 && p.Chance(0.3) {
		v, _ := timing.Choice(p, videos)
		if v.scrollIntoView(ctx) == nil {
			v.hover(ctx)
			pause(ctx, p.Pause(2.0, 5.0))
		}
	}

	if len(images) > 3 {
		n := p.IntRange(2, min(4, len(images)))
		for i := 0; i < n; i++ {
			img, _ := timing.Choice(p, images)
			if img.scrollIntoView(ctx) != nil {
				continue
			}
			img.hover(ctx)
			pause(ctx, p.Pause(0.8, 2.0))
		}
	}
	return nil
}

// handlePopups clicks the first close or cookie button it finds.
func handlePopups(ctx context.Context, s surface, selectors []string) error {
	for _, sel := range selectors {
		els, err := s.query(ctx, sel)
		if err != nil || len(els) == 0 {
			continue
		}
		if els[0].click(ctx) == nil {
			pause(ctx, 500*time.Millisecond)
			return nil
		}
	}
	return nil
}

func fillSearchForm(ctx context.Context, s surface, p *timing.Policy, query string) error {
	for _, sel := range searchSelectors {
		els, err := s.query(ctx, sel)
		if err != nil || len(els) == 0 {
			continue
		}
		box := els[0]
		if err := box.fill(ctx, query); err != nil {
			continue
		}
		pause(ctx, p.Pause(0.3, 0.8))
		if err := box.submit(ctx); err != nil {
			return fmt.Errorf("submit search: %w", err)
		}
		pause(ctx, 2*time.Second)
		return nil
	}
	return ErrFormNotFound
}
