package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/decoyd/internal/timing"
)

const rodOpTimeout = 30 * time.Second

// rodDriver drives Chrome over the DevTools protocol with go-rod.
type rodDriver struct {
	launcher   Launcher
	navTimeout time.Duration
	persistent bool
	policy     *timing.Policy
	logger     *zap.Logger

	browser   *rod.Browser
	incognito *rod.Browser
	page      *rod.Page
}

func newRodDriver(l Launcher, navTimeout time.Duration, persistent bool, p *timing.Policy, logger *zap.Logger) *rodDriver {
	return &rodDriver{
		launcher:   l,
		navTimeout: navTimeout,
		persistent: persistent,
		policy:     p,
		logger:     logger,
	}
}

func (d *rodDriver) Open(ctx context.Context, headless bool) error {
	controlURL, err := d.launcher.Launch(ctx, headless)
	if err != nil {
		return fmt.Errorf("launch chrome: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		d.launcher.Stop(ctx)
		return fmt.Errorf("connect to chrome: %w", err)
	}
	d.browser = browser

	// profiles need the default context so cookies land on disk
	target := browser
	if !d.persistent {
		incognito, err := browser.Incognito()
		if err != nil {
			d.Close()
			return fmt.Errorf("incognito context: %w", err)
		}
		d.incognito = incognito
		target = incognito
	}

	page, err := target.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		d.Close()
		return fmt.Errorf("create page: %w", err)
	}
	d.page = page
	return nil
}

func (d *rodDriver) Visit(ctx context.Context, url string) error {
	if d.page == nil {
		return ErrNotOpen
	}
	page := d.page.Context(ctx).Timeout(d.navTimeout)
	defer page.CancelTimeout()

	if err := page.Navigate(normalizeURL(url)); err != nil {
		return d.classify(fmt.Errorf("%w: %s: %v", ErrNavigation, url, err))
	}
	if err := page.WaitLoad(); err != nil {
		return d.classify(fmt.Errorf("%w: %s: %v", ErrNavigation, url, err))
	}
	return nil
}

// classify upgrades err to ErrFatal when the browser itself is gone.
func (d *rodDriver) classify(err error) error {
	if _, verr := d.browser.Version(); verr != nil {
		return fmt.Errorf("%w: %v", ErrFatal, errors.Join(err, verr))
	}
	return err
}

func (d *rodDriver) RandomClick(ctx context.Context) error {
	if d.page == nil {
		return ErrNotOpen
	}
	return randomClick(ctx, d, d.policy)
}

func (d *rodDriver) Scroll(ctx context.Context, amount int) error {
	if d.page == nil {
		return ErrNotOpen
	}
	page := d.page.Context(ctx).Timeout(rodOpTimeout)
	defer page.CancelTimeout()
	_, err := page.Eval(`(y) => window.scrollBy(0, y)`, amount)
	return err
}

func (d *rodDriver) NaturalScroll(ctx context.Context) error {
	if d.page == nil {
		return ErrNotOpen
	}
	return naturalScroll(ctx, d, d.policy)
}

func (d *rodDriver) HoverElements(ctx context.Context) error {
	if d.page == nil {
		return ErrNotOpen
	}
	return hoverElements(ctx, d, d.policy)
}

func (d *rodDriver) InteractWithMedia(ctx context.Context) error {
	if d.page == nil {
		return ErrNotOpen
	}
	return interactWithMedia(ctx, d, d.policy)
}

func (d *rodDriver) HandlePopups(ctx context.Context) error {
	if d.page == nil {
		return ErrNotOpen
	}
	return handlePopups(ctx, d, popupSelectors)
}

func (d *rodDriver) FillSearchForm(ctx context.Context, query string) error {
	if d.page == nil {
		return ErrNotOpen
	}
	return fillSearchForm(ctx, d, d.policy, query)
}

func (d *rodDriver) PageHeight(ctx context.Context) int {
	if d.page == nil {
		return defaultPageHeight
	}
	page := d.page.Context(ctx).Timeout(rodOpTimeout)
	defer page.CancelTimeout()
	res, err := page.Eval(`() => document.body ? document.body.scrollHeight : 0`)
	if err != nil {
		return defaultPageHeight
	}
	return res.Value.Int()
}

func (d *rodDriver) query(ctx context.Context, selector string) ([]element, error) {
	page := d.page.Context(ctx).Timeout(rodOpTimeout)
	defer page.CancelTimeout()

	els, err := page.Elements(selector)
	if err != nil {
		return nil, err
	}
	out := make([]element, len(els))
	for i, el := range els {
		out[i] = newRodElement(ctx, el)
	}
	return out, nil
}

// Close releases the page, the browser context and whatever the launcher
// started. Safe to call more than once.
func (d *rodDriver) Close() error {
	var errs []error
	if d.page != nil {
		if err := d.page.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close page: %w", err))
		}
		d.page = nil
	}
	if d.incognito != nil {
		if err := d.incognito.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close browser context: %w", err))
		}
		d.incognito = nil
	}
	if d.browser != nil {
		if d.launcher.Owned() {
			if err := d.browser.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close browser: %w", err))
			}
		}
		d.browser = nil
	}
	if err := d.launcher.Stop(context.Background()); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// rodElement bounds each action with its own timeout rather than the
// deadline of the query that found it.
type rodElement struct {
	el *rod.Element
}

func newRodElement(ctx context.Context, el *rod.Element) rodElement {
	return rodElement{el: el.Context(ctx)}
}

func (e rodElement) timed(fn func(el *rod.Element) error) error {
	el := e.el.Timeout(rodOpTimeout)
	defer el.CancelTimeout()
	return fn(el)
}

func (e rodElement) click(context.Context) error {
	return e.timed(func(el *rod.Element) error {
		return el.Click(proto.InputMouseButtonLeft, 1)
	})
}

func (e rodElement) hover(context.Context) error {
	return e.timed(func(el *rod.Element) error { return el.Hover() })
}

func (e rodElement) scrollIntoView(context.Context) error {
	return e.timed(func(el *rod.Element) error { return el.ScrollIntoView() })
}

func (e rodElement) fill(_ context.Context, text string) error {
	return e.timed(func(el *rod.Element) error {
		if err := el.SelectAllText(); err != nil {
			return err
		}
		return el.Input(text)
	})
}

func (e rodElement) submit(context.Context) error {
	return e.timed(func(el *rod.Element) error { return el.Type(input.Enter) })
}
