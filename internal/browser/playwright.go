package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/decoyd/internal/timing"
)

// Playwright understands text pseudo-classes that plain CSS lacks.
var playwrightPopupSelectors = append([]string{
	`button:has-text("Accept")`,
	`button:has-text("Close")`,
	`button:has-text("Got it")`,
}, popupSelectors...)

// playwrightDriver drives Chromium through the Playwright driver process.
type playwrightDriver struct {
	navTimeout time.Duration
	policy     *timing.Policy
	logger     *zap.Logger

	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
}

func newPlaywrightDriver(navTimeout time.Duration, p *timing.Policy, logger *zap.Logger) *playwrightDriver {
	return &playwrightDriver{navTimeout: navTimeout, policy: p, logger: logger}
}

func (d *playwrightDriver) Open(_ context.Context, headless bool) error {
	opts := &playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}
	if err := playwright.Install(opts); err != nil {
		return fmt.Errorf("failed to install playwright: %w", err)
	}

	pw, err := playwright.Run(opts)
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}
	d.pw = pw

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(headless),
	})
	if err != nil {
		d.Close()
		return fmt.Errorf("failed to launch browser: %w", err)
	}
	d.browser = browser

	bctx, err := browser.NewContext()
	if err != nil {
		d.Close()
		return fmt.Errorf("failed to create context: %w", err)
	}
	d.context = bctx

	page, err := bctx.NewPage()
	if err != nil {
		d.Close()
		return fmt.Errorf("failed to create page: %w", err)
	}
	page.SetDefaultTimeout(float64(rodOpTimeout.Milliseconds()))
	d.page = page
	return nil
}

func (d *playwrightDriver) Visit(_ context.Context, url string) error {
	if d.page == nil {
		return ErrNotOpen
	}
	waitUntil := playwright.WaitUntilState("load")
	timeout := float64(d.navTimeout.Milliseconds())
	if _, err := d.page.Goto(normalizeURL(url), playwright.PageGotoOptions{
		WaitUntil: &waitUntil,
		Timeout:   &timeout,
	}); err != nil {
		err = fmt.Errorf("%w: %s: %v", ErrNavigation, url, err)
		if !d.browser.IsConnected() {
			return fmt.Errorf("%w: %v", ErrFatal, err)
		}
		return err
	}
	return nil
}

func (d *playwrightDriver) RandomClick(ctx context.Context) error {
	if d.page == nil {
		return ErrNotOpen
	}
	return randomClick(ctx, d, d.policy)
}

func (d *playwrightDriver) Scroll(_ context.Context, amount int) error {
	if d.page == nil {
		return ErrNotOpen
	}
	_, err := d.page.Evaluate(`(y) => window.scrollBy(0, y)`, amount)
	return err
}

func (d *playwrightDriver) NaturalScroll(ctx context.Context) error {
	if d.page == nil {
		return ErrNotOpen
	}
	return naturalScroll(ctx, d, d.policy)
}

func (d *playwrightDriver) HoverElements(ctx context.Context) error {
	if d.page == nil {
		return ErrNotOpen
	}
	return hoverElements(ctx, d, d.policy)
}

func (d *playwrightDriver) InteractWithMedia(ctx context.Context) error {
	if d.page == nil {
		return ErrNotOpen
	}
	return interactWithMedia(ctx, d, d.policy)
}

func (d *playwrightDriver) HandlePopups(ctx context.Context) error {
	if d.page == nil {
		return ErrNotOpen
	}
	return handlePopups(ctx, d, playwrightPopupSelectors)
}

func (d *playwrightDriver) FillSearchForm(ctx context.Context, query string) error {
	if d.page == nil {
		return ErrNotOpen
	}
	return fillSearchForm(ctx, d, d.policy, query)
}

func (d *playwrightDriver) PageHeight(context.Context) int {
	if d.page == nil {
		return defaultPageHeight
	}
	res, err := d.page.Evaluate(`() => document.body ? document.body.scrollHeight : 0`)
	if err != nil {
		return defaultPageHeight
	}
	switch v := res.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return defaultPageHeight
	}
}

func (d *playwrightDriver) query(_ context.Context, selector string) ([]element, error) {
	locs, err := d.page.Locator(selector).All()
	if err != nil {
		return nil, err
	}
	out := make([]element, len(locs))
	for i, loc := range locs {
		out[i] = playwrightElement{loc}
	}
	return out, nil
}

func (d *playwrightDriver) Close() error {
	var errs []error
	if d.page != nil {
		if err := d.page.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close page: %w", err))
		}
		d.page = nil
	}
	if d.context != nil {
		if err := d.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close context: %w", err))
		}
		d.context = nil
	}
	if d.browser != nil {
		if err := d.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close browser: %w", err))
		}
		d.browser = nil
	}
	if d.pw != nil {
		if err := d.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop playwright: %w", err))
		}
		d.pw = nil
	}
	return errors.Join(errs...)
}

type playwrightElement struct {
	loc playwright.Locator
}

func (e playwrightElement) click(context.Context) error {
	return e.loc.Click()
}

func (e playwrightElement) hover(context.Context) error {
	return e.loc.Hover()
}

func (e playwrightElement) scrollIntoView(context.Context) error {
	return e.loc.ScrollIntoViewIfNeeded()
}

func (e playwrightElement) fill(_ context.Context, text string) error {
	return e.loc.Fill(text)
}

func (e playwrightElement) submit(context.Context) error {
	return e.loc.Press("Enter")
}
