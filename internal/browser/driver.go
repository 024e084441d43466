// Package browser drives a real browser on behalf of a decoy session. The
// session depends only on the Driver interface; backends are picked by
// configuration.
package browser

import (
	"context"
	"errors"
)

var (
	// ErrNavigation means a page could not be loaded. It never ends a session.
	ErrNavigation = errors.New("navigation failed")
	// ErrFormNotFound means no search box was found on the page.
	ErrFormNotFound = errors.New("search form not found")
	// ErrNoElements means the page had nothing matching the interaction.
	ErrNoElements = errors.New("no matching elements")
	// ErrFatal marks failures the driver cannot recover from, such as a
	// crashed or disconnected browser.
	ErrFatal = errors.New("browser unavailable")
	// ErrNotOpen is returned by page operations before Open succeeded.
	ErrNotOpen = errors.New("browser not open")
)

// Driver is a single browser page that a session steers. A Driver is owned
// by one goroutine at a time.
type Driver interface {
	Open(ctx context.Context, headless bool) error
	Visit(ctx context.Context, url string) error
	RandomClick(ctx context.Context) error
	Scroll(ctx context.Context, amount int) error
	NaturalScroll(ctx context.Context) error
	HoverElements(ctx context.Context) error
	InteractWithMedia(ctx context.Context) error
	HandlePopups(ctx context.Context) error
	FillSearchForm(ctx context.Context, query string) error
	PageHeight(ctx context.Context) int
	Close() error
}

const (
	clickableSelector = `a[href], button, [onclick], input[type="button"]`
	hoverSelector     = `a[href], button, img, h2, h3`
	maxClickables     = 20

	// used when the page will not report its height
	defaultPageHeight = 2000
)

var searchSelectors = []string{
	`input[name="q"]`,
	`input[type="search"]`,
	`input[placeholder*="search" i]`,
}

var popupSelectors = []string{
	`button[aria-label*="close" i]`,
	`button[aria-label*="dismiss" i]`,
	`.modal-close`,
	`.close`,
	`[class*="cookie"] button`,
	`[id*="cookie"] button`,
}

func normalizeURL(url string) string {
	if len(url) >= 4 && url[:4] == "http" {
		return url
	}
	return "https://" + url
}
