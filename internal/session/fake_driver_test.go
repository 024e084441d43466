package session

import (
	"context"
	"sync"
	"time"

	"github.com/shehryarbajwa/decoyd/internal/browser"
	"github.com/shehryarbajwa/decoyd/internal/config"
)

// fakeDriver records calls and succeeds unless told otherwise.
type fakeDriver struct {
	mu sync.Mutex

	openErr   error
	visitErr  error
	formErr   error
	panicOn   string
	openGate  chan struct{}
	visitGate chan struct{}

	opens, visits, clicks, forms, closes int
}

func (f *fakeDriver) count(field *int) {
	f.mu.Lock()
	*field++
	f.mu.Unlock()
}

func (f *fakeDriver) Open(context.Context, bool) error {
	if f.openGate != nil {
		<-f.openGate
	}
	f.count(&f.opens)
	return f.openErr
}

func (f *fakeDriver) Visit(context.Context, string) error {
	if f.visitGate != nil {
		<-f.visitGate
	}
	if f.panicOn == "visit" {
		panic("renderer crashed")
	}
	f.count(&f.visits)
	return f.visitErr
}

func (f *fakeDriver) RandomClick(context.Context) error {
	f.count(&f.clicks)
	return nil
}

func (f *fakeDriver) Scroll(context.Context, int) error       { return nil }
func (f *fakeDriver) NaturalScroll(context.Context) error     { return nil }
func (f *fakeDriver) HoverElements(context.Context) error     { return nil }
func (f *fakeDriver) InteractWithMedia(context.Context) error { return browser.ErrNoElements }
func (f *fakeDriver) HandlePopups(context.Context) error      { return nil }
func (f *fakeDriver) PageHeight(context.Context) int          { return 1000 }

func (f *fakeDriver) FillSearchForm(context.Context, string) error {
	f.count(&f.forms)
	return f.formErr
}

func (f *fakeDriver) Close() error {
	f.count(&f.closes)
	return nil
}

type driverCalls struct {
	opens, visits, clicks, forms, closes int
}

func (f *fakeDriver) calls() driverCalls {
	f.mu.Lock()
	defer f.mu.Unlock()
	return driverCalls{
		opens:  f.opens,
		visits: f.visits,
		clicks: f.clicks,
		forms:  f.forms,
		closes: f.closes,
	}
}

// fakeFactory hands out the same driver, or a fresh one per call.
type fakeFactory struct {
	mu      sync.Mutex
	next    func() *fakeDriver
	built   []*fakeDriver
	failErr error
}

func (f *fakeFactory) New(config.BrowserConfig) (browser.Driver, error) {
	if f.failErr != nil {
		return nil, f.failErr
	}
	d := &fakeDriver{}
	if f.next != nil {
		d = f.next()
	}
	f.mu.Lock()
	f.built = append(f.built, d)
	f.mu.Unlock()
	return d, nil
}

func (f *fakeFactory) drivers() []*fakeDriver {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeDriver(nil), f.built...)
}

// noSleep skips every pause but still honours cancellation.
func noSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

// blockSleep parks the loop on its first pause until stopped.
func blockSleep(ctx context.Context, _ time.Duration) error {
	<-ctx.Done()
	return ctx.Err()
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Activity.ClickIntervalMin = 2
	cfg.Activity.ClickIntervalMax = 8
	cfg.Activity.PageDwellMin = 5
	cfg.Activity.PageDwellMax = 30
	cfg.Catalogue.Categories = map[string][]string{
		"news": {"https://news.example", "https://daily.example"},
		"tech": {"https://tech.example"},
	}
	cfg.Catalogue.SearchQueries = []string{"weather tomorrow"}
	return cfg
}
