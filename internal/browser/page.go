// internal/browser/page.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// LoadMilestone names a CDP lifecycle event a navigation can wait for.
type LoadMilestone string

const (
	// DOMContentLoaded fires once the document is parsed; subresources may
	// still be loading. Searches wait for this.
	DOMContentLoaded LoadMilestone = "DOMContentLoaded"
	// Load fires after the window load event, images and stylesheets included.
	Load LoadMilestone = "load"
	// NetworkAlmostIdle fires when at most two connections have been active
	// for 500ms. Later result pages wait for this.
	NetworkAlmostIdle LoadMilestone = "networkAlmostIdle"
	// NetworkIdle fires when no connection has been active for 500ms.
	NetworkIdle LoadMilestone = "networkIdle"
)

// Page is a single browser tab.
type Page struct {
	ctx        context.Context
	cancel     context.CancelFunc
	logger     *zap.Logger
	navTimeout time.Duration

	closeOnce sync.Once
}

func newPage(ctx context.Context, cancel context.CancelFunc, navTimeout time.Duration, logger *zap.Logger) *Page {
	return &Page{ctx: ctx, cancel: cancel, navTimeout: navTimeout, logger: logger}
}

// Run executes actions against the tab, bounded by both the tab and ctx.
func (p *Page) Run(ctx context.Context, actions ...chromedp.Action) error {
	if p.ctx.Err() != nil {
		return ErrPageClosed
	}
	runCtx, cancel := CombineContext(p.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// Listen registers fn for every CDP event of the tab. Listeners live as
// long as the tab does.
func (p *Page) Listen(fn func(ev interface{})) {
	chromedp.ListenTarget(p.ctx, fn)
}

// Done is closed once the tab is gone.
func (p *Page) Done() <-chan struct{} {
	return p.ctx.Done()
}

// Navigate loads url in the tab and blocks until the main frame reports
// milestone for that very navigation.
//
// The wait is bounded by the tighter of ctx and the configured navigation
// timeout, and it ends early if the tab dies. The sequence is:
//  1. Start collecting lifecycle events, before anything is sent, so a fast
//     page cannot report its milestone unseen.
//  2. Enable lifecycle events and issue Page.navigate. Chrome answers with
//     the frame and loader that will carry the new document, or with an
//     error text when the navigation failed outright (DNS, refused, ...).
//  3. Wait for the milestone event whose frame and loader match that answer.
//     Events from subframes and from the previous document are skipped.
//
// Same-document navigations (fragment changes) have no loader and return as
// soon as Chrome accepts them. Every failure is a *NavigationError; a dead
// tab is reported as ErrPageClosed inside it.
func (p *Page) Navigate(ctx context.Context, url string, milestone LoadMilestone) error {
	if url == "" {
		return &NavigationError{Milestone: milestone, Err: ErrEmptyURL}
	}
	if p.ctx.Err() != nil {
		return &NavigationError{URL: url, Milestone: milestone, Err: ErrPageClosed}
	}

	navCtx, cancelNav := context.WithTimeout(ctx, p.navTimeout)
	defer cancelNav()
	runCtx, cancelRun := CombineContext(p.ctx, navCtx)
	defer cancelRun()

	// Register before navigating so a fast milestone cannot be missed.
	watch := newLifecycleWatch(milestone)
	chromedp.ListenTarget(runCtx, watch.observe)

	var res page.NavigateReturns
	err := chromedp.Run(runCtx,
		page.SetLifecycleEventsEnabled(true),
		chromedp.ActionFunc(func(c context.Context) error {
			return cdp.Execute(c, page.CommandNavigate, page.Navigate(url), &res)
		}),
	)
	if err != nil {
		return &NavigationError{URL: url, Milestone: milestone, Err: p.classify(err)}
	}
	if res.ErrorText != "" {
		return &NavigationError{URL: url, Milestone: milestone, Err: errors.New(res.ErrorText)}
	}
	// Same-document navigations have no loader and emit no lifecycle events.
	if res.LoaderID == "" {
		return nil
	}

	if err := watch.wait(runCtx, res.FrameID, res.LoaderID); err != nil {
		return &NavigationError{URL: url, Milestone: milestone, Err: p.classify(err)}
	}
	p.logger.Debug("Navigation reached milestone.",
		zap.String("url", url), zap.String("milestone", string(milestone)))
	return nil
}

// lifecycleWatch collects the lifecycle events named after one milestone.
// Subframes report the same names as the main frame, so nothing is dropped:
// events queue until wait has checked them against the navigation.
type lifecycleWatch struct {
	milestone LoadMilestone
	notify    chan struct{}

	mu     sync.Mutex
	events []*page.EventLifecycleEvent
}

func newLifecycleWatch(milestone LoadMilestone) *lifecycleWatch {
	return &lifecycleWatch{milestone: milestone, notify: make(chan struct{}, 1)}
}

// observe is a CDP listener. It never blocks.
func (w *lifecycleWatch) observe(ev interface{}) {
	e, ok := ev.(*page.EventLifecycleEvent)
	if !ok || e.Name != string(w.milestone) {
		return
	}
	w.mu.Lock()
	w.events = append(w.events, e)
	w.mu.Unlock()
	select {
	case w.notify <- struct{}{}:
	default:
	}
}

// wait blocks until frame reports the milestone for loader, or ctx ends.
func (w *lifecycleWatch) wait(ctx context.Context, frame cdp.FrameID, loader cdp.LoaderID) error {
	for {
		w.mu.Lock()
		for _, e := range w.events {
			if e.FrameID == frame && e.LoaderID == loader {
				w.mu.Unlock()
				return nil
			}
		}
		// Checked events can never match later.
		w.events = w.events[:0]
		w.mu.Unlock()

		select {
		case <-w.notify:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// HTML returns the serialized document and the URL it was loaded from.
func (p *Page) HTML(ctx context.Context) (string, string, error) {
	var html, location string
	err := p.Run(ctx,
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Location(&location),
	)
	if err != nil {
		return "", "", fmt.Errorf("reading document: %w", p.classify(err))
	}
	return html, location, nil
}

// Evaluate runs expr in the page and awaits the result if it is a promise.
func (p *Page) Evaluate(ctx context.Context, expr string, res interface{}) error {
	err := p.Run(ctx, chromedp.Evaluate(expr, res, func(ep *runtime.EvaluateParams) *runtime.EvaluateParams {
		return ep.WithAwaitPromise(true)
	}))
	if err != nil {
		return fmt.Errorf("evaluating script: %w", p.classify(err))
	}
	return nil
}

// Close closes the tab. Closing twice is a no-op.
func (p *Page) Close(ctx context.Context) error {
	var err error
	p.closeOnce.Do(func() {
		if p.cancel == nil {
			return
		}
		done := make(chan error, 1)
		go func() { done <- chromedp.Cancel(p.ctx) }()
		select {
		case err = <-done:
		case <-ctx.Done():
			err = ctx.Err()
		}
		p.cancel()
		if errors.Is(err, context.Canceled) {
			err = nil
		}
	})
	return err
}

// classify maps a dead tab onto ErrPageClosed so callers can tell it apart
// from their own deadlines.
func (p *Page) classify(err error) error {
	if p.ctx.Err() != nil && !errors.Is(err, ErrPageClosed) {
		return fmt.Errorf("%w: %v", ErrPageClosed, err)
	}
	return err
}
