// internal/browser/session.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/serp-harvester/internal/config"
)

// Session owns one browser process: its primary page plus any secondary
// pages opened through NewPage.
type Session struct {
	id      string
	cfg     config.BrowserConfig
	logger  *zap.Logger
	persona Persona

	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	primary       *Page
	onClose       func()

	mu        sync.Mutex
	pages     []*Page
	closed    bool
	closeOnce sync.Once
	closeErr  error
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Page returns the primary page, the tab the browser started with.
func (s *Session) Page() *Page {
	return s.primary
}

// NewPage opens an additional tab in the same browser.
func (s *Session) NewPage(ctx context.Context) (*Page, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	s.mu.Unlock()

	tabCtx, tabCancel := chromedp.NewContext(s.browserCtx)
	if err := attach(ctx, tabCtx, tabCancel); err != nil {
		tabCancel()
		return nil, fmt.Errorf("opening tab: %w", err)
	}

	p := newPage(tabCtx, tabCancel, s.cfg.NavigationTimeout, s.logger.Named("page"))
	if err := p.Run(ctx, s.persona.Apply(s.logger)); err != nil {
		_ = p.Close(ctx)
		return nil, fmt.Errorf("applying persona to tab: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		tabCancel()
		return nil, ErrSessionClosed
	}
	s.pages = append(s.pages, p)
	return p, nil
}

// Close closes every page and terminates the browser process. It is safe
// to call more than once; later calls return the first result.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		pages := s.pages
		s.pages = nil
		s.mu.Unlock()

		s.logger.Debug("Closing browser session.", zap.Int("secondary_pages", len(pages)))

		var errs []error
		for _, p := range pages {
			if err := p.Close(ctx); err != nil {
				errs = append(errs, err)
			}
		}

		// chromedp.Cancel closes the browser gracefully and waits for the process.
		done := make(chan error, 1)
		go func() { done <- chromedp.Cancel(s.browserCtx) }()
		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				errs = append(errs, fmt.Errorf("closing browser: %w", err))
			}
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("closing browser: %w", ctx.Err()))
		}
		s.browserCancel()
		s.allocCancel()

		if s.onClose != nil {
			s.onClose()
		}
		s.closeErr = errors.Join(errs...)
		if s.closeErr != nil {
			s.logger.Warn("Browser session closed with errors.", zap.Error(s.closeErr))
		} else {
			s.logger.Info("Browser session closed.")
		}
	})
	return s.closeErr
}
