package interceptor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// answerTimeout bounds a single continue/fail command sent back to the browser.
const answerTimeout = 10 * time.Second

var (
	// ErrPageClosed means the page went away before a matching request was seen.
	ErrPageClosed = errors.New("page closed before a matching request was observed")
	// ErrNoMatch is reported by Resolved callers that need an error value.
	ErrNoMatch = errors.New("no matching request observed")
)

// InterceptionError reports that the interception handle could not produce a URL.
type InterceptionError struct {
	Err error
}

func (e *InterceptionError) Error() string {
	return fmt.Sprintf("request interception: %v", e.Err)
}

func (e *InterceptionError) Unwrap() error { return e.Err }

// Target is the page surface the interceptor needs.
type Target interface {
	Run(ctx context.Context, actions ...chromedp.Action) error
	Listen(fn func(ev interface{}))
	Done() <-chan struct{}
}

// Stats counts the decisions taken on a page.
type Stats struct {
	Aborted   int64
	Continued int64
	Matched   int64
}

// Interceptor installs the request rule on pages.
type Interceptor struct {
	rule   Rule
	logger *zap.Logger
}

// New returns an interceptor applying rule.
func New(rule Rule, logger *zap.Logger) *Interceptor {
	return &Interceptor{rule: rule, logger: logger.Named("interceptor")}
}

// Install enables request interception on t and returns the page's match
// handle.
//
// From the moment Install returns, every request the tab makes is paused in
// the browser until it is answered here:
//  1. Font, image and stylesheet requests are failed with BlockedByClient
//     and never reach the network.
//  2. The first request whose URL contains the rule's substring resolves
//     the Match; it and every later match are continued untouched.
//  3. Everything else is continued.
//
// Chrome may report a request more than once; each RequestID is answered a
// single time. Answers run on their own goroutines so the CDP event loop
// never waits on a browser round trip. When the tab closes before a match,
// the Match fails with ErrPageClosed instead of leaving Await hanging.
//
// Requests issued before Install are never seen, so it must run before the
// first navigation whose traffic matters. An error means Fetch.enable was
// refused and the tab is not intercepted at all.
func (i *Interceptor) Install(ctx context.Context, t Target) (*Match, error) {
	m := newMatch()

	// The listener goes in first; Fetch.enable starts pausing requests at once.
	var seen sync.Map
	t.Listen(func(ev interface{}) {
		e, ok := ev.(*fetch.EventRequestPaused)
		if !ok {
			return
		}
		// A request is answered once, however many times it is reported.
		if _, dup := seen.LoadOrStore(e.RequestID, struct{}{}); dup {
			return
		}
		action := i.rule.Classify(e.ResourceType, e.Request.URL)
		if action == ActionMatch && m.resolve(e.Request.URL) {
			i.logger.Info("Matched request.", zap.String("url", e.Request.URL))
		}
		// Never block the event loop with a round trip to the browser.
		go i.answer(t, e.RequestID, e.Request.URL, action, m)
	})

	enable := fetch.Enable().WithPatterns([]*fetch.RequestPattern{{
		URLPattern:   "*",
		RequestStage: fetch.RequestStageRequest,
	}})
	if err := t.Run(ctx, enable); err != nil {
		return nil, &InterceptionError{Err: fmt.Errorf("enabling fetch domain: %w", err)}
	}

	go func() {
		select {
		case <-t.Done():
			m.fail(ErrPageClosed)
		case <-m.done:
		}
	}()

	i.logger.Debug("Request interception enabled.", zap.String("match_substring", i.rule.MatchSubstring))
	return m, nil
}

func (i *Interceptor) answer(t Target, id fetch.RequestID, url string, action Action, m *Match) {
	ctx, cancel := context.WithTimeout(context.Background(), answerTimeout)
	defer cancel()

	var cmd chromedp.Action
	switch action {
	case ActionAbort:
		cmd = fetch.FailRequest(id, network.ErrorReasonBlockedByClient)
		atomic.AddInt64(&m.stats.Aborted, 1)
	case ActionMatch:
		cmd = fetch.ContinueRequest(id)
		atomic.AddInt64(&m.stats.Matched, 1)
	default:
		cmd = fetch.ContinueRequest(id)
		atomic.AddInt64(&m.stats.Continued, 1)
	}

	if err := t.Run(ctx, cmd); err != nil {
		select {
		case <-t.Done():
			// The page is gone; its requests went with it.
		default:
			i.logger.Debug("Could not answer paused request.",
				zap.String("url", url), zap.Stringer("action", action), zap.Error(err))
		}
	}
}

// Match is a one-shot, first-write-wins slot for the matched URL.
type Match struct {
	once sync.Once
	done chan struct{}
	url  string
	err  error

	stats Stats
}

func newMatch() *Match {
	return &Match{done: make(chan struct{})}
}

// resolve settles the slot with url. It reports whether this call won.
func (m *Match) resolve(url string) bool {
	won := false
	m.once.Do(func() {
		m.url = url
		won = true
		close(m.done)
	})
	return won
}

func (m *Match) fail(err error) {
	m.once.Do(func() {
		m.err = err
		close(m.done)
	})
}

// Await blocks until a URL is matched, the page closes, or ctx ends.
func (m *Match) Await(ctx context.Context) (string, error) {
	select {
	case <-m.done:
		if m.err != nil {
			return "", &InterceptionError{Err: m.err}
		}
		return m.url, nil
	case <-ctx.Done():
		// A match may have landed in the same instant.
		if url, ok := m.Resolved(); ok {
			return url, nil
		}
		return "", &InterceptionError{Err: fmt.Errorf("%w: %w", ErrNoMatch, ctx.Err())}
	}
}

// Resolved reports the matched URL without blocking.
func (m *Match) Resolved() (string, bool) {
	select {
	case <-m.done:
		return m.url, m.err == nil
	default:
		return "", false
	}
}

// Stats returns a snapshot of the decisions taken so far.
func (m *Match) Stats() Stats {
	return Stats{
		Aborted:   atomic.LoadInt64(&m.stats.Aborted),
		Continued: atomic.LoadInt64(&m.stats.Continued),
		Matched:   atomic.LoadInt64(&m.stats.Matched),
	}
}
