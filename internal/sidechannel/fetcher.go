// internal/sidechannel/fetcher.go
package sidechannel

import (
	"context"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/serp-harvester/internal/browser"
)

// FetchFailed is the body reported when the in-page fetch rejects.
const FetchFailed = "FETCH_FAILED"

const closeTimeout = 5 * time.Second

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Page is the transient tab used for one fetch.
type Page interface {
	Navigate(ctx context.Context, url string, milestone browser.LoadMilestone) error
	Evaluate(ctx context.Context, expr string, res interface{}) error
	Close(ctx context.Context) error
}

// PageOpener opens a new page in the session.
type PageOpener func(ctx context.Context) (Page, error)

// Fetcher replays a URL from inside the browser so the request carries the
// origin's cookies and passes its same-origin checks.
type Fetcher struct {
	origin string
	logger *zap.Logger
}

// NewFetcher returns a Fetcher that fetches from a page loaded at origin.
func NewFetcher(origin string, logger *zap.Logger) *Fetcher {
	return &Fetcher{origin: origin, logger: logger.Named("sidechannel")}
}

// FetchScript returns the expression that fetches url and resolves to its
// body text, or to FetchFailed if the fetch rejects.
func FetchScript(url string) (string, error) {
	lit, err := json.Marshal(url)
	if err != nil {
		return "", fmt.Errorf("encoding url: %w", err)
	}
	failed, _ := json.Marshal(FetchFailed)
	return fmt.Sprintf("fetch(%s).then(r => r.text()).catch(() => %s)", lit, failed), nil
}

// Fetch opens a page, loads the trusted origin in it, fetches url from
// there and returns the body. A rejected fetch yields FetchFailed and no
// error. The page is closed before Fetch returns.
func (f *Fetcher) Fetch(ctx context.Context, open PageOpener, url string) (body string, err error) {
	script, err := FetchScript(url)
	if err != nil {
		return "", err
	}

	page, err := open(ctx)
	if err != nil {
		return "", fmt.Errorf("opening side-channel page: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		if cerr := page.Close(closeCtx); cerr != nil {
			f.logger.Debug("Closing side-channel page failed.", zap.Error(cerr))
		}
	}()

	if err := page.Navigate(ctx, f.origin, browser.Load); err != nil {
		return "", fmt.Errorf("loading trusted origin: %w", err)
	}

	f.logger.Debug("Fetching from page.", zap.String("url", url))
	if err := page.Evaluate(ctx, script, &body); err != nil {
		return "", err
	}
	if body == FetchFailed {
		f.logger.Warn("In-page fetch failed.", zap.String("url", url))
	}
	return body, nil
}
