// internal/harvest/harvester.go
package harvest

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/serp-harvester/internal/browser"
)

var (
	// ErrInvalidPageCount is returned for a page count below one.
	ErrInvalidPageCount = errors.New("page count must be at least 1")
	// ErrNoNextPage means the first results page linked to fewer pages than requested.
	ErrNoNextPage = errors.New("no link to the requested result page")
)

// ExtractionError reports a results page whose content could not be read.
// It only ever costs that page its articles.
type ExtractionError struct {
	Page int
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extracting result page %d: %v", e.Page, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Page is the primary results page as the harvester sees it.
type Page interface {
	Navigate(ctx context.Context, url string, milestone browser.LoadMilestone) error
	HTML(ctx context.Context) (html, location string, err error)
}

// Harvester walks search result pages.
type Harvester struct {
	logger *zap.Logger
}

// New returns a Harvester.
func New(logger *zap.Logger) *Harvester {
	return &Harvester{logger: logger.Named("harvester")}
}

// Harvest collects articles from the page currently loaded and from the
// next maxPageNumber-1 result pages it links to, in page order.
//
// On a navigation failure, or when fewer result pages are linked than
// requested, the articles gathered so far are returned with a
// *browser.NavigationError.
func (h *Harvester) Harvest(ctx context.Context, page Page, maxPageNumber int) ([]Article, error) {
	if maxPageNumber < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidPageCount, maxPageNumber)
	}

	// Pagination links come from the first page, before anything navigates away.
	html, location, err := page.HTML(ctx)
	var nextPages []string
	articles := make([]Article, 0)
	if err != nil {
		h.warn(&ExtractionError{Page: 1, Err: err})
	} else {
		if nextPages, err = ExtractPageURLs(html, location); err != nil {
			h.warn(&ExtractionError{Page: 1, Err: err})
		}
		articles = append(articles, h.extract(1, html, location)...)
	}
	h.logger.Debug("Discovered result pages.", zap.Int("count", len(nextPages)))

	for i := 0; i < maxPageNumber-1; i++ {
		n := i + 2
		if i >= len(nextPages) {
			return articles, &browser.NavigationError{
				Milestone: browser.NetworkAlmostIdle,
				Err:       fmt.Errorf("result page %d: %w", n, ErrNoNextPage),
			}
		}

		h.logger.Info("Scraping result page.", zap.Int("page", n))
		if err := page.Navigate(ctx, nextPages[i], browser.NetworkAlmostIdle); err != nil {
			return articles, err
		}

		html, location, err := page.HTML(ctx)
		if err != nil {
			h.warn(&ExtractionError{Page: n, Err: err})
			continue
		}
		articles = append(articles, h.extract(n, html, location)...)
	}

	h.logger.Info("Harvest complete.", zap.Int("articles", len(articles)))
	return articles, nil
}

func (h *Harvester) extract(n int, html, location string) []Article {
	found, err := ExtractArticles(html, location)
	if err != nil {
		h.warn(&ExtractionError{Page: n, Err: err})
		return nil
	}
	h.logger.Debug("Extracted articles.", zap.Int("page", n), zap.Int("count", len(found)))
	return found
}

func (h *Harvester) warn(err *ExtractionError) {
	h.logger.Warn("Result page contributed no articles.", zap.Int("page", err.Page), zap.Error(err))
}
