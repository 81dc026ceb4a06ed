// internal/search/search.go
package search

import (
	"context"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/serp-harvester/internal/browser"
)

// Navigable is anything that can be sent to a URL and waited on.
type Navigable interface {
	Navigate(ctx context.Context, url string, milestone browser.LoadMilestone) error
}

// Navigator issues search queries.
type Navigator struct {
	baseURL string
	logger  *zap.Logger
}

// NewNavigator returns a navigator issuing queries against baseURL.
func NewNavigator(baseURL string, logger *zap.Logger) *Navigator {
	return &Navigator{baseURL: baseURL, logger: logger.Named("search")}
}

// BuildURL returns base with term as its q parameter.
func BuildURL(base, term string) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "q=" + url.QueryEscape(term)
}

// Search loads the results page for term and returns once its DOM content
// has loaded. Subresources may still be in flight.
func (n *Navigator) Search(ctx context.Context, page Navigable, term string) error {
	target := BuildURL(n.baseURL, term)
	n.logger.Info("Searching.", zap.String("term", term), zap.String("url", target))
	return page.Navigate(ctx, target, browser.DOMContentLoaded)
}

// FirstWord returns the first whitespace-delimited token of the first line
// of s, or "" when there is none.
func FirstWord(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
