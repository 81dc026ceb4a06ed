// internal/harvest/extract.go
package harvest

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Fixed selectors for a search results page.
const (
	PageLinkSelector = `a[aria-label*="Page"]`
	ResultSelector   = ".yuRUbf > a"
	TitleSelector    = "h3"
)

// Article is one search result.
type Article struct {
	Link  string `json:"link"`
	Title string `json:"title"`
}

// ExtractArticles returns the results on a page in document order. Anchors
// without a link or a non-empty title are skipped. Relative links are
// resolved against base.
func ExtractArticles(html, base string) ([]Article, error) {
	doc, baseURL, err := parse(html, base)
	if err != nil {
		return nil, err
	}

	articles := make([]Article, 0)
	doc.Find(ResultSelector).Each(func(_ int, a *goquery.Selection) {
		link, ok := resolve(baseURL, a)
		if !ok {
			return
		}
		title := strings.TrimSpace(a.Find(TitleSelector).First().Text())
		if title == "" {
			return
		}
		articles = append(articles, Article{Link: link, Title: title})
	})
	return articles, nil
}

// ExtractPageURLs returns the absolute URLs of the pagination controls on
// a page, in document order.
func ExtractPageURLs(html, base string) ([]string, error) {
	doc, baseURL, err := parse(html, base)
	if err != nil {
		return nil, err
	}

	var urls []string
	doc.Find(PageLinkSelector).Each(func(_ int, a *goquery.Selection) {
		if link, ok := resolve(baseURL, a); ok {
			urls = append(urls, link)
		}
	})
	return urls, nil
}

func parse(html, base string) (*goquery.Document, *url.URL, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, nil, fmt.Errorf("parsing document: %w", err)
	}
	var baseURL *url.URL
	if base != "" {
		if baseURL, err = url.Parse(base); err != nil {
			return nil, nil, fmt.Errorf("parsing page location %q: %w", base, err)
		}
	}
	return doc, baseURL, nil
}

// resolve turns the anchor's href into an absolute URL.
func resolve(base *url.URL, a *goquery.Selection) (string, bool) {
	href, exists := a.Attr("href")
	href = strings.TrimSpace(href)
	if !exists || href == "" {
		return "", false
	}
	u, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if !u.IsAbs() {
		return "", false
	}
	return u.String(), true
}
