// internal/browser/browser_integration_test.go
package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chromedp/cdproto/fetch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/serp-harvester/internal/config"
	"github.com/xkilldash9x/serp-harvester/internal/interceptor"
)

// findChrome locates a Chrome binary or skips the test.
func findChrome(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser integration test in short mode")
	}
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	t.Skip("no Chrome binary found on PATH")
	return ""
}

func newTestSession(t *testing.T) (*Manager, *Session) {
	t.Helper()
	cfg := config.NewDefaultConfig().Browser
	cfg.ChromePath = findChrome(t)
	cfg.NavigationTimeout = 15 * time.Second

	m := NewManager(cfg, zaptest.NewLogger(t))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s, err := m.OpenSession(ctx)
	require.NoError(t, err)
	t.Cleanup(func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.Close(closeCtx)
	})
	return m, s
}

// siteHits counts requests that reached the fixture server.
type siteHits struct {
	stylesheet atomic.Int32
	image      atomic.Int32
	beacon     atomic.Int32
}

func testSite() (*httptest.Server, *siteHits) {
	hits := &siteHits{}
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>fixture</title></head><body><h1 id="t">hello</h1></body></html>`)
	})
	mux.HandleFunc("/data.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "payload-body")
	})
	mux.HandleFunc("/assets", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head>
<link rel="stylesheet" href="/style.css" onerror="window.cssFailed = true">
</head><body>
<img src="/pixel.png" onerror="window.imgFailed = true">
<script>fetch("/api/bgasy?q=1").then(r => r.text()).then(t => { window.beacon = t; });</script>
</body></html>`)
	})
	mux.HandleFunc("/style.css", func(w http.ResponseWriter, r *http.Request) {
		hits.stylesheet.Add(1)
		w.Header().Set("Content-Type", "text/css")
		fmt.Fprint(w, "h1 { color: red; }")
	})
	mux.HandleFunc("/pixel.png", func(w http.ResponseWriter, r *http.Request) {
		hits.image.Add(1)
		w.Header().Set("Content-Type", "image/png")
	})
	mux.HandleFunc("/api/bgasy", func(w http.ResponseWriter, r *http.Request) {
		hits.beacon.Add(1)
		fmt.Fprint(w, "beacon-ok")
	})
	return httptest.NewServer(mux), hits
}

func TestSessionIntegration(t *testing.T) {
	m, s := newTestSession(t)
	site, hits := testSite()
	defer site.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	p := s.Page()

	t.Run("navigate and read document", func(t *testing.T) {
		require.NoError(t, p.Navigate(ctx, site.URL+"/", DOMContentLoaded))
		html, loc, err := p.HTML(ctx)
		require.NoError(t, err)
		assert.Contains(t, html, "hello")
		assert.Equal(t, site.URL+"/", loc)
	})

	t.Run("network idle milestone", func(t *testing.T) {
		require.NoError(t, p.Navigate(ctx, site.URL+"/?page=2", NetworkAlmostIdle))
	})

	t.Run("empty url is rejected", func(t *testing.T) {
		err := p.Navigate(ctx, "", DOMContentLoaded)
		assert.ErrorIs(t, err, ErrEmptyURL)
	})

	t.Run("evaluate awaits promises", func(t *testing.T) {
		var body string
		require.NoError(t, p.Evaluate(ctx, `fetch("/data.txt").then(r => r.text())`, &body))
		assert.Equal(t, "payload-body", body)
	})

	t.Run("listen sees fetch events", func(t *testing.T) {
		seen := make(chan string, 16)
		p.Listen(func(ev interface{}) {
			if e, ok := ev.(*fetch.EventRequestPaused); ok {
				select {
				case seen <- e.Request.URL:
				default:
				}
				go func() { _ = p.Run(context.Background(), fetch.ContinueRequest(e.RequestID)) }()
			}
		})
		require.NoError(t, p.Run(ctx, fetch.Enable()))
		require.NoError(t, p.Navigate(ctx, site.URL+"/?page=3", Load))
		select {
		case u := <-seen:
			assert.Contains(t, u, site.URL)
		case <-time.After(5 * time.Second):
			t.Fatal("no paused request observed")
		}
		require.NoError(t, p.Run(ctx, fetch.Disable()))
	})

	t.Run("interceptor blocks assets and captures the beacon", func(t *testing.T) {
		// A fresh tab keeps the listener above from answering these requests.
		tab, err := s.NewPage(ctx)
		require.NoError(t, err)
		defer tab.Close(ctx)

		match, err := interceptor.New(interceptor.Rule{MatchSubstring: "bgasy"}, zaptest.NewLogger(t)).Install(ctx, tab)
		require.NoError(t, err)
		require.NoError(t, tab.Navigate(ctx, site.URL+"/assets", Load))

		awaitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		u, err := match.Await(awaitCtx)
		require.NoError(t, err)
		assert.Equal(t, site.URL+"/api/bgasy?q=1", u)

		// The matched request is let through to the server.
		assert.Eventually(t, func() bool {
			var beacon string
			return tab.Evaluate(ctx, `window.beacon || ""`, &beacon) == nil && beacon == "beacon-ok"
		}, 5*time.Second, 50*time.Millisecond)

		var failed struct {
			CSS bool `json:"css"`
			Img bool `json:"img"`
		}
		require.NoError(t, tab.Evaluate(ctx, `({css: window.cssFailed === true, img: window.imgFailed === true})`, &failed))
		assert.True(t, failed.CSS, "stylesheet should fail in the page")
		assert.True(t, failed.Img, "image should fail in the page")
		assert.Zero(t, hits.stylesheet.Load(), "blocked stylesheet reached the server")
		assert.Zero(t, hits.image.Load(), "blocked image reached the server")
		assert.Equal(t, int32(1), hits.beacon.Load())

		stats := match.Stats()
		assert.GreaterOrEqual(t, stats.Aborted, int64(2))
		assert.Equal(t, int64(1), stats.Matched)
	})

	t.Run("secondary page", func(t *testing.T) {
		tab, err := s.NewPage(ctx)
		require.NoError(t, err)
		require.NoError(t, tab.Navigate(ctx, site.URL+"/", Load))
		require.NoError(t, tab.Close(ctx))
		require.NoError(t, tab.Close(ctx), "closing twice is a no-op")

		select {
		case <-tab.Done():
		case <-time.After(5 * time.Second):
			t.Fatal("closed tab never reported done")
		}
		err = tab.Navigate(ctx, site.URL+"/", Load)
		assert.ErrorIs(t, err, ErrPageClosed)
	})

	t.Run("close releases the session", func(t *testing.T) {
		require.Equal(t, 1, m.Active())
		require.NoError(t, s.Close(ctx))
		assert.Zero(t, m.Active())
		_, err := s.NewPage(ctx)
		assert.ErrorIs(t, err, ErrSessionClosed)
	})
}
