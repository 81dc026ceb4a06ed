// internal/browser/lifecycle_test.go
package browser

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lifecycle(name string, frame cdp.FrameID, loader cdp.LoaderID) *page.EventLifecycleEvent {
	return &page.EventLifecycleEvent{Name: name, FrameID: frame, LoaderID: loader}
}

func TestLifecycleWatch(t *testing.T) {
	const main, loader = cdp.FrameID("main"), cdp.LoaderID("L1")

	t.Run("main frame found behind a flood of subframe events", func(t *testing.T) {
		w := newLifecycleWatch(NetworkAlmostIdle)
		for i := 0; i < 500; i++ {
			w.observe(lifecycle("networkAlmostIdle", cdp.FrameID(fmt.Sprintf("iframe-%d", i)), cdp.LoaderID(fmt.Sprintf("sub-%d", i))))
		}
		w.observe(lifecycle("networkAlmostIdle", main, loader))

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		assert.NoError(t, w.wait(ctx, main, loader))
	})

	t.Run("event arriving while waiting", func(t *testing.T) {
		w := newLifecycleWatch(DOMContentLoaded)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		go func() {
			time.Sleep(20 * time.Millisecond)
			for i := 0; i < 200; i++ {
				w.observe(lifecycle("DOMContentLoaded", "iframe", cdp.LoaderID(fmt.Sprintf("sub-%d", i))))
			}
			w.observe(lifecycle("DOMContentLoaded", main, loader))
		}()
		assert.NoError(t, w.wait(ctx, main, loader))
	})

	t.Run("other milestones and stale loaders are ignored", func(t *testing.T) {
		w := newLifecycleWatch(Load)
		w.observe(lifecycle("DOMContentLoaded", main, loader))
		w.observe(lifecycle("load", main, "previous"))
		w.observe(&page.EventFrameNavigated{})

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		err := w.wait(ctx, main, loader)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
