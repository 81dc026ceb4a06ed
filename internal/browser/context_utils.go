// internal/browser/context_utils.go
package browser

import (
	"context"

	"github.com/chromedp/chromedp"
)

// CombineContext returns a context that carries the values of ctx1 (the
// chromedp target) and is canceled when either ctx1 or ctx2 is done.
func CombineContext(ctx1, ctx2 context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(ctx1)
	stop := context.AfterFunc(ctx2, cancel)
	return combined, func() {
		stop()
		cancel()
	}
}

// attach performs the first chromedp.Run on targetCtx, which allocates the
// browser or creates the tab. That first Run must not carry a deadline, or
// the deadline would end up owning the target, so it runs on targetCtx as-is
// while ctx bounds how long we wait for it.
func attach(ctx, targetCtx context.Context, cancelTarget context.CancelFunc) error {
	errc := make(chan error, 1)
	go func() { errc <- chromedp.Run(targetCtx) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		cancelTarget()
		<-errc
		return ctx.Err()
	}
}
