package cdp

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/dgnsrekt/phx_devtools/internal/capture"
)

// Tab is one attached page target. It evaluates scripts in the page and
// owns the tab's interceptor.
type Tab struct {
	ID     target.ID
	URL    string
	ctx    context.Context
	cancel context.CancelFunc
	in     *capture.Interceptor
	loads  chan struct{}
}

func newTab(id target.ID, url string, ctx context.Context, cancel context.CancelFunc) *Tab {
	return &Tab{
		ID:     id,
		URL:    url,
		ctx:    ctx,
		cancel: cancel,
		loads:  make(chan struct{}, 1),
	}
}

// TargetID returns the CDP target id as a string.
func (t *Tab) TargetID() string {
	return string(t.ID)
}

// Interceptor returns the tab's interceptor.
func (t *Tab) Interceptor() *capture.Interceptor {
	return t.in
}

// Loaded signals each completed document load. Signals collapse while
// nobody is receiving.
func (t *Tab) Loaded() <-chan struct{} {
	return t.loads
}

func (t *Tab) signalLoaded() {
	select {
	case t.loads <- struct{}{}:
	default:
	}
}

// Evaluate runs expression in the page (Runtime.evaluate, returnByValue)
// and decodes the result into out. It is bounded by both ctx and the tab.
func (t *Tab) Evaluate(ctx context.Context, expression string, out any) error {
	runCtx, cancel := context.WithCancel(t.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, chromedp.Evaluate(expression, out)); err != nil {
		return fmt.Errorf("cdp: evaluate: %w", err)
	}
	return nil
}

// responseBody fetches a finished response without consuming it.
func (t *Tab) responseBody(id network.RequestID) capture.BodyFetcher {
	return func(ctx context.Context) ([]byte, error) {
		bodyCtx, bodyCancel := context.WithTimeout(t.ctx, 10*time.Second)
		defer bodyCancel()
		stop := context.AfterFunc(ctx, bodyCancel)
		defer stop()

		var body []byte
		err := chromedp.Run(bodyCtx, chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			body, err = network.GetResponseBody(id).Do(ctx)
			return err
		}))
		return body, err
	}
}

func (t *Tab) close() {
	if t.in != nil {
		t.in.Close()
	}
	t.cancel()
}
