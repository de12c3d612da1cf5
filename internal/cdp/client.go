// Package cdp attaches to browser tabs over the Chrome DevTools Protocol and
// routes their network events to one capture.Interceptor per tab.
package cdp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/dgnsrekt/phx_devtools/internal/capture"
	"github.com/dgnsrekt/phx_devtools/internal/types"
)

// Config selects the browser and the tabs to inspect.
type Config struct {
	URL            string
	TabURLFilter   string
	ReloadOnAttach bool
	Capture        capture.Config
	Logger         *slog.Logger
}

// AttachFunc is called once per attached tab, after its interceptor is
// receiving events.
type AttachFunc func(tab *Tab)

// Client manages CDP connections to browser tabs.
type Client struct {
	cfg         Config
	logger      *slog.Logger
	tabRegistry *TabRegistry
	onAttach    AttachFunc
	allocCtx    context.Context
	allocCancel context.CancelFunc
	tabs        map[target.ID]*Tab
	tabsMu      sync.RWMutex
}

func NewClient(cfg Config, tabRegistry *TabRegistry, onAttach AttachFunc) *Client {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Capture.Logger == nil {
		cfg.Capture.Logger = cfg.Logger
	}
	return &Client{
		cfg:         cfg,
		logger:      cfg.Logger,
		tabRegistry: tabRegistry,
		onAttach:    onAttach,
		tabs:        make(map[target.ID]*Tab),
	}
}

func (c *Client) Connect(ctx context.Context) error {
	c.logger.Info("Connecting to Chromium", "url", c.cfg.URL)

	c.allocCtx, c.allocCancel = chromedp.NewRemoteAllocator(context.Background(), c.cfg.URL)

	tempCtx, tempCancel := chromedp.NewContext(c.allocCtx)
	defer tempCancel()
	stop := context.AfterFunc(ctx, tempCancel)
	defer stop()

	if err := chromedp.Run(tempCtx); err != nil {
		return fmt.Errorf("cdp: connect to browser: %w", err)
	}

	targets, err := chromedp.Targets(tempCtx)
	if err != nil {
		return fmt.Errorf("cdp: enumerate targets: %w", err)
	}

	c.logger.Info("Found browser targets", "count", len(targets))

	attachedCount := 0
	for _, t := range targets {
		if t.Type != "page" {
			continue
		}
		if !matchesTabURL(c.cfg.TabURLFilter, t.URL) {
			c.logger.Debug("Skipping tab (url filter)", "url", t.URL)
			continue
		}
		if err := c.attachToTab(t.TargetID, t.URL); err != nil {
			c.logger.Error("Failed to attach to tab", "target_id", t.TargetID, "url", t.URL, "error", err)
			continue
		}
		attachedCount++
	}

	if attachedCount == 0 {
		return fmt.Errorf("cdp: no tabs found matching PHX_TAB_URL_FILTER=%q", c.cfg.TabURLFilter)
	}

	c.logger.Info("Attached to tabs", "count", attachedCount, "tab_url_filter", c.cfg.TabURLFilter)
	return nil
}

func (c *Client) attachToTab(targetID target.ID, url string) error {
	tabInfo, err := c.tabRegistry.Register(targetID, url)
	if err != nil {
		return fmt.Errorf("register tab: %w", err)
	}

	tabCtx, tabCancel := chromedp.NewContext(c.allocCtx, chromedp.WithTargetID(targetID))
	tab := newTab(targetID, url, tabCtx, tabCancel)
	tab.in = capture.NewInterceptor(tab, c.cfg.Capture)

	if err := chromedp.Run(tabCtx, network.Enable(), network.SetCacheDisabled(true), page.Enable()); err != nil {
		tab.close()
		c.tabRegistry.Remove(targetID)
		return fmt.Errorf("enable network/page domains: %w", err)
	}

	c.tabsMu.Lock()
	c.tabs[targetID] = tab
	c.tabsMu.Unlock()

	c.logger.Info("Attached to tab", "target_id", targetID, "path_segment", tabInfo.PathSegment, "browser_id", tabInfo.BrowserID, "url", truncateURL(url))
	chromedp.ListenTarget(tabCtx, c.createEventHandler(tab))

	if c.cfg.ReloadOnAttach {
		reloadCtx, reloadCancel := context.WithTimeout(tabCtx, 30*time.Second)
		defer reloadCancel()
		if err := chromedp.Run(reloadCtx, chromedp.Reload()); err != nil {
			c.logger.Warn("Failed to reload tab (continuing)", "target_id", targetID, "error", err)
		} else {
			c.logger.Info("Reloaded tab after attach", "target_id", targetID, "url", truncateURL(url))
		}
	}

	if c.onAttach != nil {
		c.onAttach(tab)
	}
	return nil
}

func (c *Client) createEventHandler(tab *Tab) func(ev interface{}) {
	in := tab.in
	return func(ev interface{}) {
		switch e := ev.(type) {
		case *page.EventFrameNavigated:
			if e.Frame.ParentID == "" {
				in.Reset()
				if info, err := c.tabRegistry.Register(tab.ID, e.Frame.URL); err == nil {
					c.logger.Info("Tab navigated (full)", "target_id", tab.ID, "path_segment", info.PathSegment, "url", truncateURL(e.Frame.URL))
				}
			}
		case *page.EventNavigatedWithinDocument:
			if info, err := c.tabRegistry.Register(tab.ID, e.URL); err == nil {
				c.logger.Debug("Tab navigated (SPA)", "target_id", tab.ID, "path_segment", info.PathSegment, "url", truncateURL(e.URL))
			}
		case *page.EventLoadEventFired:
			tab.signalLoaded()
		case *network.EventRequestWillBeSent:
			in.OnRequestWillBeSent(e)
		case *network.EventResponseReceived:
			in.OnResponseReceived(e)
		case *network.EventLoadingFinished:
			in.OnLoadingFinished(e, tab.responseBody(e.RequestID))
		case *network.EventLoadingFailed:
			in.OnLoadingFailed(e)
		case *network.EventWebSocketCreated:
			in.OnWebSocketCreated(e)
		case *network.EventWebSocketFrameReceived:
			in.OnWebSocketFrameReceived(e)
		case *network.EventWebSocketFrameSent:
			in.OnWebSocketFrameSent(e)
		case *network.EventWebSocketClosed:
			in.OnWebSocketClosed(e)
		}
	}
}

// Close detaches from every tab and releases the allocator. Interceptor
// event channels are closed, which ends their relays.
func (c *Client) Close() error {
	c.tabsMu.Lock()
	for id, tab := range c.tabs {
		tab.close()
		c.tabRegistry.Remove(id)
	}
	c.tabs = make(map[target.ID]*Tab)
	c.tabsMu.Unlock()

	if c.allocCancel != nil {
		c.allocCancel()
	}

	c.logger.Info("CDP client closed")
	return nil
}

// Tabs lists the attached tabs in attach order.
func (c *Client) Tabs() []types.TabInfo {
	return c.tabRegistry.List()
}

func (c *Client) GetTabCount() int {
	c.tabsMu.RLock()
	defer c.tabsMu.RUnlock()
	return len(c.tabs)
}

func matchesTabURL(filter, url string) bool {
	if filter == "" {
		return true
	}
	return strings.Contains(strings.ToLower(url), strings.ToLower(filter))
}

func truncateURL(url string) string {
	if len(url) > 120 {
		return url[:120] + "..."
	}
	return url
}
