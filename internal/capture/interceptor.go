// Package capture turns Chrome DevTools Protocol network events of one tab
// into interception events. It only observes: nothing in the page is
// patched or altered.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"

	"github.com/dgnsrekt/phx_devtools/internal/types"
)

// Evaluator runs a JavaScript expression in the page and decodes its JSON
// result into out.
type Evaluator interface {
	Evaluate(ctx context.Context, expression string, out any) error
}

// Config tunes an Interceptor. Zero values select defaults.
type Config struct {
	CaptureWS     bool
	CaptureHTTP   bool
	MaxFrameBytes int
	MaxBodyBytes  int
	// ChannelRefreshDelay is the wait before re-reading channels after a
	// join or leave.
	ChannelRefreshDelay time.Duration
	BufferSize          int
	Logger              *slog.Logger
}

const (
	defaultChannelRefreshDelay = 100 * time.Millisecond
	defaultEventBuffer         = 1024
	evalTimeout                = 10 * time.Second
	staleRequestAge            = 5 * time.Minute
	staleSweepInterval         = time.Minute
)

// Interceptor observes one tab. Network events are emitted as soon as they
// arrive; Start detects the page's LiveSocket and enables connection and
// channel reporting.
type Interceptor struct {
	eval   Evaluator
	cfg    Config
	logger *slog.Logger
	events chan Event

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	closed        bool
	active        bool
	tabID         int
	liveSocketURL string
	refresh       *time.Timer
	sockets       map[network.RequestID]string
	pending       map[network.RequestID]*pendingRequest

	wg sync.WaitGroup
}

// NewInterceptor creates an inactive interceptor and starts its stale
// request sweeper.
func NewInterceptor(eval Evaluator, cfg Config) *Interceptor {
	if cfg.ChannelRefreshDelay <= 0 {
		cfg.ChannelRefreshDelay = defaultChannelRefreshDelay
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultEventBuffer
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	i := &Interceptor{
		eval:    eval,
		cfg:     cfg,
		logger:  cfg.Logger,
		events:  make(chan Event, cfg.BufferSize),
		ctx:     ctx,
		cancel:  cancel,
		sockets: make(map[network.RequestID]string),
		pending: make(map[network.RequestID]*pendingRequest),
	}
	i.wg.Add(1)
	go i.cleanupLoop()
	return i
}

// Events returns the emitted events. The channel is closed by Close.
func (i *Interceptor) Events() <-chan Event {
	return i.events
}

// Start is the activation signal. It looks for window.liveSocket; when found
// it emits ConnectionInfoEvent then ReadyEvent, otherwise NotFoundEvent.
// Evaluation errors also produce NotFoundEvent and are returned.
func (i *Interceptor) Start(ctx context.Context, tabID int) error {
	var res struct {
		Found bool                 `json:"found"`
		Info  types.ConnectionInfo `json:"info"`
	}
	evalCtx, cancel := context.WithTimeout(ctx, evalTimeout)
	defer cancel()
	if err := i.eval.Evaluate(evalCtx, detectScript, &res); err != nil {
		i.emit(NotFoundEvent{TabID: tabID})
		return fmt.Errorf("capture: detect liveSocket: %w", err)
	}
	if !res.Found {
		i.emit(NotFoundEvent{TabID: tabID})
		return nil
	}
	if res.Info.Channels == nil {
		res.Info.Channels = []types.Channel{}
	}

	i.mu.Lock()
	i.active = true
	i.tabID = tabID
	i.liveSocketURL = res.Info.URL
	i.mu.Unlock()

	i.logger.Info("LiveSocket detected", "tab_id", tabID, "url", res.Info.URL, "channels", len(res.Info.Channels))
	i.emit(ConnectionInfoEvent{Info: res.Info})
	i.emit(ReadyEvent{TabID: tabID})
	return nil
}

// Active reports whether Start found a LiveSocket since the last Reset.
func (i *Interceptor) Active() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.active
}

// Reset deactivates the interceptor after a full page navigation. The
// caller signals Start again once the new document is ready.
func (i *Interceptor) Reset() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.active = false
	i.liveSocketURL = ""
	if i.refresh != nil {
		i.refresh.Stop()
		i.refresh = nil
	}
}

// Close stops timers and closes the event channel. Handlers called after
// Close are ignored.
func (i *Interceptor) Close() {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return
	}
	i.closed = true
	if i.refresh != nil {
		i.refresh.Stop()
	}
	i.mu.Unlock()

	i.cancel()
	i.wg.Wait()

	i.mu.Lock()
	close(i.events)
	i.mu.Unlock()
}

// emit queues ev without blocking the CDP event loop.
func (i *Interceptor) emit(ev Event) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return
	}
	select {
	case i.events <- ev:
	default:
		i.logger.Warn("Interceptor event buffer full, dropping event", "event", fmt.Sprintf("%T", ev))
	}
}

// scheduleChannelRefresh re-reads the channel list after the configured
// delay. Further triggers within the delay collapse into one read.
func (i *Interceptor) scheduleChannelRefresh() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.active || i.closed {
		return
	}
	if i.refresh != nil {
		i.refresh.Stop()
	}
	i.refresh = time.AfterFunc(i.cfg.ChannelRefreshDelay, i.refreshChannels)
}

func (i *Interceptor) refreshChannels() {
	ctx, cancel := context.WithTimeout(i.ctx, evalTimeout)
	defer cancel()
	var channels []types.Channel
	if err := i.eval.Evaluate(ctx, channelsScript, &channels); err != nil {
		i.logger.Debug("Channel refresh failed", "error", err)
		return
	}
	if channels == nil {
		channels = []types.Channel{}
	}
	if !i.Active() {
		return
	}
	i.emit(ChannelsUpdatedEvent{Channels: channels})
}

func (i *Interceptor) cleanupLoop() {
	defer i.wg.Done()
	ticker := time.NewTicker(staleSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			i.cleanupStale(time.Now())
		case <-i.ctx.Done():
			return
		}
	}
}
