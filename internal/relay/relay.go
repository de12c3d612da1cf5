// Package relay forwards one tab's interception events to the aggregator as
// canonical messages and highlights the DOM elements LiveView traffic
// touches.
package relay

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dgnsrekt/phx_devtools/internal/aggregator"
	"github.com/dgnsrekt/phx_devtools/internal/capture"
	"github.com/dgnsrekt/phx_devtools/internal/phoenix"
	"github.com/dgnsrekt/phx_devtools/internal/types"
)

// Tab is the page a relay serves.
type Tab interface {
	capture.Evaluator
	TargetID() string
	// Loaded signals each completed document load.
	Loaded() <-chan struct{}
}

// Interceptor is the event source of a tab.
type Interceptor interface {
	Events() <-chan capture.Event
	Start(ctx context.Context, tabID int) error
}

// Options tunes a Relay. Zero values select defaults.
type Options struct {
	Classifier *phoenix.Classifier
	// RetryDelay is the wait before re-signalling activation after a
	// not-found report, and between tab id lookups.
	RetryDelay time.Duration
	Logger     *slog.Logger
	Now        func() time.Time
}

const (
	defaultRetryDelay = time.Second
	highlightQueue    = 64
)

type highlightJob struct {
	dir   types.Direction
	hints []phoenix.ElementHint
	label string
}

// Relay serves one tab.
type Relay struct {
	tab         Tab
	in          Interceptor
	actions     aggregator.Actions
	classifier  *phoenix.Classifier
	highlighter *Highlighter
	retryDelay  time.Duration
	logger      *slog.Logger
	now         func() time.Time

	activate   chan struct{}
	highlights chan highlightJob

	mu    sync.Mutex
	tabID int
	retry *time.Timer
}

func New(tab Tab, in Interceptor, actions aggregator.Actions, opts Options) *Relay {
	if opts.Classifier == nil {
		opts.Classifier = phoenix.Default
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger.With("target_id", tab.TargetID())
	return &Relay{
		tab:         tab,
		in:          in,
		actions:     actions,
		classifier:  opts.Classifier,
		highlighter: NewHighlighter(tab, logger),
		retryDelay:  opts.RetryDelay,
		logger:      logger,
		now:         opts.Now,
		activate:    make(chan struct{}, 1),
		highlights:  make(chan highlightJob, highlightQueue),
	}
}

// SetHighlighting toggles DOM highlighting for future messages.
func (r *Relay) SetHighlighting(enabled bool) {
	r.highlighter.SetEnabled(enabled)
}

// TabID returns the numeric tab id once Run resolved it, otherwise 0.
func (r *Relay) TabID() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tabID
}

// Run resolves the tab id, activates the interceptor and forwards events
// until the interceptor's event channel closes or ctx ends.
func (r *Relay) Run(ctx context.Context) error {
	tabID, err := r.resolveTabID(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.tabID = tabID
	r.mu.Unlock()
	r.logger.Info("Relay started", "tab_id", tabID)

	runCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		r.stopRetry()
		wg.Wait()
	}()

	wg.Add(2)
	go func() {
		defer wg.Done()
		r.activationLoop(runCtx, tabID)
	}()
	go func() {
		defer wg.Done()
		r.highlightLoop(runCtx)
	}()
	r.signalActivate()

	for {
		select {
		case ev, ok := <-r.in.Events():
			if !ok {
				r.logger.Info("Relay stopped", "tab_id", tabID)
				return nil
			}
			r.handle(runCtx, tabID, ev)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *Relay) resolveTabID(ctx context.Context) (int, error) {
	for {
		tabID, err := r.actions.CurrentTabID(ctx, r.tab.TargetID())
		if err == nil {
			return tabID, nil
		}
		if errors.Is(err, aggregator.ErrInvalidTarget) {
			return 0, err
		}
		r.logger.Warn("Failed to resolve tab id, retrying", "error", err, "retry_in", r.retryDelay)
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(r.retryDelay):
		}
	}
}

func (r *Relay) activationLoop(ctx context.Context, tabID int) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.tab.Loaded():
			r.signalActivate()
		case <-r.activate:
			if err := r.in.Start(ctx, tabID); err != nil {
				r.logger.Debug("Activation failed", "tab_id", tabID, "error", err)
			}
		}
	}
}

func (r *Relay) signalActivate() {
	select {
	case r.activate <- struct{}{}:
	default:
	}
}

func (r *Relay) scheduleRetry() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.retry != nil {
		r.retry.Stop()
	}
	r.retry = time.AfterFunc(r.retryDelay, r.signalActivate)
}

func (r *Relay) stopRetry() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.retry != nil {
		r.retry.Stop()
		r.retry = nil
	}
}

func (r *Relay) handle(ctx context.Context, tabID int, ev capture.Event) {
	now := r.now().UnixMilli()
	switch e := ev.(type) {
	case capture.ConnectionInfoEvent:
		if err := r.actions.ConnectionInfo(ctx, tabID, e.Info); err != nil {
			r.logger.Warn("Failed to forward connection info", "tab_id", tabID, "error", err)
		}
	case capture.ChannelsUpdatedEvent:
		if err := r.actions.ChannelsUpdated(ctx, tabID, e.Channels); err != nil {
			r.logger.Warn("Failed to forward channels", "tab_id", tabID, "error", err)
		}
	case capture.FrameEvent:
		if hints, label, ok := frameHighlight(e); ok && r.highlighter.Enabled() {
			r.queueHighlight(highlightJob{dir: e.Direction, hints: hints, label: label})
		}
		r.capture(ctx, frameMessage(e, tabID, now))
	case capture.HTTPRequestEvent:
		msg, err := httpRequestMessage(e.Request, tabID, now)
		r.captureHTTP(ctx, msg, err)
	case capture.HTTPResponseEvent:
		msg, err := httpResponseMessage(e.Response, tabID, now)
		r.captureHTTP(ctx, msg, err)
	case capture.HTTPErrorEvent:
		msg, err := httpErrorMessage(e.Error, tabID, now)
		r.captureHTTP(ctx, msg, err)
	case capture.ReadyEvent:
		r.stopRetry()
		r.logger.Info("Phoenix LiveSocket intercepted", "tab_id", e.TabID)
	case capture.NotFoundEvent:
		r.logger.Debug("Phoenix LiveSocket not found, will retry", "tab_id", e.TabID, "retry_in", r.retryDelay)
		r.scheduleRetry()
	}
}

func (r *Relay) captureHTTP(ctx context.Context, msg types.Message, err error) {
	if err != nil {
		r.logger.Warn("Failed to encode HTTP message", "error", err)
		return
	}
	r.capture(ctx, msg)
}

func (r *Relay) capture(ctx context.Context, msg types.Message) {
	msg.IsPhoenix = r.classifier.IsPhoenixMessage(msg, nil)
	if err := r.actions.Capture(ctx, msg); err != nil {
		r.logger.Warn("Failed to forward message", "method", msg.Method, "tab_id", msg.TabID, "error", err)
	}
}

func (r *Relay) queueHighlight(job highlightJob) {
	select {
	case r.highlights <- job:
	default:
		r.logger.Debug("Highlight queue full, dropping highlight")
	}
}

func (r *Relay) highlightLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-r.highlights:
			evalCtx, cancel := context.WithTimeout(ctx, highlightDuration)
			r.highlighter.Highlight(evalCtx, job.dir, job.hints, job.label)
			cancel()
		}
	}
}
