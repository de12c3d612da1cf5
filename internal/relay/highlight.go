package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgnsrekt/phx_devtools/internal/capture"
	"github.com/dgnsrekt/phx_devtools/internal/phoenix"
	"github.com/dgnsrekt/phx_devtools/internal/types"
)

const (
	highlightDuration = 2 * time.Second
	rootSelector      = "[data-phx-main]"
)

// highlightScript marks the matched elements, falling back to the LiveView
// root when nothing matches. Classes and labels are removed page-side.
const highlightScript = `(function (selectors, dir, label, ms) {
  var els = [];
  var add = function (s) {
    try { document.querySelectorAll(s).forEach(function (e) { els.push(e); }); } catch (e) {}
  };
  selectors.forEach(add);
  if (els.length === 0) {
    add('[data-phx-main]');
    if (els.length === 0) add('[phx-socket-id]');
  }
  var n = 0;
  els.forEach(function (el) {
    if (el.classList.contains('phx-devtools-highlight')) return;
    n++;
    el.classList.add('phx-devtools-highlight', 'phx-devtools-highlight-' + dir);
    if (label) {
      var l = document.createElement('div');
      l.className = 'phx-devtools-label phx-devtools-label-' + dir;
      l.textContent = 'PHX: ' + label;
      l.style.position = 'absolute';
      l.style.zIndex = '10001';
      var r = el.getBoundingClientRect();
      l.style.top = (r.top + window.scrollY - 25) + 'px';
      l.style.left = (r.left + window.scrollX) + 'px';
      document.body.appendChild(l);
      setTimeout(function () { if (l.parentNode) l.parentNode.removeChild(l); }, ms);
    }
    setTimeout(function () {
      el.classList.remove('phx-devtools-highlight', 'phx-devtools-highlight-inbound', 'phx-devtools-highlight-outbound');
    }, ms);
  });
  return n;
})(%s, %s, %s, %d)`

// Highlighter briefly marks DOM elements touched by LiveView traffic.
type Highlighter struct {
	eval   capture.Evaluator
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	enabled bool
	active  map[string]time.Time
}

func NewHighlighter(eval capture.Evaluator, logger *slog.Logger) *Highlighter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Highlighter{
		eval:    eval,
		logger:  logger,
		now:     time.Now,
		enabled: true,
		active:  make(map[string]time.Time),
	}
}

// SetEnabled toggles future highlights. Highlights already applied expire
// on their own.
func (h *Highlighter) SetEnabled(enabled bool) {
	h.mu.Lock()
	h.enabled = enabled
	h.mu.Unlock()
}

func (h *Highlighter) Enabled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.enabled
}

// Highlight marks the elements of hints. An empty hint list highlights the
// LiveView root. Selectors still highlighted from an earlier call are
// skipped. Failures are logged at debug level and otherwise ignored.
func (h *Highlighter) Highlight(ctx context.Context, dir types.Direction, hints []phoenix.ElementHint, label string) {
	selectors, ok := h.claim(hints)
	if !ok {
		return
	}

	script, err := buildHighlightScript(selectors, dir, label)
	if err != nil {
		h.logger.Debug("Failed to build highlight script", "error", err)
		return
	}
	var n int
	if err := h.eval.Evaluate(ctx, script, &n); err != nil {
		h.logger.Debug("Highlight failed", "selectors", len(selectors), "error", err)
	}
}

// claim reserves selectors for the highlight duration and drops those that
// are still active.
func (h *Highlighter) claim(hints []phoenix.ElementHint) ([]string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.enabled {
		return nil, false
	}

	now := h.now()
	for sel, expiry := range h.active {
		if !now.Before(expiry) {
			delete(h.active, sel)
		}
	}

	expiry := now.Add(highlightDuration)
	if len(hints) == 0 {
		if _, busy := h.active[rootSelector]; busy {
			return nil, false
		}
		h.active[rootSelector] = expiry
		return []string{}, true
	}

	selectors := make([]string, 0, len(hints))
	for _, hint := range hints {
		if _, busy := h.active[hint.Selector]; busy {
			continue
		}
		h.active[hint.Selector] = expiry
		selectors = append(selectors, hint.Selector)
	}
	return selectors, len(selectors) > 0
}

func buildHighlightScript(selectors []string, dir types.Direction, label string) (string, error) {
	sel, err := json.Marshal(selectors)
	if err != nil {
		return "", err
	}
	d, err := json.Marshal(string(dir))
	if err != nil {
		return "", err
	}
	l, err := json.Marshal(label)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(highlightScript, sel, d, l, highlightDuration.Milliseconds()), nil
}

// frameHighlight picks the hints and label for a frame. Only LiveView
// frames are highlighted.
func frameHighlight(ev capture.FrameEvent) (hints []phoenix.ElementHint, label string, ok bool) {
	if !ev.Decoded {
		return nil, "", false
	}
	f, ok := phoenix.FrameFromValue(ev.Parsed)
	if !ok || !f.IsLiveView() {
		return nil, "", false
	}
	if len(ev.Affected) > 0 {
		return ev.Affected, f.Event, true
	}
	return phoenix.AffectedElements(f), f.Event, true
}
