package relay

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dgnsrekt/phx_devtools/internal/capture"
	"github.com/dgnsrekt/phx_devtools/internal/phoenix"
	"github.com/dgnsrekt/phx_devtools/internal/types"
)

func TestHighlighterSkipsActiveSelectors(t *testing.T) {
	tab := newFakeTab("T")
	h := NewHighlighter(tab, quietLogger())
	now := time.Unix(1000, 0)
	h.now = func() time.Time { return now }

	hints := []phoenix.ElementHint{{Selector: `[data-phx-component="1"]`, Type: "diff"}}
	h.Highlight(context.Background(), types.Inbound, hints, "diff")
	h.Highlight(context.Background(), types.Inbound, hints, "diff")
	if tab.scriptCount() != 1 {
		t.Fatalf("scripts = %d, want 1 while highlight is active", tab.scriptCount())
	}

	now = now.Add(highlightDuration)
	h.Highlight(context.Background(), types.Inbound, hints, "diff")
	if tab.scriptCount() != 2 {
		t.Fatalf("scripts = %d, want 2 after expiry", tab.scriptCount())
	}
}

func TestHighlighterRootFallback(t *testing.T) {
	tab := newFakeTab("T")
	h := NewHighlighter(tab, quietLogger())

	h.Highlight(context.Background(), types.Outbound, nil, "event")
	script := tab.lastScript()
	if !strings.Contains(script, "[data-phx-main]") || !strings.Contains(script, "[phx-socket-id]") {
		t.Fatalf("script lacks root fallback: %s", script)
	}
	if !strings.Contains(script, `})([], "outbound", "event", 2000)`) {
		t.Fatalf("unexpected script arguments: %s", script)
	}

	h.Highlight(context.Background(), types.Outbound, nil, "event")
	if tab.scriptCount() != 1 {
		t.Fatalf("root highlighted twice within the highlight duration")
	}
}

func TestHighlighterSwallowsErrors(t *testing.T) {
	tab := newFakeTab("T")
	tab.err = errors.New("Cannot find context with specified id")
	h := NewHighlighter(tab, quietLogger())
	h.Highlight(context.Background(), types.Inbound, []phoenix.ElementHint{{Selector: "#x"}}, "")
	if tab.scriptCount() != 1 {
		t.Fatalf("scripts = %d, want 1", tab.scriptCount())
	}
}

func TestFrameHighlight(t *testing.T) {
	tests := []struct {
		name      string
		ev        capture.FrameEvent
		wantOK    bool
		wantLabel string
		wantHints int
	}{
		{
			name:   "undecoded",
			ev:     capture.FrameEvent{Data: "x"},
			wantOK: false,
		},
		{
			name:   "non_liveview_topic",
			ev:     capture.FrameEvent{Decoded: true, Parsed: []any{nil, "1", "phoenix", "heartbeat", map[string]any{}}},
			wantOK: false,
		},
		{
			name:      "event_hints_preferred",
			ev:        capture.FrameEvent{Decoded: true, Parsed: []any{"1", "2", "lv:a", "diff", map[string]any{}}, Affected: []phoenix.ElementHint{{Selector: "#flash", Type: "diff"}}},
			wantOK:    true,
			wantLabel: "diff",
			wantHints: 1,
		},
		{
			name:      "derived_from_payload",
			ev:        capture.FrameEvent{Decoded: true, Parsed: []any{"1", "2", "lv:a", "event", map[string]any{"d": map[string]any{"2": map[string]any{}}}}},
			wantOK:    true,
			wantLabel: "event",
			wantHints: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hints, label, ok := frameHighlight(tt.ev)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if label != tt.wantLabel || len(hints) != tt.wantHints {
				t.Fatalf("label = %q hints = %v", label, hints)
			}
		})
	}
}

func TestFleetFollowsSettings(t *testing.T) {
	fleet := NewFleet(true)
	r := New(newFakeTab("T"), newFakeInterceptor(), nil, Options{Logger: quietLogger()})
	fleet.Add(r)

	updates := make(chan types.Update, 2)
	off := false
	updates <- types.Update{Kind: types.UpdateMessages}
	updates <- types.Update{Kind: types.UpdateSettings, Highlighting: &off}
	close(updates)

	if err := fleet.Follow(context.Background(), updates); err != nil {
		t.Fatalf("Follow() error = %v", err)
	}
	if fleet.Highlighting() || r.highlighter.Enabled() {
		t.Fatalf("highlighting still enabled after settings update")
	}

	fleet.Remove(r)
	if fleet.Len() != 0 {
		t.Fatalf("Len() = %d after Remove", fleet.Len())
	}
}
