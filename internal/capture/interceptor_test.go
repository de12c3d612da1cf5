package capture

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"

	"github.com/dgnsrekt/phx_devtools/internal/types"
)

type fakeEvaluator struct {
	mu      sync.Mutex
	results map[string]string
	err     error
	calls   []string
}

func (f *fakeEvaluator) Evaluate(_ context.Context, expression string, out any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, expression)
	if f.err != nil {
		return f.err
	}
	raw, ok := f.results[expression]
	if !ok {
		return errors.New("unexpected expression")
	}
	return json.Unmarshal([]byte(raw), out)
}

func (f *fakeEvaluator) callCount(expression string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == expression {
			n++
		}
	}
	return n
}

const foundResult = `{"found":true,"info":{"phxVersion":"LiveView 0.18+","channels":[{"topic":"lv:phx-1","joinedOnce":true,"state":"joined"}],"url":"ws://localhost:4000/live/websocket"}}`

func newTestInterceptor(t *testing.T, eval Evaluator, cfg Config) *Interceptor {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	}
	i := NewInterceptor(eval, cfg)
	t.Cleanup(i.Close)
	return i
}

func nextEvent(t *testing.T, i *Interceptor) Event {
	t.Helper()
	select {
	case ev, ok := <-i.Events():
		if !ok {
			t.Fatalf("event channel closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event")
	}
	return nil
}

func TestStartFound(t *testing.T) {
	eval := &fakeEvaluator{results: map[string]string{detectScript: foundResult}}
	i := newTestInterceptor(t, eval, Config{CaptureWS: true})

	if err := i.Start(context.Background(), 3); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !i.Active() {
		t.Fatalf("Active() = false after Start")
	}

	info, ok := nextEvent(t, i).(ConnectionInfoEvent)
	if !ok {
		t.Fatalf("first event is not ConnectionInfoEvent")
	}
	if info.Info.PhxVersion != "LiveView 0.18+" || len(info.Info.Channels) != 1 {
		t.Fatalf("unexpected connection info: %+v", info.Info)
	}
	ready, ok := nextEvent(t, i).(ReadyEvent)
	if !ok || ready.TabID != 3 {
		t.Fatalf("second event = %#v, want ReadyEvent{3}", ready)
	}
}

func TestStartNotFound(t *testing.T) {
	t.Run("no_live_socket", func(t *testing.T) {
		eval := &fakeEvaluator{results: map[string]string{detectScript: `{"found":false}`}}
		i := newTestInterceptor(t, eval, Config{})

		if err := i.Start(context.Background(), 1); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if _, ok := nextEvent(t, i).(NotFoundEvent); !ok {
			t.Fatalf("expected NotFoundEvent")
		}
		if i.Active() {
			t.Fatalf("Active() = true without LiveSocket")
		}
	})

	t.Run("evaluation_error", func(t *testing.T) {
		eval := &fakeEvaluator{err: errors.New("target closed")}
		i := newTestInterceptor(t, eval, Config{})

		if err := i.Start(context.Background(), 1); err == nil {
			t.Fatalf("Start() = nil error, want evaluation error")
		}
		if _, ok := nextEvent(t, i).(NotFoundEvent); !ok {
			t.Fatalf("expected NotFoundEvent")
		}
	})
}

func TestWebSocketFrames(t *testing.T) {
	eval := &fakeEvaluator{results: map[string]string{detectScript: foundResult}}
	i := newTestInterceptor(t, eval, Config{CaptureWS: true})

	i.OnWebSocketCreated(&network.EventWebSocketCreated{RequestID: "ws1", URL: "ws://localhost:4000/live/websocket"})
	if i.ActiveSockets() != 1 {
		t.Fatalf("ActiveSockets() = %d, want 1", i.ActiveSockets())
	}

	i.OnWebSocketFrameReceived(&network.EventWebSocketFrameReceived{
		RequestID: "ws1",
		Response: &network.WebSocketFrame{
			Opcode:      1,
			PayloadData: `["4","5","lv:phx-1","diff",{"0":{"data-phx-component":1}}]`,
		},
	})
	frame, ok := nextEvent(t, i).(FrameEvent)
	if !ok {
		t.Fatalf("expected FrameEvent")
	}
	if frame.Direction != types.Inbound || frame.URL != "ws://localhost:4000/live/websocket" {
		t.Fatalf("unexpected frame: %+v", frame)
	}
	if !frame.Decoded || frame.Parsed == nil {
		t.Fatalf("frame not decoded: %+v", frame)
	}

	i.OnWebSocketFrameSent(&network.EventWebSocketFrameSent{
		RequestID: "ws1",
		Response:  &network.WebSocketFrame{Opcode: 1, PayloadData: "not json"},
	})
	sent := nextEvent(t, i).(FrameEvent)
	if sent.Direction != types.Outbound || sent.Decoded || sent.Data != "not json" {
		t.Fatalf("unexpected outbound frame: %+v", sent)
	}

	i.OnWebSocketClosed(&network.EventWebSocketClosed{RequestID: "ws1"})
	if i.ActiveSockets() != 0 {
		t.Fatalf("ActiveSockets() = %d after close, want 0", i.ActiveSockets())
	}
}

func TestWebSocketBinaryFrameKeptOpaque(t *testing.T) {
	i := newTestInterceptor(t, &fakeEvaluator{}, Config{CaptureWS: true})
	i.OnWebSocketFrameReceived(&network.EventWebSocketFrameReceived{
		RequestID: "ws1",
		Response:  &network.WebSocketFrame{Opcode: opcodeBinary, PayloadData: base64.StdEncoding.EncodeToString([]byte(`{"a":1}`))},
	})
	frame := nextEvent(t, i).(FrameEvent)
	if frame.Decoded {
		t.Fatalf("binary frame was decoded")
	}
}

func TestWebSocketFrameTruncation(t *testing.T) {
	i := newTestInterceptor(t, &fakeEvaluator{}, Config{CaptureWS: true, MaxFrameBytes: 4})
	i.OnWebSocketFrameReceived(&network.EventWebSocketFrameReceived{
		RequestID: "ws1",
		Response:  &network.WebSocketFrame{Opcode: 1, PayloadData: `{"topic":"lv:1"}`},
	})
	frame := nextEvent(t, i).(FrameEvent)
	if !frame.Truncated || frame.Data != `{"to` || frame.OriginalSize != 16 || frame.SHA256 == "" {
		t.Fatalf("unexpected truncated frame: %+v", frame)
	}
	if frame.Decoded {
		t.Fatalf("truncated frame was decoded")
	}
}

func TestWebSocketCaptureDisabled(t *testing.T) {
	i := newTestInterceptor(t, &fakeEvaluator{}, Config{CaptureWS: false})
	i.OnWebSocketFrameReceived(&network.EventWebSocketFrameReceived{
		RequestID: "ws1",
		Response:  &network.WebSocketFrame{Opcode: 1, PayloadData: "x"},
	})
	select {
	case ev := <-i.Events():
		t.Fatalf("unexpected event %#v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestChannelRefreshAfterJoin(t *testing.T) {
	eval := &fakeEvaluator{results: map[string]string{
		detectScript:   foundResult,
		channelsScript: `[{"topic":"lv:phx-1","joinedOnce":true,"state":"joined"},{"topic":"lv:phx-2","joinedOnce":false,"state":"joining"}]`,
	}}
	i := newTestInterceptor(t, eval, Config{CaptureWS: true, ChannelRefreshDelay: 10 * time.Millisecond})
	if err := i.Start(context.Background(), 1); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	nextEvent(t, i)
	nextEvent(t, i)

	join := &network.EventWebSocketFrameSent{
		RequestID: "ws1",
		Response:  &network.WebSocketFrame{Opcode: 1, PayloadData: `["1","1","lv:phx-2","phx_join",{}]`},
	}
	i.OnWebSocketFrameSent(join)
	i.OnWebSocketFrameSent(join)

	var updated ChannelsUpdatedEvent
	for got := false; !got; {
		switch ev := nextEvent(t, i).(type) {
		case FrameEvent:
		case ChannelsUpdatedEvent:
			updated, got = ev, true
		default:
			t.Fatalf("unexpected event %#v", ev)
		}
	}
	if len(updated.Channels) != 2 || updated.Channels[1].Topic != "lv:phx-2" {
		t.Fatalf("unexpected channels: %+v", updated.Channels)
	}
	if n := eval.callCount(channelsScript); n != 1 {
		t.Fatalf("channel reads = %d, want 1", n)
	}
}

func TestChannelRefreshSkippedWhenInactive(t *testing.T) {
	eval := &fakeEvaluator{results: map[string]string{channelsScript: `[]`}}
	i := newTestInterceptor(t, eval, Config{CaptureWS: true, ChannelRefreshDelay: time.Millisecond})
	i.OnWebSocketFrameSent(&network.EventWebSocketFrameSent{
		RequestID: "ws1",
		Response:  &network.WebSocketFrame{Opcode: 1, PayloadData: `["1","1","lv:phx-2","phx_join",{}]`},
	})
	nextEvent(t, i)
	time.Sleep(30 * time.Millisecond)
	if n := eval.callCount(channelsScript); n != 0 {
		t.Fatalf("channel reads = %d before activation, want 0", n)
	}
}

func TestHTTPRequestLifecycle(t *testing.T) {
	i := newTestInterceptor(t, &fakeEvaluator{}, Config{CaptureHTTP: true})

	i.OnRequestWillBeSent(&network.EventRequestWillBeSent{
		RequestID: "r1",
		Type:      network.ResourceTypeFetch,
		Request: &network.Request{
			URL:         "http://localhost:4000/api/items",
			Method:      "POST",
			Headers:     network.Headers{"content-type": "application/json", "x-count": 3},
			HasPostData: true,
			PostDataEntries: []*network.PostDataEntry{
				{Bytes: base64.StdEncoding.EncodeToString([]byte(`{"name":`))},
				{Bytes: base64.StdEncoding.EncodeToString([]byte(`"x"}`))},
			},
		},
	})
	req := nextEvent(t, i).(HTTPRequestEvent)
	if req.Request.Method != "POST" || req.Request.Body != `{"name":"x"}` {
		t.Fatalf("unexpected request: %+v", req.Request)
	}
	if _, ok := req.Request.Headers["x-count"]; ok {
		t.Fatalf("non-string header kept: %+v", req.Request.Headers)
	}

	i.OnResponseReceived(&network.EventResponseReceived{
		RequestID: "r1",
		Response:  &network.Response{Status: 201, StatusText: "Created"},
	})
	i.OnLoadingFinished(&network.EventLoadingFinished{RequestID: "r1"}, func(context.Context) ([]byte, error) {
		return []byte(`{"ok":true}`), nil
	})
	resp := nextEvent(t, i).(HTTPResponseEvent)
	if resp.Response.Status != 201 || resp.Response.Body != `{"ok":true}` || resp.Response.URL != "http://localhost:4000/api/items" {
		t.Fatalf("unexpected response: %+v", resp.Response)
	}
	if i.PendingRequests() != 0 {
		t.Fatalf("PendingRequests() = %d, want 0", i.PendingRequests())
	}
}

func TestHTTPBinaryBodyEncoded(t *testing.T) {
	i := newTestInterceptor(t, &fakeEvaluator{}, Config{CaptureHTTP: true})
	i.OnRequestWillBeSent(&network.EventRequestWillBeSent{
		RequestID: "r1",
		Type:      network.ResourceTypeXHR,
		Request:   &network.Request{URL: "http://localhost/img", Method: "GET"},
	})
	nextEvent(t, i)
	i.OnLoadingFinished(&network.EventLoadingFinished{RequestID: "r1"}, func(context.Context) ([]byte, error) {
		return []byte{0xff, 0xfe, 0x00}, nil
	})
	resp := nextEvent(t, i).(HTTPResponseEvent)
	if resp.Response.Body != "" || resp.Response.BodyBase64 != base64.StdEncoding.EncodeToString([]byte{0xff, 0xfe, 0x00}) {
		t.Fatalf("unexpected body encoding: %+v", resp.Response)
	}
}

func TestHTTPIgnoresDocumentRequests(t *testing.T) {
	i := newTestInterceptor(t, &fakeEvaluator{}, Config{CaptureHTTP: true})
	i.OnRequestWillBeSent(&network.EventRequestWillBeSent{
		RequestID: "doc",
		Type:      network.ResourceTypeDocument,
		Request:   &network.Request{URL: "http://localhost/", Method: "GET"},
	})
	if i.PendingRequests() != 0 {
		t.Fatalf("document request tracked")
	}
}

func TestHTTPLoadingFailed(t *testing.T) {
	i := newTestInterceptor(t, &fakeEvaluator{}, Config{CaptureHTTP: true})
	i.OnRequestWillBeSent(&network.EventRequestWillBeSent{
		RequestID: "r1",
		Type:      network.ResourceTypeFetch,
		Request:   &network.Request{URL: "http://localhost/down", Method: "GET"},
	})
	nextEvent(t, i)
	i.OnLoadingFailed(&network.EventLoadingFailed{RequestID: "r1", ErrorText: "net::ERR_CONNECTION_REFUSED"})

	failed := nextEvent(t, i).(HTTPErrorEvent)
	if failed.Error.URL != "http://localhost/down" || !strings.Contains(failed.Error.Error, "REFUSED") {
		t.Fatalf("unexpected error event: %+v", failed.Error)
	}
}

func TestCleanupStale(t *testing.T) {
	i := newTestInterceptor(t, &fakeEvaluator{}, Config{CaptureHTTP: true})
	i.mu.Lock()
	i.pending["old"] = &pendingRequest{url: "http://a", started: time.Now().Add(-10 * time.Minute)}
	i.pending["new"] = &pendingRequest{url: "http://b", started: time.Now()}
	i.mu.Unlock()

	i.cleanupStale(time.Now())

	if i.PendingRequests() != 1 {
		t.Fatalf("PendingRequests() = %d, want 1", i.PendingRequests())
	}
}

func TestResetAndClose(t *testing.T) {
	eval := &fakeEvaluator{results: map[string]string{detectScript: foundResult}}
	i := NewInterceptor(eval, Config{Logger: slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))})
	if err := i.Start(context.Background(), 1); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	i.Reset()
	if i.Active() {
		t.Fatalf("Active() = true after Reset")
	}

	i.Close()
	i.Close()
	i.OnWebSocketFrameReceived(&network.EventWebSocketFrameReceived{
		RequestID: "ws1",
		Response:  &network.WebSocketFrame{Opcode: 1, PayloadData: "late"},
	})
	n := 0
	for range i.Events() {
		n++
	}
	if n != 2 {
		t.Fatalf("drained %d events, want 2 from Start", n)
	}
}
