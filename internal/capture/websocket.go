package capture

import (
	"encoding/json"

	"github.com/chromedp/cdproto/network"

	"github.com/dgnsrekt/phx_devtools/internal/phoenix"
	"github.com/dgnsrekt/phx_devtools/internal/types"
)

// WebSocket opcode for binary frames; their payload arrives base64 encoded.
const opcodeBinary = 2

func (i *Interceptor) OnWebSocketCreated(ev *network.EventWebSocketCreated) {
	if !i.cfg.CaptureWS {
		return
	}
	i.mu.Lock()
	i.sockets[ev.RequestID] = ev.URL
	i.mu.Unlock()
	i.logger.Debug("WebSocket created", "request_id", ev.RequestID, "url", truncateURL(ev.URL))
}

func (i *Interceptor) OnWebSocketFrameReceived(ev *network.EventWebSocketFrameReceived) {
	if !i.cfg.CaptureWS || ev.Response == nil {
		return
	}
	i.onFrame(ev.RequestID, types.Inbound, ev.Response)
}

func (i *Interceptor) OnWebSocketFrameSent(ev *network.EventWebSocketFrameSent) {
	if !i.cfg.CaptureWS || ev.Response == nil {
		return
	}
	i.onFrame(ev.RequestID, types.Outbound, ev.Response)
}

func (i *Interceptor) OnWebSocketClosed(ev *network.EventWebSocketClosed) {
	i.mu.Lock()
	url, ok := i.sockets[ev.RequestID]
	delete(i.sockets, ev.RequestID)
	i.mu.Unlock()
	if ok {
		i.logger.Debug("WebSocket closed", "request_id", ev.RequestID, "url", truncateURL(url))
	}
}

// ActiveSockets returns the number of open sockets seen in the tab.
func (i *Interceptor) ActiveSockets() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.sockets)
}

func (i *Interceptor) onFrame(id network.RequestID, dir types.Direction, frame *network.WebSocketFrame) {
	i.mu.Lock()
	url := i.sockets[id]
	i.mu.Unlock()

	binary := int(frame.Opcode) == opcodeBinary
	var payload string
	var c clip
	if binary {
		var kept []byte
		kept, c = clipBytes([]byte(frame.PayloadData), i.cfg.MaxFrameBytes)
		payload = string(kept)
	} else {
		payload, c = clipString(frame.PayloadData, i.cfg.MaxFrameBytes)
	}
	ev := FrameEvent{
		Direction:    dir,
		URL:          url,
		Data:         payload,
		Truncated:    c.Truncated,
		OriginalSize: c.OriginalSize,
		SHA256:       c.SHA256,
	}

	if !binary && !c.Truncated {
		var parsed any
		if err := json.Unmarshal([]byte(payload), &parsed); err == nil {
			ev.Parsed = parsed
			ev.Decoded = true
		}
	}

	if ev.Decoded {
		if f, ok := phoenix.FrameFromValue(ev.Parsed); ok {
			if dir == types.Inbound && f.IsLiveView() {
				ev.Affected = phoenix.AffectedElements(f)
			}
			if triggersChannelRefresh(dir, f.Event) {
				i.scheduleChannelRefresh()
			}
		}
	}
	i.emit(ev)
}

func triggersChannelRefresh(dir types.Direction, event string) bool {
	switch dir {
	case types.Outbound:
		return event == "phx_join" || event == "phx_leave"
	case types.Inbound:
		return event == "phx_close"
	default:
		return false
	}
}

func truncateURL(url string) string {
	if len(url) > 120 {
		return url[:120] + "..."
	}
	return url
}
