package relay

import (
	"testing"

	"github.com/dgnsrekt/phx_devtools/internal/capture"
	"github.com/dgnsrekt/phx_devtools/internal/types"
)

func TestFrameMessage(t *testing.T) {
	tests := []struct {
		name   string
		ev     capture.FrameEvent
		method string
		size   int
		parsed string
	}{
		{
			name:   "outbound decoded",
			ev:     capture.FrameEvent{Direction: types.Outbound, Data: `[ "1", "1", "lv:a", "phx_join", {} ]`, Decoded: true},
			method: types.MethodPhoenixSend,
			size:   36,
			parsed: `["1","1","lv:a","phx_join",{}]`,
		},
		{
			name:   "inbound opaque",
			ev:     capture.FrameEvent{Direction: types.Inbound, Data: "héllo"},
			method: types.MethodPhoenixReceive,
			size:   6,
		},
		{
			name:   "clipped frame keeps wire size",
			ev:     capture.FrameEvent{Direction: types.Inbound, Data: `{"to`, Truncated: true, OriginalSize: 2048},
			method: types.MethodPhoenixReceive,
			size:   2048,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := frameMessage(tt.ev, 3, 1700)
			if m.Method != tt.method || m.Size != tt.size || m.ParsedData != tt.parsed {
				t.Fatalf("frameMessage() = %+v", m)
			}
			if m.Data != tt.ev.Data || m.TabID != 3 || m.Timestamp != 1700 || m.Type != types.TypeWebSocket {
				t.Fatalf("frameMessage() = %+v", m)
			}
		})
	}
}
