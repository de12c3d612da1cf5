package phoenix

import (
	"testing"

	"github.com/dgnsrekt/phx_devtools/internal/types"
)

func TestIsPhoenixMessage(t *testing.T) {
	tests := []struct {
		name string
		msg  types.Message
		want bool
	}{
		{
			name: "object_with_topic_event_payload_ref",
			msg:  types.Message{Type: types.TypeWebSocket, Data: `{"topic":"room:1","event":"phx_join","payload":{},"ref":"1"}`},
			want: true,
		},
		{
			name: "object_with_null_ref",
			msg:  types.Message{Type: types.TypeWebSocket, Data: `{"topic":"room:1","event":"new_msg","payload":{},"ref":null}`},
			want: true,
		},
		{
			name: "array_with_liveview_topic",
			msg:  types.Message{Type: types.TypeWebSocket, Data: `["4","4","lv:phx-F1","event",{"type":"click"}]`},
			want: true,
		},
		{
			name: "array_with_phx_event",
			msg:  types.Message{Type: types.TypeWebSocket, Data: `["3","3","room:lobby","phx_join",{}]`},
			want: true,
		},
		{
			name: "array_with_control_event",
			msg:  types.Message{Type: types.TypeWebSocket, Data: `[null,"9","chat","heartbeat",{}]`},
			want: true,
		},
		{
			name: "array_too_short",
			msg:  types.Message{Type: types.TypeWebSocket, Data: `["lv:x","phx_join"]`},
			want: false,
		},
		{
			name: "navigation_event",
			msg:  types.Message{Type: types.TypeWebSocket, Data: `{"event":"live_patch"}`},
			want: true,
		},
		{
			name: "topic_prefix",
			msg:  types.Message{Type: types.TypeWebSocket, Data: `{"topic":"lv:phx-abc"}`},
			want: true,
		},
		{
			name: "plain_text",
			msg:  types.Message{Type: types.TypeWebSocket, Data: `hello`},
			want: false,
		},
		{
			name: "unrelated_json",
			msg:  types.Message{Type: types.TypeWebSocket, Data: `{"m":"quote","p":[1,2]}`},
			want: false,
		},
		{
			name: "http_live_url",
			msg:  types.Message{Type: types.TypeHTTP, Data: `{"url":"https://app.test/live/longpoll","method":"POST"}`},
			want: true,
		},
		{
			name: "http_csrf_header",
			msg:  types.Message{Type: types.TypeHTTP, Data: `{"url":"https://app.test/api","method":"POST","headers":{"x-csrf-token":"_csrf_token=1"}}`},
			want: true,
		},
		{
			name: "http_unrelated",
			msg:  types.Message{Type: types.TypeHTTP, Data: `{"url":"https://cdn.test/app.js","method":"GET"}`},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Default.IsPhoenixMessage(tt.msg, nil); got != tt.want {
				t.Fatalf("IsPhoenixMessage() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsPhoenixMessageConnectionFallback(t *testing.T) {
	msg := types.Message{Type: types.TypeWebSocket, Data: "opaque", TabID: 2}
	conns := []types.Connection{{TabID: 1, IsPhoenix: true}}

	if Default.IsPhoenixMessage(msg, conns) {
		t.Fatalf("connection from another tab must not classify the message")
	}
	conns = append(conns, types.Connection{TabID: 2, IsPhoenix: true})
	if !Default.IsPhoenixMessage(msg, conns) {
		t.Fatalf("connection for the same tab should classify the message")
	}
	http := types.Message{Type: types.TypeHTTP, Data: `{"url":"https://x.test/a"}`, TabID: 2}
	if Default.IsPhoenixMessage(http, conns) {
		t.Fatalf("connection fallback must not apply to HTTP messages")
	}
}

func TestIsPhoenixMessageDeterministic(t *testing.T) {
	msg := types.Message{Type: types.TypeWebSocket, Data: `["1","2","lv:phx-1","phx_reply",{"status":"ok"}]`}
	first := Default.IsPhoenixMessage(msg, nil)
	for i := 0; i < 50; i++ {
		if got := Default.IsPhoenixMessage(msg, nil); got != first {
			t.Fatalf("iteration %d: got %v, want %v", i, got, first)
		}
	}
}
