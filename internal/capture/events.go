package capture

import (
	"github.com/dgnsrekt/phx_devtools/internal/phoenix"
	"github.com/dgnsrekt/phx_devtools/internal/types"
)

// Event is emitted by an Interceptor. The set of implementations is closed;
// consumers switch over the concrete types.
type Event interface {
	isEvent()
}

// ConnectionInfoEvent reports the LiveSocket found in the page.
type ConnectionInfoEvent struct {
	Info types.ConnectionInfo
}

// ChannelsUpdatedEvent reports the channel list after a join or leave.
type ChannelsUpdatedEvent struct {
	Channels []types.Channel
}

// FrameEvent is one WebSocket frame. Data is the raw payload text; Parsed
// holds the decoded JSON when Decoded is true.
type FrameEvent struct {
	Direction    types.Direction
	URL          string
	Data         string
	Parsed       any
	Decoded      bool
	Affected     []phoenix.ElementHint
	Truncated    bool
	OriginalSize int
	SHA256       string
}

// HTTPRequestEvent is an outgoing fetch or XHR request.
type HTTPRequestEvent struct {
	Request types.RequestInfo
}

// HTTPResponseEvent completes a request.
type HTTPResponseEvent struct {
	Response types.ResponseInfo
}

// HTTPErrorEvent replaces the response of a failed request.
type HTTPErrorEvent struct {
	Error types.ErrorInfo
}

// ReadyEvent follows ConnectionInfoEvent once the interceptor is active.
type ReadyEvent struct {
	TabID int
}

// NotFoundEvent means no LiveSocket was present when Start ran.
type NotFoundEvent struct {
	TabID int
}

func (ConnectionInfoEvent) isEvent()  {}
func (ChannelsUpdatedEvent) isEvent() {}
func (FrameEvent) isEvent()           {}
func (HTTPRequestEvent) isEvent()     {}
func (HTTPResponseEvent) isEvent()    {}
func (HTTPErrorEvent) isEvent()       {}
func (ReadyEvent) isEvent()           {}
func (NotFoundEvent) isEvent()        {}
