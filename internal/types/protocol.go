package types

import (
	"errors"
	"fmt"
)

// Action is a request handled by the aggregator. The set of implementations
// is closed; receivers switch over the concrete types.
type Action interface {
	isAction()
}

// CaptureAction carries a message fragment from a relay. Hash and timestamp
// are assigned by the aggregator.
type CaptureAction struct {
	Message Message `json:"message"`
}

// ConnectionInfoAction upserts the connection record of a tab.
type ConnectionInfoAction struct {
	ConnectionInfo ConnectionInfo `json:"connectionInfo"`
	TabID          int            `json:"tabId"`
}

// ChannelsUpdatedAction replaces the channel list of a tab's connection.
type ChannelsUpdatedAction struct {
	Channels []Channel `json:"channels"`
	TabID    int       `json:"tabId"`
}

// CurrentTabAction asks for the numeric tab id of the sending target.
type CurrentTabAction struct {
	TargetID string `json:"targetId"`
}

// GetMessagesAction asks for the current snapshot.
type GetMessagesAction struct{}

// ClearMessagesAction empties every stored collection.
type ClearMessagesAction struct{}

// ToggleHighlightingAction switches DOM highlighting in every relay.
type ToggleHighlightingAction struct {
	Enabled bool `json:"enabled"`
}

func (CaptureAction) isAction()            {}
func (ConnectionInfoAction) isAction()     {}
func (ChannelsUpdatedAction) isAction()    {}
func (CurrentTabAction) isAction()         {}
func (GetMessagesAction) isAction()        {}
func (ClearMessagesAction) isAction()      {}
func (ToggleHighlightingAction) isAction() {}

// Panel request names as they appear on the wire.
const (
	RequestGetMessages        = "getMessages"
	RequestClearMessages      = "clearMessages"
	RequestToggleHighlighting = "toggle-highlighting"
)

var ErrUnknownRequest = errors.New("unknown request action")

// Request is the envelope a panel sends over its port.
type Request struct {
	Action  string `json:"action"`
	Enabled *bool  `json:"enabled,omitempty"`
}

// Decode maps the envelope onto its Action.
func (r Request) Decode() (Action, error) {
	switch r.Action {
	case RequestGetMessages:
		return GetMessagesAction{}, nil
	case RequestClearMessages:
		return ClearMessagesAction{}, nil
	case RequestToggleHighlighting:
		if r.Enabled == nil {
			return nil, fmt.Errorf("%s: missing enabled flag", r.Action)
		}
		return ToggleHighlightingAction{Enabled: *r.Enabled}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRequest, r.Action)
	}
}

// EncodeRequest builds the envelope for the panel-side actions.
func EncodeRequest(a Action) (Request, error) {
	switch v := a.(type) {
	case GetMessagesAction:
		return Request{Action: RequestGetMessages}, nil
	case ClearMessagesAction:
		return Request{Action: RequestClearMessages}, nil
	case ToggleHighlightingAction:
		enabled := v.Enabled
		return Request{Action: RequestToggleHighlighting, Enabled: &enabled}, nil
	default:
		return Request{}, fmt.Errorf("%w: %T is not a panel action", ErrUnknownRequest, a)
	}
}

// UpdateKind tags an aggregator push.
type UpdateKind string

const (
	// UpdateSnapshot replaces both collections.
	UpdateSnapshot UpdateKind = "snapshot"
	// UpdateMessages appends newly accepted messages.
	UpdateMessages UpdateKind = "messages"
	// UpdateConnections replaces the connection list.
	UpdateConnections UpdateKind = "connections"
	// UpdateSettings carries relay settings.
	UpdateSettings UpdateKind = "settings"
)

// Update is pushed to every connected port. Fields a kind does not use are
// absent and mean "unchanged".
type Update struct {
	Kind         UpdateKind   `json:"kind"`
	Messages     []Message    `json:"messages,omitempty"`
	Connections  []Connection `json:"connections,omitempty"`
	Highlighting *bool        `json:"highlighting,omitempty"`
}
