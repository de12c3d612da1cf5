package aggregator

import (
	"context"
	"errors"

	"github.com/dgnsrekt/phx_devtools/internal/types"
)

// Actions is the aggregator surface a relay talks to. *Session implements it
// in-process; api.Client implements it over HTTP.
type Actions interface {
	// Capture submits a message fragment. Duplicates are accepted silently.
	Capture(ctx context.Context, msg types.Message) error
	// ConnectionInfo records the LiveSocket detected in a tab.
	ConnectionInfo(ctx context.Context, tabID int, info types.ConnectionInfo) error
	// ChannelsUpdated replaces the channels of a tab's connection.
	ChannelsUpdated(ctx context.Context, tabID int, channels []types.Channel) error
	// CurrentTabID returns the numeric id of a browser target.
	CurrentTabID(ctx context.Context, targetID string) (int, error)
}

var (
	// ErrInvalidTarget is returned by CurrentTabID for an empty target id.
	ErrInvalidTarget = errors.New("aggregator: target id is required")
	// ErrInvalidTab is returned when a tab-scoped action carries no tab id.
	ErrInvalidTab = errors.New("aggregator: tab id must be positive")
)

// Result is the reply to an action handled through Handle. Only the field
// relevant to the action is set.
type Result struct {
	Snapshot *types.Snapshot
	TabID    int
}

// Handle dispatches any protocol action onto the session.
func (s *Session) Handle(ctx context.Context, a types.Action) (Result, error) {
	switch v := a.(type) {
	case types.CaptureAction:
		return Result{}, s.Capture(ctx, v.Message)
	case types.ConnectionInfoAction:
		return Result{}, s.ConnectionInfo(ctx, v.TabID, v.ConnectionInfo)
	case types.ChannelsUpdatedAction:
		return Result{}, s.ChannelsUpdated(ctx, v.TabID, v.Channels)
	case types.CurrentTabAction:
		id, err := s.CurrentTabID(ctx, v.TargetID)
		return Result{TabID: id}, err
	case types.GetMessagesAction:
		snap := s.Snapshot()
		return Result{Snapshot: &snap}, nil
	case types.ClearMessagesAction:
		s.Clear()
		return Result{}, nil
	case types.ToggleHighlightingAction:
		s.SetHighlighting(v.Enabled)
		return Result{}, nil
	default:
		return Result{}, errors.New("aggregator: unsupported action")
	}
}
