package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/phx_devtools/internal/types"
)

type statusOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

func okStatus() *statusOutput {
	out := &statusOutput{}
	out.Body.Status = "ok"
	return out
}

type captureInput struct {
	Body types.Message
}

type connectionInfoInput struct {
	Body types.ConnectionInfoAction
}

type channelsUpdatedInput struct {
	Body types.ChannelsUpdatedAction
}

type currentTabInput struct {
	Body types.CurrentTabAction
}

type currentTabOutput struct {
	Body struct {
		TabID int `json:"tabId"`
	}
}

func registerCaptureHandlers(api huma.API, svc Service) {
	huma.Register(api, huma.Operation{OperationID: "capture-message", Method: http.MethodPost, Path: "/api/capture", Summary: "Submit a captured message", Description: "Hash and timestamp are assigned by the aggregator. Duplicates are accepted and dropped.", Tags: []string{"Relay"}},
		func(ctx context.Context, input *captureInput) (*statusOutput, error) {
			if err := svc.Capture(ctx, input.Body); err != nil {
				return nil, mapErr(err)
			}
			return okStatus(), nil
		})

	huma.Register(api, huma.Operation{OperationID: "connection-info", Method: http.MethodPost, Path: "/api/connection-info", Summary: "Record the LiveSocket of a tab", Tags: []string{"Relay"}},
		func(ctx context.Context, input *connectionInfoInput) (*statusOutput, error) {
			if err := svc.ConnectionInfo(ctx, input.Body.TabID, input.Body.ConnectionInfo); err != nil {
				return nil, mapErr(err)
			}
			return okStatus(), nil
		})

	huma.Register(api, huma.Operation{OperationID: "channels-updated", Method: http.MethodPost, Path: "/api/channels-updated", Summary: "Replace the channels of a tab's connection", Tags: []string{"Relay"}},
		func(ctx context.Context, input *channelsUpdatedInput) (*statusOutput, error) {
			if err := svc.ChannelsUpdated(ctx, input.Body.TabID, input.Body.Channels); err != nil {
				return nil, mapErr(err)
			}
			return okStatus(), nil
		})

	huma.Register(api, huma.Operation{OperationID: "current-tab-id", Method: http.MethodPost, Path: "/api/tabs/current", Summary: "Resolve the numeric id of a browser target", Tags: []string{"Relay"}},
		func(ctx context.Context, input *currentTabInput) (*currentTabOutput, error) {
			id, err := svc.CurrentTabID(ctx, input.Body.TargetID)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &currentTabOutput{}
			out.Body.TabID = id
			return out, nil
		})
}
