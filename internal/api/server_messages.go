package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/phx_devtools/internal/types"
)

type snapshotOutput struct {
	Body types.Snapshot
}

type highlightingOutput struct {
	Body struct {
		Enabled bool `json:"enabled"`
	}
}

func registerMessageHandlers(api huma.API, svc Service) {
	huma.Register(api, huma.Operation{OperationID: "get-messages", Method: http.MethodGet, Path: "/api/messages", Summary: "Current messages and connections", Tags: []string{"Messages"}},
		func(ctx context.Context, input *struct{}) (*snapshotOutput, error) {
			snap := svc.Snapshot()
			if snap.Messages == nil {
				snap.Messages = []types.Message{}
			}
			if snap.Connections == nil {
				snap.Connections = []types.Connection{}
			}
			return &snapshotOutput{Body: snap}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "clear-messages", Method: http.MethodDelete, Path: "/api/messages", Summary: "Clear messages and connections", Tags: []string{"Messages"}},
		func(ctx context.Context, input *struct{}) (*statusOutput, error) {
			svc.Clear()
			return okStatus(), nil
		})

	huma.Register(api, huma.Operation{OperationID: "get-highlighting", Method: http.MethodGet, Path: "/api/highlighting", Summary: "Current DOM highlighting setting", Tags: []string{"Settings"}},
		func(ctx context.Context, input *struct{}) (*highlightingOutput, error) {
			out := &highlightingOutput{}
			out.Body.Enabled = svc.Highlighting()
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "set-highlighting", Method: http.MethodPut, Path: "/api/highlighting", Summary: "Toggle DOM highlighting in every relay", Tags: []string{"Settings"}},
		func(ctx context.Context, input *struct {
			Body struct {
				Enabled bool `json:"enabled" doc:"Highlight elements touched by LiveView traffic"`
			}
		}) (*highlightingOutput, error) {
			svc.SetHighlighting(input.Body.Enabled)
			out := &highlightingOutput{}
			out.Body.Enabled = input.Body.Enabled
			return out, nil
		})

	registerHealth(api, svc)
}
