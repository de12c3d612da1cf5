package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgnsrekt/phx_devtools/internal/aggregator"
	"github.com/dgnsrekt/phx_devtools/internal/port"
	"github.com/dgnsrekt/phx_devtools/internal/types"
)

// Service is the aggregator as seen by the HTTP surface. *aggregator.Session
// implements it.
type Service interface {
	aggregator.Actions
	port.Hub

	Snapshot() types.Snapshot
	Clear()
	SetHighlighting(enabled bool)
	Highlighting() bool
	Subscribe() (int64, <-chan types.Update)
	SubscriberCount() int
}

// Options carry the optional parts of the server.
type Options struct {
	// Metrics is mounted on /metrics when set.
	Metrics http.Handler
	Logger  *slog.Logger
}

func NewServer(svc Service, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger(opts.Logger))
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("phx_devtools Aggregator API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			opts.Logger.Debug("docs response write failed", "error", err)
		}
	})
	router.Get("/docs/streams", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(streamDocsHTML)); err != nil {
			opts.Logger.Debug("docs response write failed", "error", err)
		}
	})

	router.Get("/ws", port.Handler(svc, opts.Logger))
	router.Get("/events", SSEHandler(svc))
	if opts.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	registerCaptureHandlers(api, svc)
	registerMessageHandlers(api, svc)

	return router
}

type healthOutput struct {
	Body struct {
		Status       string `json:"status"`
		Messages     int    `json:"messages"`
		Connections  int    `json:"connections"`
		Subscribers  int    `json:"subscribers"`
		Highlighting bool   `json:"highlighting"`
	}
}

func registerHealth(api huma.API, svc Service) {
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/api/health", Summary: "Aggregator health", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			snap := svc.Snapshot()
			out := &healthOutput{}
			out.Body.Status = "ok"
			out.Body.Messages = len(snap.Messages)
			out.Body.Connections = len(snap.Connections)
			out.Body.Subscribers = svc.SubscriberCount()
			out.Body.Highlighting = svc.Highlighting()
			return out, nil
		})
}
