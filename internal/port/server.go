// Package port carries aggregator updates to panels over WebSocket and
// panel requests back.
package port

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gobwas/ws"
	"github.com/google/uuid"

	"github.com/dgnsrekt/phx_devtools/internal/types"
)

// Hub is the aggregator side of a port.
type Hub interface {
	// Attach subscribes a port. The returned channel closes on Unsubscribe.
	Attach() (int64, <-chan types.Update)
	Unsubscribe(id int64)
	// Request handles an action sent by the port id.
	Request(ctx context.Context, id int64, a types.Action) error
}

// Handler upgrades the request to a WebSocket and serves one port: pushed
// updates go out as JSON text frames, incoming text frames are decoded as
// requests.
func Handler(hub Hub, logger *slog.Logger) http.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			logger.Warn("Port upgrade failed", "error", err, "remote", r.RemoteAddr)
			return
		}
		connID := uuid.NewString()
		log := logger.With("port_id", connID)
		fc := newFrameConn(conn, conn, ws.StateServerSide)

		id, updates := hub.Attach()
		log.Info("Port connected", "remote", r.RemoteAddr)

		ctx, cancel := context.WithCancel(context.Background())
		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			writeUpdates(ctx, fc, updates, log)
		}()

		readRequests(ctx, fc, hub, id, log)

		cancel()
		hub.Unsubscribe(id)
		<-writerDone
		_ = fc.close()
		log.Info("Port disconnected")
	}
}

func writeUpdates(ctx context.Context, fc *frameConn, updates <-chan types.Update, log *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			data, err := json.Marshal(u)
			if err != nil {
				log.Error("Failed to encode update", "error", err, "kind", u.Kind)
				continue
			}
			if err := fc.writeText(data); err != nil {
				log.Debug("Port write failed", "error", err)
				// Unblock the reader.
				_ = fc.close()
				return
			}
		}
	}
}

func readRequests(ctx context.Context, fc *frameConn, hub Hub, id int64, log *slog.Logger) {
	for {
		data, err := fc.readText()
		if err != nil {
			log.Debug("Port read loop exit", "error", err)
			return
		}
		var req types.Request
		if err := json.Unmarshal(data, &req); err != nil {
			log.Warn("Malformed port request", "error", err)
			continue
		}
		action, err := req.Decode()
		if err != nil {
			log.Warn("Rejected port request", "error", err)
			continue
		}
		if err := hub.Request(ctx, id, action); err != nil {
			log.Warn("Port request failed", "action", req.Action, "error", err)
		}
	}
}
