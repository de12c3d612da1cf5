package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/dgnsrekt/phx_devtools/internal/types"
)

// Subscriber is the broadcast source of the SSE mirror.
type Subscriber interface {
	Subscribe() (int64, <-chan types.Update)
	Unsubscribe(id int64)
}

// SSEHandler streams aggregator updates as server-sent events. Clients may
// filter by kind via ?kinds=messages,connections.
func SSEHandler(sub Subscriber) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		var kinds map[types.UpdateKind]bool
		if q := r.URL.Query().Get("kinds"); q != "" {
			kinds = make(map[types.UpdateKind]bool)
			for _, k := range strings.Split(q, ",") {
				if k = strings.TrimSpace(k); k != "" {
					kinds[types.UpdateKind(k)] = true
				}
			}
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		flusher.Flush()

		id, ch := sub.Subscribe()
		defer sub.Unsubscribe(id)

		for {
			select {
			case <-r.Context().Done():
				return
			case u, ok := <-ch:
				if !ok {
					return
				}
				if kinds != nil && !kinds[u.Kind] {
					continue
				}
				data, err := json.Marshal(u)
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", u.Kind, data)
				flusher.Flush()
			}
		}
	}
}
