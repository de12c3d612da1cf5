package types

// Channel is one LiveView channel as seen by the page's LiveSocket.
type Channel struct {
	Topic      string `json:"topic"`
	JoinedOnce bool   `json:"joinedOnce"`
	State      string `json:"state"`
}

// ConnectionInfo is the snapshot the interceptor reads from window.liveSocket.
type ConnectionInfo struct {
	PhxVersion string         `json:"phxVersion"`
	Channels   []Channel      `json:"channels"`
	Params     map[string]any `json:"params,omitempty"`
	URL        string         `json:"url"`
}

// Connection is the aggregator's record of the LiveSocket detected in a tab.
// A tab has at most one record; later detections replace it.
type Connection struct {
	TabID      int            `json:"tabId"`
	Timestamp  int64          `json:"timestamp"`
	IsPhoenix  bool           `json:"isPhoenix"`
	Hash       string         `json:"hash"`
	Channels   []Channel      `json:"channels,omitempty"`
	PhxVersion string         `json:"phxVersion,omitempty"`
	Params     map[string]any `json:"params,omitempty"`
	URL        string         `json:"url,omitempty"`
}

// CloneConnections returns a copy whose channel slices are not shared with in.
func CloneConnections(in []Connection) []Connection {
	out := make([]Connection, len(in))
	for i, c := range in {
		out[i] = c
		if c.Channels != nil {
			out[i].Channels = append([]Channel(nil), c.Channels...)
		}
	}
	return out
}
