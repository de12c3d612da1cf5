package phoenix

import (
	"encoding/json"
	"slices"
	"strings"

	"github.com/dgnsrekt/phx_devtools/internal/types"
)

// Classifier decides whether captured traffic belongs to Phoenix. It is a
// best-effort heuristic: false positives and negatives are expected.
type Classifier struct {
	m Markers
}

// NewClassifier returns a classifier using the given markers.
func NewClassifier(m Markers) *Classifier {
	return &Classifier{m: m}
}

// Default is a classifier with the built-in markers.
var Default = NewClassifier(DefaultMarkers())

// IsPhoenixMessage is a pure function of the message content and, as a
// fallback for WebSocket traffic, the connection records of the message's tab.
func (c *Classifier) IsPhoenixMessage(msg types.Message, connections []types.Connection) bool {
	if msg.Type == types.TypeHTTP {
		return c.isPhoenixHTTP(msg.Data)
	}
	if c.IsPhoenixPayload(msg.Data) {
		return true
	}
	if msg.ParsedData != "" && msg.ParsedData != msg.Data && c.IsPhoenixPayload(msg.ParsedData) {
		return true
	}
	return fromPhoenixConnection(msg.TabID, connections)
}

// IsPhoenixPayload classifies a raw WebSocket payload.
func (c *Classifier) IsPhoenixPayload(data string) bool {
	var v any
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		return false
	}
	return c.isPhoenixValue(v)
}

func (c *Classifier) isPhoenixValue(v any) bool {
	switch t := v.(type) {
	case []any:
		if len(t) < 4 {
			return false
		}
		topic, _ := t[2].(string)
		event, _ := t[3].(string)
		if topic != "" && containsAny(topic, c.m.TopicMarkers) {
			return true
		}
		if event != "" && (hasAnyPrefix(event, c.m.EventPrefixes) || slices.Contains(c.m.ControlEvents, event)) {
			return true
		}
		return false
	case map[string]any:
		_, hasTopic := t["topic"]
		_, hasEvent := t["event"]
		_, hasPayload := t["payload"]
		_, hasRef := t["ref"]
		if hasTopic && hasEvent && hasPayload && hasRef {
			return true
		}
		if event, ok := t["event"].(string); ok && event != "" {
			if slices.Contains(c.m.NavigationEvents, event) || hasAnyPrefix(event, c.m.EventPrefixes) || strings.Contains(event, "phoenix") {
				return true
			}
		}
		if topic, ok := t["topic"].(string); ok && hasAnyPrefix(topic, c.m.TopicPrefixes) {
			return true
		}
		return false
	default:
		return false
	}
}

// isPhoenixHTTP looks for HTTP markers in the url, headers and body of a
// captured request, response or error record.
func (c *Classifier) isPhoenixHTTP(data string) bool {
	var rec struct {
		URL     string         `json:"url"`
		Headers map[string]any `json:"headers"`
		Body    any            `json:"body"`
	}
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return containsAny(data, c.m.HTTPMarkers)
	}
	if containsAny(rec.URL, c.m.HTTPMarkers) {
		return true
	}
	for k, v := range rec.Headers {
		if containsAny(k, c.m.HTTPMarkers) {
			return true
		}
		if s, ok := v.(string); ok && containsAny(s, c.m.HTTPMarkers) {
			return true
		}
	}
	switch body := rec.Body.(type) {
	case string:
		return containsAny(body, c.m.HTTPMarkers)
	case nil:
		return false
	default:
		raw, err := json.Marshal(body)
		return err == nil && containsAny(string(raw), c.m.HTTPMarkers)
	}
}

func fromPhoenixConnection(tabID int, connections []types.Connection) bool {
	for _, conn := range connections {
		if !conn.IsPhoenix {
			continue
		}
		if tabID == 0 || conn.TabID == tabID {
			return true
		}
	}
	return false
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
