package phoenix

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Markers are the recognized fragments the classifier looks for. They are
// heuristics, not a protocol definition.
type Markers struct {
	// TopicMarkers match anywhere inside an array frame's topic.
	TopicMarkers []string `yaml:"topic_markers"`
	// TopicPrefixes match the start of an object frame's topic.
	TopicPrefixes []string `yaml:"topic_prefixes"`
	// EventPrefixes match the start of an event name.
	EventPrefixes []string `yaml:"event_prefixes"`
	// ControlEvents are exact event names used by the LiveView client.
	ControlEvents []string `yaml:"control_events"`
	// NavigationEvents are exact event names for live navigation.
	NavigationEvents []string `yaml:"navigation_events"`
	// HTTPMarkers match URLs, headers or bodies of HTTP captures.
	HTTPMarkers []string `yaml:"http_markers"`
}

// DefaultMarkers returns the built-in marker set.
func DefaultMarkers() Markers {
	return Markers{
		TopicMarkers:     []string{"lv:", "phoenix"},
		TopicPrefixes:    []string{"lv:", "phoenix"},
		EventPrefixes:    []string{"phx_"},
		ControlEvents:    []string{"heartbeat", "diff", "event", "live_patch", "live_redirect", "redirect", "presence_state", "presence_diff"},
		NavigationEvents: []string{"live_patch", "live_redirect"},
		HTTPMarkers:      []string{"/live", "/phoenix", "/socket", "/user_socket", "_csrf_token", "phx-", "live_socket_id"},
	}
}

// LoadMarkers reads a YAML marker file. Lists missing from the file keep
// their defaults.
func LoadMarkers(path string) (Markers, error) {
	m := DefaultMarkers()
	data, err := os.ReadFile(path)
	if err != nil {
		return Markers{}, fmt.Errorf("phoenix markers: %w", err)
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Markers{}, fmt.Errorf("phoenix markers: %w", err)
	}
	lists := map[string][]string{
		"topic_markers":     m.TopicMarkers,
		"topic_prefixes":    m.TopicPrefixes,
		"event_prefixes":    m.EventPrefixes,
		"control_events":    m.ControlEvents,
		"navigation_events": m.NavigationEvents,
		"http_markers":      m.HTTPMarkers,
	}
	for name, list := range lists {
		for i, v := range list {
			if v == "" {
				return Markers{}, fmt.Errorf("phoenix markers: %s[%d] is empty", name, i)
			}
		}
	}
	return m, nil
}
