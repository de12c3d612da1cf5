package phoenix

import (
	"fmt"
	"sort"
	"strings"
)

// ElementHint names DOM elements likely touched by a LiveView update.
type ElementHint struct {
	Selector string `json:"selector"`
	Type     string `json:"type,omitempty"`
}

// AffectedElements collects selector hints from a LiveView frame payload:
// component ids in diffs, reply refs and explicit selector lists. The result
// is de-duplicated and ordered.
func AffectedElements(f Frame) []ElementHint {
	payload, ok := f.Payload.(map[string]any)
	if !ok {
		return nil
	}
	c := &hintCollector{event: f.Event, seen: make(map[string]bool)}
	c.payload(payload)

	// Replies nest the rendered diff under response.diff.
	if resp, ok := payload["response"].(map[string]any); ok {
		if diff, ok := resp["diff"].(map[string]any); ok {
			c.payload(diff)
		}
	}
	if diff, ok := payload["diff"].(map[string]any); ok {
		c.payload(diff)
	}
	return c.hints
}

type hintCollector struct {
	event string
	seen  map[string]bool
	hints []ElementHint
}

func (c *hintCollector) add(selector string) {
	if c.seen[selector] {
		return
	}
	c.seen[selector] = true
	c.hints = append(c.hints, ElementHint{Selector: selector, Type: c.event})
}

func (c *hintCollector) payload(p map[string]any) {
	switch d := p["d"].(type) {
	case []any:
		for _, item := range d {
			switch it := item.(type) {
			case []any:
				for _, inner := range it {
					if m, ok := inner.(map[string]any); ok {
						c.diff(m)
					}
				}
			case map[string]any:
				c.diff(it)
			}
		}
	case map[string]any:
		c.diff(d)
	}

	if r, ok := p["r"].(map[string]any); ok {
		for _, key := range sortedKeys(r) {
			if isNumeric(key) {
				c.add(fmt.Sprintf(`[data-phx-ref="%s"]`, key))
			}
		}
	}

	if comps, ok := p["c"].(map[string]any); ok {
		for _, key := range sortedKeys(comps) {
			if isNumeric(key) {
				c.add(fmt.Sprintf(`[data-phx-component="%s"]`, key))
			}
			if m, ok := comps[key].(map[string]any); ok {
				c.diff(m)
			}
		}
	}

	if s, ok := p["s"].([]any); ok {
		for _, v := range s {
			if sel, ok := v.(string); ok && strings.TrimSpace(sel) != "" {
				c.add(sel)
			}
		}
	}
}

func (c *hintCollector) diff(d map[string]any) {
	for _, key := range sortedKeys(d) {
		switch {
		case strings.HasPrefix(key, "d-"):
			c.add(fmt.Sprintf(`[phx-component="%s"]`, strings.TrimPrefix(key, "d-")))
		case isNumeric(key):
			c.add(fmt.Sprintf(`[data-phx-component="%s"]`, key))
		}
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
