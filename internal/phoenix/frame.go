package phoenix

import (
	"encoding/json"
	"strings"
)

const liveViewTopicPrefix = "lv:"

// Frame is a best-effort view of a Phoenix channel message. Both the v2 array
// serializer ([join_ref, ref, topic, event, payload]) and the v1 object
// serializer are understood.
type Frame struct {
	JoinRef string
	Ref     string
	Topic   string
	Event   string
	Payload any
}

// IsLiveView reports whether the frame belongs to a LiveView channel.
func (f Frame) IsLiveView() bool {
	return strings.HasPrefix(f.Topic, liveViewTopicPrefix)
}

// Summary renders "topic → event" for display.
func (f Frame) Summary() string {
	if f.Topic == "" && f.Event == "" {
		return ""
	}
	return f.Topic + " → " + f.Event
}

// DecodeFrame parses data as JSON and extracts the frame fields.
func DecodeFrame(data string) (Frame, bool) {
	var v any
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		return Frame{}, false
	}
	return FrameFromValue(v)
}

// FrameFromValue extracts frame fields from an already decoded JSON value.
func FrameFromValue(v any) (Frame, bool) {
	switch t := v.(type) {
	case []any:
		if len(t) < 4 {
			return Frame{}, false
		}
		f := Frame{
			JoinRef: stringOf(t[0]),
			Ref:     stringOf(t[1]),
			Topic:   stringOf(t[2]),
			Event:   stringOf(t[3]),
		}
		if len(t) > 4 {
			f.Payload = t[4]
		}
		return f, true
	case map[string]any:
		topic, hasTopic := t["topic"].(string)
		event, hasEvent := t["event"].(string)
		if !hasTopic && !hasEvent {
			return Frame{}, false
		}
		return Frame{
			JoinRef: stringOf(t["join_ref"]),
			Ref:     stringOf(t["ref"]),
			Topic:   topic,
			Event:   event,
			Payload: t["payload"],
		}, true
	default:
		return Frame{}, false
	}
}

func stringOf(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		b, _ := json.Marshal(t)
		return string(b)
	default:
		return ""
	}
}
