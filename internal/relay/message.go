package relay

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/dgnsrekt/phx_devtools/internal/capture"
	"github.com/dgnsrekt/phx_devtools/internal/types"
)

// frameMessage builds the message fragment of a WebSocket frame. Hash and
// the authoritative timestamp are assigned by the aggregator.
func frameMessage(ev capture.FrameEvent, tabID int, now int64) types.Message {
	method := types.MethodPhoenixReceive
	if ev.Direction == types.Outbound {
		method = types.MethodPhoenixSend
	}
	// A clipped frame still reports the size of what went over the wire.
	size := len(ev.Data)
	if ev.Truncated && ev.OriginalSize > size {
		size = ev.OriginalSize
	}
	msg := types.Message{
		Method:    method,
		Data:      ev.Data,
		Type:      types.TypeWebSocket,
		Direction: ev.Direction,
		Size:      size,
		Timestamp: now,
		TabID:     tabID,
	}
	if ev.Decoded {
		msg.ParsedData = compactJSON(ev.Data)
	}
	return msg
}

func httpRequestMessage(req types.RequestInfo, tabID int, now int64) (types.Message, error) {
	method := req.Method
	if method == "" {
		method = "REQUEST"
	}
	return httpMessage("HTTP."+method, types.Outbound, req, tabID, now)
}

func httpResponseMessage(resp types.ResponseInfo, tabID int, now int64) (types.Message, error) {
	status := "UNKNOWN"
	if resp.Status != 0 {
		status = strconv.Itoa(resp.Status)
	}
	return httpMessage("HTTP.Response."+status, types.Inbound, resp, tabID, now)
}

func httpErrorMessage(info types.ErrorInfo, tabID int, now int64) (types.Message, error) {
	return httpMessage(types.MethodHTTPError, types.Inbound, info, tabID, now)
}

func httpMessage(method string, dir types.Direction, info any, tabID int, now int64) (types.Message, error) {
	data, err := json.Marshal(info)
	if err != nil {
		return types.Message{}, err
	}
	return types.Message{
		Method:     method,
		Data:       string(data),
		ParsedData: string(data),
		Type:       types.TypeHTTP,
		Direction:  dir,
		Size:       len(data),
		Timestamp:  now,
		TabID:      tabID,
	}, nil
}

func compactJSON(data string) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(data)); err != nil {
		return ""
	}
	return buf.String()
}
