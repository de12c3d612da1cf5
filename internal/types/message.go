package types

// MessageType tells which transport a message was captured from.
type MessageType string

const (
	TypeWebSocket MessageType = "websocket"
	TypeHTTP      MessageType = "http"
)

// Direction is relative to the inspected page.
type Direction string

const (
	Inbound  Direction = "inbound"
	Outbound Direction = "outbound"
)

// Method tags set by the relay.
const (
	MethodPhoenixReceive = "Phoenix.receive"
	MethodPhoenixSend    = "Phoenix.send"
	MethodHTTPError      = "HTTP.Error"
)

// Message is the canonical unit of captured traffic.
//
// Hash and Timestamp are authoritative only once the aggregator accepted the
// message. TabID 0 means the message is not tagged with a tab.
type Message struct {
	Method     string      `json:"method"`
	Data       string      `json:"data"`
	ParsedData string      `json:"parsedData,omitempty"`
	Hash       string      `json:"hash"`
	Type       MessageType `json:"type"`
	Direction  Direction   `json:"direction"`
	Size       int         `json:"size"`
	Timestamp  int64       `json:"timestamp"`
	IsPhoenix  bool        `json:"isPhoenix"`
	TabID      int         `json:"tabId,omitempty"`
}

// Snapshot is the full state returned for getMessages.
type Snapshot struct {
	Messages    []Message    `json:"messages"`
	Connections []Connection `json:"connections"`
}
