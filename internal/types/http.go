package types

// RequestInfo is the outbound half of a captured fetch/XHR call.
type RequestInfo struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

// ResponseInfo is the inbound half of a captured fetch/XHR call.
type ResponseInfo struct {
	URL          string            `json:"url"`
	Status       int               `json:"status"`
	StatusText   string            `json:"statusText"`
	Headers      map[string]string `json:"headers,omitempty"`
	Body         string            `json:"body,omitempty"`
	BodyBase64   string            `json:"bodyBase64,omitempty"`
	Truncated    bool              `json:"truncated,omitempty"`
	OriginalSize int               `json:"originalSize,omitempty"`
	SHA256       string            `json:"sha256,omitempty"`
	Time         int64             `json:"time"`
}

// ErrorInfo replaces a ResponseInfo when the request failed.
type ErrorInfo struct {
	URL   string `json:"url"`
	Error string `json:"error"`
	Time  int64  `json:"time"`
}
