package capture

import (
	"context"
	"encoding/base64"
	"time"
	"unicode/utf8"

	"github.com/chromedp/cdproto/network"

	"github.com/dgnsrekt/phx_devtools/internal/types"
)

// BodyFetcher reads a finished response body (Network.getResponseBody).
type BodyFetcher func(ctx context.Context) ([]byte, error)

type pendingRequest struct {
	url      string
	started  time.Time
	response *types.ResponseInfo
}

// isCapturedResourceType limits HTTP capture to fetch and XHR calls.
func isCapturedResourceType(t network.ResourceType) bool {
	return t == network.ResourceTypeXHR || t == network.ResourceTypeFetch
}

func (i *Interceptor) OnRequestWillBeSent(ev *network.EventRequestWillBeSent) {
	if !i.cfg.CaptureHTTP || ev.Request == nil || !isCapturedResourceType(ev.Type) {
		return
	}

	var postData []byte
	if ev.Request.HasPostData {
		for _, entry := range ev.Request.PostDataEntries {
			if entry == nil || entry.Bytes == "" {
				continue
			}
			decoded, err := base64.StdEncoding.DecodeString(entry.Bytes)
			if err != nil {
				postData = append(postData, entry.Bytes...)
			} else {
				postData = append(postData, decoded...)
			}
		}
	}
	body, _ := clipText(postData, i.cfg.MaxBodyBytes)

	i.mu.Lock()
	i.pending[ev.RequestID] = &pendingRequest{url: ev.Request.URL, started: time.Now()}
	i.mu.Unlock()

	i.emit(HTTPRequestEvent{Request: types.RequestInfo{
		URL:     ev.Request.URL,
		Method:  ev.Request.Method,
		Headers: headerMapToStringMap(ev.Request.Headers),
		Body:    string(body),
	}})
}

func (i *Interceptor) OnResponseReceived(ev *network.EventResponseReceived) {
	if ev.Response == nil {
		return
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	p, ok := i.pending[ev.RequestID]
	if !ok {
		return
	}
	p.response = &types.ResponseInfo{
		URL:        p.url,
		Status:     int(ev.Response.Status),
		StatusText: ev.Response.StatusText,
		Headers:    headerMapToStringMap(ev.Response.Headers),
	}
}

// OnLoadingFinished completes a pending request. The body is fetched on a
// separate goroutine so the CDP event loop is not blocked; getBody may be
// nil when the tab is gone.
func (i *Interceptor) OnLoadingFinished(ev *network.EventLoadingFinished, getBody BodyFetcher) {
	i.mu.Lock()
	p, ok := i.pending[ev.RequestID]
	if ok {
		delete(i.pending, ev.RequestID)
	}
	if !ok || i.closed {
		i.mu.Unlock()
		return
	}
	i.wg.Add(1)
	i.mu.Unlock()

	resp := p.response
	if resp == nil {
		resp = &types.ResponseInfo{URL: p.url}
	}

	go func() {
		defer i.wg.Done()
		if getBody != nil {
			ctx, cancel := context.WithTimeout(i.ctx, evalTimeout)
			body, err := getBody(ctx)
			cancel()
			if err != nil {
				i.logger.Debug("Failed to get response body", "request_id", ev.RequestID, "error", err)
			} else if len(body) > 0 {
				var c clip
				if utf8.Valid(body) {
					var kept []byte
					kept, c = clipText(body, i.cfg.MaxBodyBytes)
					resp.Body = string(kept)
				} else {
					var kept []byte
					kept, c = clipBytes(body, i.cfg.MaxBodyBytes)
					resp.BodyBase64 = base64.StdEncoding.EncodeToString(kept)
				}
				if c.Truncated {
					resp.Truncated = true
					resp.OriginalSize = c.OriginalSize
					resp.SHA256 = c.SHA256
				}
			}
		}
		resp.Time = time.Since(p.started).Milliseconds()
		i.emit(HTTPResponseEvent{Response: *resp})
	}()
}

func (i *Interceptor) OnLoadingFailed(ev *network.EventLoadingFailed) {
	i.mu.Lock()
	p, ok := i.pending[ev.RequestID]
	if ok {
		delete(i.pending, ev.RequestID)
	}
	i.mu.Unlock()
	if !ok {
		return
	}
	msg := ev.ErrorText
	if ev.Canceled && msg == "" {
		msg = "canceled"
	}
	i.emit(HTTPErrorEvent{Error: types.ErrorInfo{
		URL:   p.url,
		Error: msg,
		Time:  time.Since(p.started).Milliseconds(),
	}})
}

// PendingRequests returns the number of requests awaiting completion.
func (i *Interceptor) PendingRequests() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.pending)
}

func (i *Interceptor) cleanupStale(now time.Time) {
	threshold := now.Add(-staleRequestAge)

	i.mu.Lock()
	defer i.mu.Unlock()
	for id, p := range i.pending {
		if p.started.Before(threshold) {
			delete(i.pending, id)
		}
	}
}

func headerMapToStringMap(headers network.Headers) map[string]string {
	result := make(map[string]string, len(headers))
	for k, v := range headers {
		if s, ok := v.(string); ok {
			result[k] = s
		}
	}
	return result
}
