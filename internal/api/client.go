package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/dgnsrekt/phx_devtools/internal/aggregator"
	"github.com/dgnsrekt/phx_devtools/internal/types"
)

// ClientConfig configures the HTTP client a relay uses to reach a remote
// aggregator.
type ClientConfig struct {
	BaseURL         string
	Timeout         time.Duration
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	HTTPClient      *http.Client
	Logger          *slog.Logger
}

// Client implements aggregator.Actions over the aggregator's REST API.
// Transient failures are retried with exponential backoff; delivery is at
// least once and the aggregator drops duplicates by content hash.
type Client struct {
	base   string
	http   *http.Client
	cfg    ClientConfig
	logger *slog.Logger
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 100 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 2 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		base:   strings.TrimRight(cfg.BaseURL, "/"),
		http:   cfg.HTTPClient,
		cfg:    cfg,
		logger: cfg.Logger,
	}
}

func (c *Client) Capture(ctx context.Context, msg types.Message) error {
	return c.post(ctx, "/api/capture", msg, nil)
}

func (c *Client) ConnectionInfo(ctx context.Context, tabID int, info types.ConnectionInfo) error {
	if info.Channels == nil {
		info.Channels = []types.Channel{}
	}
	return c.post(ctx, "/api/connection-info", types.ConnectionInfoAction{ConnectionInfo: info, TabID: tabID}, nil)
}

func (c *Client) ChannelsUpdated(ctx context.Context, tabID int, channels []types.Channel) error {
	if channels == nil {
		channels = []types.Channel{}
	}
	return c.post(ctx, "/api/channels-updated", types.ChannelsUpdatedAction{Channels: channels, TabID: tabID}, nil)
}

func (c *Client) CurrentTabID(ctx context.Context, targetID string) (int, error) {
	var out struct {
		TabID int `json:"tabId"`
	}
	if err := c.post(ctx, "/api/tabs/current", types.CurrentTabAction{TargetID: targetID}, &out); err != nil {
		// The only rejected input is the target id.
		var coded *CodedError
		if errors.As(err, &coded) && coded.Code == CodeValidation && coded.Cause == nil {
			coded.Cause = aggregator.ErrInvalidTarget
		}
		return 0, err
	}
	return out.TabID, nil
}

// SetHighlighting toggles highlighting on the aggregator.
func (c *Client) SetHighlighting(ctx context.Context, enabled bool) error {
	body := struct {
		Enabled bool `json:"enabled"`
	}{enabled}
	return c.do(ctx, http.MethodPut, "/api/highlighting", body, nil)
}

// Messages fetches the current snapshot.
func (c *Client) Messages(ctx context.Context) (types.Snapshot, error) {
	var snap types.Snapshot
	err := c.do(ctx, http.MethodGet, "/api/messages", nil, &snap)
	return snap, err
}

// Clear empties the aggregator's collections.
func (c *Client) Clear(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/messages", nil, nil)
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	return c.do(ctx, http.MethodPost, path, in, out)
}

// problem is the subset of huma's error model the client reads.
type problem struct {
	Status int    `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		payload, err = json.Marshal(in)
		if err != nil {
			return newError(CodeValidation, "encode request", err)
		}
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.cfg.InitialInterval
	exp.MaxInterval = c.cfg.MaxInterval
	exp.MaxElapsedTime = 0
	var b backoff.BackOff = backoff.WithMaxRetries(exp, uint64(c.cfg.MaxAttempts-1))
	b = backoff.WithContext(b, ctx)

	attempt := 0
	operation := func() error {
		attempt++
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
		if err != nil {
			return backoff.Permanent(newError(CodeValidation, "build request", err))
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 300 {
			var p problem
			_ = json.Unmarshal(data, &p)
			msg := p.Detail
			if msg == "" {
				msg = fmt.Sprintf("%s %s: %s", method, path, resp.Status)
			}
			switch {
			case resp.StatusCode == http.StatusNotFound:
				return backoff.Permanent(newError(CodeNotFound, msg, nil))
			case resp.StatusCode >= 400 && resp.StatusCode < 500:
				return backoff.Permanent(newError(CodeValidation, msg, nil))
			default:
				return fmt.Errorf("api: %s", msg)
			}
		}
		if out != nil && len(data) > 0 {
			if err := json.Unmarshal(data, out); err != nil {
				return backoff.Permanent(fmt.Errorf("api: decode %s response: %w", path, err))
			}
		}
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Debug("aggregator request retry", "path", path, "attempt", attempt, "wait", wait, "error", err)
	}

	err := backoff.RetryNotify(operation, b, notify)
	if err == nil {
		return nil
	}
	var coded *CodedError
	if errors.As(err, &coded) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return newError(CodeUnavailable, fmt.Sprintf("%s %s failed after %d attempts", method, path, attempt), err)
}
