package port

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/gobwas/ws"

	"github.com/dgnsrekt/phx_devtools/internal/types"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("port: closed")

const updateBufSize = 256

// Client is the panel end of a port.
type Client struct {
	fc      *frameConn
	logger  *slog.Logger
	updates chan types.Update
	done    chan struct{}
	ended   chan struct{}

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Dial connects to a port endpoint such as ws://127.0.0.1:8390/ws.
func Dial(ctx context.Context, url string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, br, _, err := ws.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("port: dial: %w", err)
	}
	c := &Client{
		fc:      newFrameConn(conn, handshakeSource(conn, br), ws.StateClientSide),
		logger:  logger,
		updates: make(chan types.Update, updateBufSize),
		done:    make(chan struct{}),
		ended:   make(chan struct{}),
	}
	c.wg.Add(1)
	go c.readLoop()
	return c, nil
}

// handshakeSource returns the frame source of a dialed connection. The
// aggregator pushes its settings right after the upgrade, so br may already
// hold frame bytes read along with the handshake response.
func handshakeSource(conn io.Reader, br *bufio.Reader) io.Reader {
	if br == nil {
		return conn
	}
	pending := make([]byte, br.Buffered())
	_, _ = io.ReadFull(br, pending)
	ws.PutReader(br)
	return io.MultiReader(bytes.NewReader(pending), conn)
}

// Send writes req to the aggregator.
func (c *Client) Send(ctx context.Context, req types.Request) error {
	select {
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("port: encode request: %w", err)
	}
	if err := c.fc.writeText(data); err != nil {
		return fmt.Errorf("port: write: %w", err)
	}
	return nil
}

// Updates delivers pushed updates in order. The channel is closed when the
// connection ends or Close is called.
func (c *Client) Updates() <-chan types.Update {
	return c.updates
}

// Done is closed once Close has been called.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Ended is closed when the connection stops delivering updates, either
// after Close or because the aggregator went away.
func (c *Client) Ended() <-chan struct{} {
	return c.ended
}

// Close sends a close frame and tears the connection down.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.fc.writeClose(ws.StatusNormalClosure, "")
		err = c.fc.close()
		c.wg.Wait()
	})
	return err
}

func (c *Client) readLoop() {
	defer c.wg.Done()
	defer close(c.ended)
	defer close(c.updates)
	for {
		data, err := c.fc.readText()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Warn("Port connection lost", "error", err)
			}
			return
		}
		var u types.Update
		if err := json.Unmarshal(data, &u); err != nil {
			c.logger.Warn("Malformed update", "error", err)
			continue
		}
		select {
		case c.updates <- u:
		case <-c.done:
			return
		}
	}
}
