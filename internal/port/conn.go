package port

import (
	"bytes"
	"io"
	"net"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// frameConn serializes frame writes on a WebSocket connection. Control
// replies produced while reading (pong, close) go through the same lock.
type frameConn struct {
	conn  net.Conn
	state ws.State

	wmu sync.Mutex
	ctl bytes.Buffer
	rd  *wsutil.Reader
	ch  wsutil.FrameHandlerFunc
}

// newFrameConn reads frames from src, which must end in conn. Writes go
// straight to conn.
func newFrameConn(conn net.Conn, src io.Reader, state ws.State) *frameConn {
	c := &frameConn{conn: conn, state: state}
	c.ch = wsutil.ControlFrameHandler(&c.ctl, state)
	c.rd = &wsutil.Reader{
		Source:         src,
		State:          state,
		CheckUTF8:      true,
		OnIntermediate: c.handleControl,
	}
	return c
}

// readText returns the next text or binary message payload.
func (c *frameConn) readText() ([]byte, error) {
	for {
		hdr, err := c.rd.NextFrame()
		if err != nil {
			return nil, err
		}
		if hdr.OpCode.IsControl() {
			if err := c.handleControl(hdr, c.rd); err != nil {
				return nil, err
			}
			continue
		}
		if hdr.OpCode&(ws.OpText|ws.OpBinary) == 0 {
			if err := c.rd.Discard(); err != nil {
				return nil, err
			}
			continue
		}
		return io.ReadAll(c.rd)
	}
}

func (c *frameConn) handleControl(hdr ws.Header, r io.Reader) error {
	err := c.ch(hdr, r)
	if c.ctl.Len() > 0 {
		c.wmu.Lock()
		_, werr := c.conn.Write(c.ctl.Bytes())
		c.wmu.Unlock()
		c.ctl.Reset()
		if err == nil {
			err = werr
		}
	}
	return err
}

func (c *frameConn) writeText(p []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.state.ServerSide() {
		return wsutil.WriteServerText(c.conn, p)
	}
	return wsutil.WriteClientText(c.conn, p)
}

func (c *frameConn) writeClose(code ws.StatusCode, reason string) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	body := ws.NewCloseFrameBody(code, reason)
	if c.state.ServerSide() {
		_ = ws.WriteFrame(c.conn, ws.NewCloseFrame(body))
		return
	}
	_ = ws.WriteFrame(c.conn, ws.MaskFrameInPlace(ws.NewCloseFrame(body)))
}

func (c *frameConn) close() error {
	return c.conn.Close()
}
