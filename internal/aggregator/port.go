package aggregator

import (
	"context"
	"errors"
	"sync"

	"github.com/dgnsrekt/phx_devtools/internal/types"
)

// ErrPortClosed is returned by Send after Close.
var ErrPortClosed = errors.New("aggregator: port closed")

// Attach subscribes a port and queues the current settings as its first
// update.
func (s *Session) Attach() (int64, <-chan types.Update) {
	id, ch := s.Subscribe()
	s.mu.Lock()
	s.broker.SendTo(id, s.settingsLocked())
	s.mu.Unlock()
	return id, ch
}

// Request handles an action sent by the port id. A getMessages reply is
// queued on that port only, in order with the broadcasts it has received.
func (s *Session) Request(ctx context.Context, id int64, a types.Action) error {
	if _, ok := a.(types.GetMessagesAction); ok {
		s.mu.Lock()
		s.broker.SendTo(id, types.Update{
			Kind:        types.UpdateSnapshot,
			Messages:    append([]types.Message(nil), s.messages...),
			Connections: types.CloneConnections(s.connections),
		})
		s.mu.Unlock()
		return nil
	}
	_, err := s.Handle(ctx, a)
	return err
}

// LocalPort is an in-process port onto a session, used when the panel runs
// in the aggregator process and in tests.
type LocalPort struct {
	session *Session
	id      int64
	updates <-chan types.Update

	mu     sync.Mutex
	closed bool
}

// Connect attaches a new local port.
func (s *Session) Connect() *LocalPort {
	id, ch := s.Attach()
	return &LocalPort{session: s, id: id, updates: ch}
}

// Send decodes req and handles it.
func (p *LocalPort) Send(ctx context.Context, req types.Request) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrPortClosed
	}
	a, err := req.Decode()
	if err != nil {
		return err
	}
	return p.session.Request(ctx, p.id, a)
}

// Updates returns the pushed updates. The channel is closed by Close.
func (p *LocalPort) Updates() <-chan types.Update {
	return p.updates
}

// Close detaches the port.
func (p *LocalPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.session.Unsubscribe(p.id)
	return nil
}
