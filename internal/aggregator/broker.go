package aggregator

import (
	"sync"
	"sync/atomic"

	"github.com/dgnsrekt/phx_devtools/internal/types"
)

const subscriberBufSize = 256

// Broker fans out updates to every subscribed port.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[int64]chan types.Update
	nextID      atomic.Int64
	dropped     func()
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[int64]chan types.Update),
	}
}

// Subscribe registers a port. The channel is buffered; a consumer that
// falls behind loses updates and is expected to resync with getMessages.
func (b *Broker) Subscribe() (int64, <-chan types.Update) {
	id := b.nextID.Add(1)
	ch := make(chan types.Update, subscriberBufSize)
	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel. Unknown ids are
// ignored.
func (b *Broker) Unsubscribe(id int64) {
	b.mu.Lock()
	ch, ok := b.subscribers[id]
	if ok {
		delete(b.subscribers, id)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish delivers u to all subscribers without blocking.
func (b *Broker) Publish(u types.Update) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- u:
		default:
			if b.dropped != nil {
				b.dropped()
			}
		}
	}
}

// SendTo delivers u to one subscriber without blocking. It reports false
// when the subscriber is gone or its buffer is full.
func (b *Broker) SendTo(id int64, u types.Update) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ch, ok := b.subscribers[id]
	if !ok {
		return false
	}
	select {
	case ch <- u:
		return true
	default:
		if b.dropped != nil {
			b.dropped()
		}
		return false
	}
}

// ClientCount returns the number of active subscribers.
func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
