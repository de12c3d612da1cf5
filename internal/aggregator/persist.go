package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgnsrekt/phx_devtools/internal/storage"
	"github.com/dgnsrekt/phx_devtools/internal/types"
)

// Persisted keys.
const (
	KeyMessages    = "messages"
	KeyConnections = "websocketConnections"
)

const persistTimeout = 10 * time.Second

// persister writes the session state in the background. Marks coalesce:
// while a write is in progress further marks collapse into one follow-up
// write of the latest state.
type persister struct {
	kv       storage.KV
	snapshot func() (messages, connections []byte, err error)
	logger   *slog.Logger
	metrics  *Metrics

	signal    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func newPersister(kv storage.KV, snapshot func() ([]byte, []byte, error), logger *slog.Logger, metrics *Metrics) *persister {
	p := &persister{
		kv:       kv,
		snapshot: snapshot,
		logger:   logger,
		metrics:  metrics,
		signal:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	p.wg.Add(1)
	go p.loop()
	return p
}

func (p *persister) mark() {
	select {
	case p.signal <- struct{}{}:
	default:
	}
}

func (p *persister) loop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.signal:
			_ = p.flush()
		case <-p.done:
			return
		}
	}
}

func (p *persister) flush() error {
	start := time.Now()
	messages, connections, err := p.snapshot()
	if err != nil {
		p.metrics.persistFailed()
		p.logger.Error("Failed to encode state", "error", err)
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := p.kv.Set(ctx, KeyMessages, messages); err != nil {
		p.metrics.persistFailed()
		p.logger.Error("Failed to persist messages", "error", err)
		return err
	}
	if err := p.kv.Set(ctx, KeyConnections, connections); err != nil {
		p.metrics.persistFailed()
		p.logger.Error("Failed to persist connections", "error", err)
		return err
	}
	p.metrics.persisted(float64(time.Since(start).Microseconds()) / 1000)
	return nil
}

// close stops the loop and performs a final write.
func (p *persister) close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		p.wg.Wait()
		err = p.flush()
	})
	return err
}

func (s *Session) persistState() ([]byte, []byte, error) {
	s.mu.Lock()
	messages := s.messages
	if messages == nil {
		messages = []types.Message{}
	}
	connections := s.connections
	if connections == nil {
		connections = []types.Connection{}
	}
	msgJSON, err := json.Marshal(messages)
	if err != nil {
		s.mu.Unlock()
		return nil, nil, fmt.Errorf("encode messages: %w", err)
	}
	connJSON, err := json.Marshal(connections)
	s.mu.Unlock()
	if err != nil {
		return nil, nil, fmt.Errorf("encode connections: %w", err)
	}
	return msgJSON, connJSON, nil
}

// Restore loads persisted collections when enabled. Otherwise the stored
// keys are removed so a new process starts empty. Without a store it does
// nothing.
func (s *Session) Restore(ctx context.Context, kv storage.KV, enabled bool) error {
	if kv == nil {
		return nil
	}
	if !enabled {
		if err := kv.Delete(ctx, KeyMessages); err != nil {
			return fmt.Errorf("aggregator: reset: %w", err)
		}
		if err := kv.Delete(ctx, KeyConnections); err != nil {
			return fmt.Errorf("aggregator: reset: %w", err)
		}
		return nil
	}

	var messages []types.Message
	var connections []types.Connection
	if err := loadJSON(ctx, kv, KeyMessages, &messages); err != nil {
		return err
	}
	if err := loadJSON(ctx, kv, KeyConnections, &connections); err != nil {
		return err
	}

	s.mu.Lock()
	s.messages = s.messages[:0]
	s.hashes = make(map[string]struct{}, len(messages))
	for _, m := range messages {
		if m.Hash == "" {
			m.Hash = MessageHash(m.Method, m.Data)
		}
		if _, dup := s.hashes[m.Hash]; dup {
			continue
		}
		s.hashes[m.Hash] = struct{}{}
		s.messages = append(s.messages, m)
		if m.Timestamp > s.lastTS {
			s.lastTS = m.Timestamp
		}
	}
	if over := len(s.messages) - s.maxMessages; over > 0 {
		for _, old := range s.messages[:over] {
			delete(s.hashes, old.Hash)
		}
		s.messages = append([]types.Message(nil), s.messages[over:]...)
	}
	s.connections = connections
	stored, conns := len(s.messages), len(s.connections)
	s.mu.Unlock()

	s.metrics.stored(stored, conns)
	s.logger.Info("Restored persisted state", "messages", stored, "connections", conns)
	return nil
}

func loadJSON(ctx context.Context, kv storage.KV, key string, v any) error {
	raw, ok, err := kv.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("aggregator: restore %s: %w", key, err)
	}
	if !ok {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("aggregator: restore %s: %w", key, err)
	}
	return nil
}
