package aggregator

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dgnsrekt/phx_devtools/internal/storage"
	"github.com/dgnsrekt/phx_devtools/internal/types"
)

// DefaultMaxMessages bounds the retained message list.
const DefaultMaxMessages = 10000

// Archiver receives every accepted message.
type Archiver interface {
	Append(msg types.Message) error
}

// Options configure a Session. Zero values select defaults.
type Options struct {
	MaxMessages int
	// Store persists the collections. Nil disables persistence.
	Store   storage.KV
	Archive Archiver
	Metrics *Metrics
	Logger  *slog.Logger
	Now     func() time.Time
	// Highlighting is the initial highlight setting pushed to relays.
	Highlighting bool
}

// Session is the aggregator state: the only writer of the message and
// connection collections. All mutations are serialized by mu; hashing is
// done before taking it.
type Session struct {
	maxMessages int
	archive     Archiver
	metrics     *Metrics
	logger      *slog.Logger
	now         func() time.Time
	broker      *Broker
	persister   *persister

	mu           sync.Mutex
	messages     []types.Message
	hashes       map[string]struct{}
	connections  []types.Connection
	lastTS       int64
	tabs         map[string]int
	nextTab      int
	highlighting bool
}

// NewSession creates the session and starts its persister when a store is
// configured. Call Restore before serving traffic.
func NewSession(opts Options) *Session {
	if opts.MaxMessages <= 0 {
		opts.MaxMessages = DefaultMaxMessages
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Session{
		maxMessages:  opts.MaxMessages,
		archive:      opts.Archive,
		metrics:      opts.Metrics,
		logger:       opts.Logger,
		now:          opts.Now,
		broker:       NewBroker(),
		hashes:       make(map[string]struct{}),
		tabs:         make(map[string]int),
		highlighting: opts.Highlighting,
	}
	s.broker.dropped = s.metrics.dropped
	if opts.Store != nil {
		s.persister = newPersister(opts.Store, s.persistState, s.logger, s.metrics)
	}
	return s
}

// Capture assigns hash and timestamp to msg, stores it unless an identical
// message is already retained, and broadcasts it.
func (s *Session) Capture(_ context.Context, msg types.Message) error {
	_, _ = s.Accept(msg)
	return nil
}

// Accept is Capture returning the stored message and whether it was new.
func (s *Session) Accept(msg types.Message) (types.Message, bool) {
	hash := MessageHash(msg.Method, msg.Data)

	s.mu.Lock()
	if _, dup := s.hashes[hash]; dup {
		s.mu.Unlock()
		s.metrics.message("duplicate")
		s.logger.Debug("Duplicate message dropped", "method", msg.Method, "hash", hash[:12])
		return types.Message{}, false
	}

	ts := s.now().UnixMilli()
	if ts <= s.lastTS {
		ts = s.lastTS + 1
	}
	s.lastTS = ts
	msg.Hash = hash
	msg.Timestamp = ts
	if msg.Size == 0 {
		msg.Size = len(msg.Data)
	}

	s.messages = append(s.messages, msg)
	s.hashes[hash] = struct{}{}
	evicted := 0
	if over := len(s.messages) - s.maxMessages; over > 0 {
		for _, old := range s.messages[:over] {
			delete(s.hashes, old.Hash)
		}
		s.messages = slices.Delete(s.messages, 0, over)
		evicted = over
	}
	stored, conns := len(s.messages), len(s.connections)
	s.broker.Publish(types.Update{Kind: types.UpdateMessages, Messages: []types.Message{msg}})
	s.mu.Unlock()

	s.metrics.message("accepted")
	if evicted > 0 {
		s.metrics.evicted(evicted)
	}
	s.metrics.stored(stored, conns)
	s.markDirty()
	if s.archive != nil {
		if err := s.archive.Append(msg); err != nil {
			s.metrics.archiveFailed()
		}
	}
	return msg, true
}

// ConnectionInfo upserts the connection record of tabID.
func (s *Session) ConnectionInfo(_ context.Context, tabID int, info types.ConnectionInfo) error {
	if tabID <= 0 {
		return ErrInvalidTab
	}
	hash := connectionHash(info)

	s.mu.Lock()
	conn := types.Connection{
		TabID:      tabID,
		Timestamp:  s.now().UnixMilli(),
		IsPhoenix:  true,
		Hash:       hash,
		Channels:   slices.Clone(info.Channels),
		PhxVersion: info.PhxVersion,
		Params:     info.Params,
		URL:        info.URL,
	}
	if i := s.connectionIndex(tabID); i >= 0 {
		s.connections[i] = conn
	} else {
		s.connections = append(s.connections, conn)
	}
	s.publishConnectionsLocked()
	stored, conns := len(s.messages), len(s.connections)
	s.mu.Unlock()

	s.logger.Info("LiveSocket connection recorded", "tab_id", tabID, "phx_version", info.PhxVersion, "channels", len(info.Channels))
	s.metrics.stored(stored, conns)
	s.markDirty()
	return nil
}

// ChannelsUpdated replaces the channels of tabID's connection. It is a no-op
// when the tab has no connection record.
func (s *Session) ChannelsUpdated(_ context.Context, tabID int, channels []types.Channel) error {
	if tabID <= 0 {
		return ErrInvalidTab
	}
	s.mu.Lock()
	i := s.connectionIndex(tabID)
	if i < 0 {
		s.mu.Unlock()
		s.logger.Debug("Channels update without connection", "tab_id", tabID)
		return nil
	}
	s.connections[i].Channels = slices.Clone(channels)
	s.publishConnectionsLocked()
	s.mu.Unlock()

	s.markDirty()
	return nil
}

// CurrentTabID returns a stable id for targetID, assigning the next free one
// on first sight. Ids start at 1.
func (s *Session) CurrentTabID(_ context.Context, targetID string) (int, error) {
	if targetID == "" {
		return 0, ErrInvalidTarget
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.tabs[targetID]; ok {
		return id, nil
	}
	s.nextTab++
	s.tabs[targetID] = s.nextTab
	return s.nextTab, nil
}

// Snapshot copies the current collections.
func (s *Session) Snapshot() types.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return types.Snapshot{
		Messages:    slices.Clone(s.messages),
		Connections: types.CloneConnections(s.connections),
	}
}

// Clear empties both collections, persists the empty state and broadcasts
// an empty snapshot. The timestamp counter keeps running.
func (s *Session) Clear() {
	s.mu.Lock()
	s.messages = nil
	s.connections = nil
	s.hashes = make(map[string]struct{})
	s.broker.Publish(types.Update{Kind: types.UpdateSnapshot})
	s.mu.Unlock()

	s.logger.Info("Messages cleared")
	s.metrics.stored(0, 0)
	s.markDirty()
}

// SetHighlighting stores the highlight setting and broadcasts it.
func (s *Session) SetHighlighting(enabled bool) {
	s.mu.Lock()
	s.highlighting = enabled
	s.broker.Publish(s.settingsLocked())
	s.mu.Unlock()
	s.logger.Info("Highlighting toggled", "enabled", enabled)
}

// Highlighting returns the current highlight setting.
func (s *Session) Highlighting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.highlighting
}

// Settings returns the settings update new ports receive on connect.
func (s *Session) Settings() types.Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settingsLocked()
}

// Subscribe registers a port for pushed updates.
func (s *Session) Subscribe() (int64, <-chan types.Update) {
	id, ch := s.broker.Subscribe()
	s.metrics.subscribers(s.broker.ClientCount())
	return id, ch
}

// Unsubscribe detaches a port. Nothing is sent to it afterwards.
func (s *Session) Unsubscribe(id int64) {
	s.broker.Unsubscribe(id)
	s.metrics.subscribers(s.broker.ClientCount())
}

// SubscriberCount returns the number of attached ports.
func (s *Session) SubscriberCount() int {
	return s.broker.ClientCount()
}

// Close writes the final state and stops the persister.
func (s *Session) Close() error {
	if s.persister == nil {
		return nil
	}
	return s.persister.close()
}

func (s *Session) connectionIndex(tabID int) int {
	return slices.IndexFunc(s.connections, func(c types.Connection) bool { return c.TabID == tabID })
}

func (s *Session) publishConnectionsLocked() {
	s.broker.Publish(types.Update{
		Kind:        types.UpdateConnections,
		Connections: types.CloneConnections(s.connections),
	})
}

func (s *Session) settingsLocked() types.Update {
	enabled := s.highlighting
	return types.Update{Kind: types.UpdateSettings, Highlighting: &enabled}
}

func (s *Session) markDirty() {
	if s.persister != nil {
		s.persister.mark()
	}
}
