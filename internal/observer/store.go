// Package observer keeps a panel's in-memory projection of the aggregator's
// log: incoming messages are buffered, merged on a debounce, and exposed
// through filtered views.
package observer

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dgnsrekt/phx_devtools/internal/phoenix"
	"github.com/dgnsrekt/phx_devtools/internal/types"
)

// Port is the panel's channel to the aggregator.
type Port interface {
	Send(ctx context.Context, req types.Request) error
	Updates() <-chan types.Update
	Close() error
}

// ErrClosed is returned by actions on a closed store.
var ErrClosed = errors.New("observer: store closed")

// Direction selects messages by direction.
type Direction string

const (
	DirectionAll      Direction = "all"
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// ParseDirection maps a flag value onto a Direction.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case "", DirectionAll:
		return DirectionAll, nil
	case DirectionInbound, DirectionOutbound:
		return Direction(s), nil
	default:
		return "", errors.New("observer: direction must be all, inbound or outbound")
	}
}

// Filter is the view selection. It never alters the stored log.
type Filter struct {
	Direction   Direction
	PhoenixOnly bool
	Search      string
}

// Options tunes a Store. Zero values select defaults.
type Options struct {
	// TabID scopes the view to one tab. Messages of other tabs are hidden;
	// untagged messages are shown. 0 disables scoping.
	TabID       int
	MaxMessages int
	Classifier  *phoenix.Classifier
	// Debounce is the quiet period before pending messages are merged.
	Debounce time.Duration
	// MaxWait bounds how long a message may stay pending under load.
	MaxWait time.Duration
	// RecentTTL is how long merged messages stay marked as recent.
	RecentTTL time.Duration
	Location  *time.Location
	Logger    *slog.Logger
}

const (
	defaultDebounce    = 100 * time.Millisecond
	defaultMaxWait     = time.Second
	defaultRecentTTL   = time.Second
	defaultMaxMessages = 10000
)

// Store is one panel's observable state container.
type Store struct {
	port Port
	opts Options
	log  *slog.Logger

	mu            sync.Mutex
	connected     bool
	closed        bool
	messages      []types.Message
	hashes        map[string]struct{}
	connections   []types.Connection
	pending       []types.Message
	pendingHashes map[string]struct{}
	debounce      *time.Timer
	maxWait       *time.Timer
	recent        map[string]struct{}
	recentTimer   *time.Timer
	filter        Filter
	highlighting  *bool
	listeners     map[int]func()
	nextListener  int

	done chan struct{}
	wg   sync.WaitGroup
}

func New(port Port, opts Options) *Store {
	if opts.MaxMessages <= 0 {
		opts.MaxMessages = defaultMaxMessages
	}
	if opts.Classifier == nil {
		opts.Classifier = phoenix.Default
	}
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = defaultMaxWait
	}
	if opts.RecentTTL <= 0 {
		opts.RecentTTL = defaultRecentTTL
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Store{
		port:          port,
		opts:          opts,
		log:           opts.Logger,
		hashes:        make(map[string]struct{}),
		pendingHashes: make(map[string]struct{}),
		recent:        make(map[string]struct{}),
		filter:        Filter{Direction: DirectionAll},
		listeners:     make(map[int]func()),
		done:          make(chan struct{}),
	}
}

// Connect starts consuming pushed updates and requests the current state.
func (s *Store) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.connected {
		s.mu.Unlock()
		return nil
	}
	s.connected = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.consume()

	if err := s.port.Send(ctx, types.Request{Action: types.RequestGetMessages}); err != nil {
		return err
	}
	return nil
}

// Close stops timers, discards pending messages and closes the port. The
// store is not mutated afterwards.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.stopTimersLocked()
	if s.recentTimer != nil {
		s.recentTimer.Stop()
	}
	s.pending = nil
	clear(s.pendingHashes)
	s.mu.Unlock()

	close(s.done)
	err := s.port.Close()
	s.wg.Wait()
	return err
}

// Subscribe registers fn to run after every applied change. The returned
// function removes it.
func (s *Store) Subscribe(fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// Clear asks the aggregator to clear and empties the local log right away.
// The aggregator's empty snapshot confirms it.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.resetLocked(nil, nil)
	s.mu.Unlock()
	s.notify()

	return s.port.Send(ctx, types.Request{Action: types.RequestClearMessages})
}

// SetHighlighting asks the aggregator to toggle highlighting in every relay.
func (s *Store) SetHighlighting(ctx context.Context, enabled bool) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	return s.port.Send(ctx, types.Request{Action: types.RequestToggleHighlighting, Enabled: &enabled})
}

// Highlighting returns the last setting pushed by the aggregator; ok is
// false until one arrived.
func (s *Store) Highlighting() (enabled, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.highlighting == nil {
		return false, false
	}
	return *s.highlighting, true
}

func (s *Store) SetFilter(f Filter) {
	if f.Direction == "" {
		f.Direction = DirectionAll
	}
	s.mu.Lock()
	s.filter = f
	s.mu.Unlock()
	s.notify()
}

func (s *Store) Filter() Filter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

// Messages returns a copy of the base log, oldest first.
func (s *Store) Messages() []types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.messages)
}

func (s *Store) Connections() []types.Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return types.CloneConnections(s.connections)
}

// Pending returns the number of messages awaiting the next merge.
func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// IsRecent reports whether hash arrived with the latest merge.
func (s *Store) IsRecent(hash string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.recent[hash]
	return ok
}

// View returns the filtered log, newest first.
func (s *Store) View() []types.Message {
	s.mu.Lock()
	f := s.filter
	msgs := slices.Clone(s.messages)
	s.mu.Unlock()

	terms := searchTerms(f.Search)
	out := make([]types.Message, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if s.opts.TabID != 0 && m.TabID != 0 && m.TabID != s.opts.TabID {
			continue
		}
		if f.Direction != DirectionAll && string(m.Direction) != string(f.Direction) {
			continue
		}
		if f.PhoenixOnly && !m.IsPhoenix {
			continue
		}
		if len(terms) > 0 && !matches(searchBlob(m, s.opts.Location), terms) {
			continue
		}
		out = append(out, m)
	}
	return out
}

func (s *Store) consume() {
	defer s.wg.Done()
	updates := s.port.Updates()
	for {
		select {
		case <-s.done:
			return
		case u, ok := <-updates:
			if !ok {
				s.log.Debug("Observer port closed")
				return
			}
			s.apply(u)
		}
	}
}

func (s *Store) apply(u types.Update) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	changed := true
	switch u.Kind {
	case types.UpdateSnapshot:
		s.resetLocked(u.Messages, u.Connections)
	case types.UpdateMessages:
		s.bufferLocked(u.Messages)
		changed = false
	case types.UpdateConnections:
		s.connections = types.CloneConnections(u.Connections)
	case types.UpdateSettings:
		if u.Highlighting != nil {
			v := *u.Highlighting
			s.highlighting = &v
		}
	default:
		changed = false
	}
	s.mu.Unlock()
	if changed {
		s.notify()
	}
}

// resetLocked replaces the log with an authoritative snapshot and drops
// whatever was pending, which the snapshot already covers. Nothing from
// the previous log stays recent.
func (s *Store) resetLocked(msgs []types.Message, conns []types.Connection) {
	s.stopTimersLocked()
	s.pending = nil
	clear(s.pendingHashes)
	if s.recentTimer != nil {
		s.recentTimer.Stop()
		s.recentTimer = nil
	}
	clear(s.recent)
	s.connections = types.CloneConnections(conns)
	if s.connections == nil {
		s.connections = []types.Connection{}
	}
	s.messages = s.messages[:0]
	clear(s.hashes)
	s.mergeLocked(msgs)
}

func (s *Store) bufferLocked(msgs []types.Message) {
	added := false
	for _, m := range msgs {
		if _, dup := s.hashes[m.Hash]; dup {
			continue
		}
		if _, dup := s.pendingHashes[m.Hash]; dup {
			continue
		}
		s.pendingHashes[m.Hash] = struct{}{}
		s.pending = append(s.pending, m)
		added = true
	}
	if !added {
		return
	}
	if s.debounce == nil {
		s.debounce = time.AfterFunc(s.opts.Debounce, s.flush)
	} else {
		s.debounce.Reset(s.opts.Debounce)
	}
	if s.maxWait == nil {
		s.maxWait = time.AfterFunc(s.opts.MaxWait, s.flush)
	}
}

func (s *Store) flush() {
	s.mu.Lock()
	if s.closed || len(s.pending) == 0 {
		s.mu.Unlock()
		return
	}
	s.stopTimersLocked()
	batch := s.pending
	s.pending = nil
	clear(s.pendingHashes)

	merged := s.mergeLocked(batch)
	clear(s.recent)
	for _, h := range merged {
		s.recent[h] = struct{}{}
	}
	if s.recentTimer != nil {
		s.recentTimer.Stop()
	}
	s.recentTimer = time.AfterFunc(s.opts.RecentTTL, s.expireRecent)
	s.mu.Unlock()
	s.notify()
}

// mergeLocked classifies msgs, drops known hashes and merges them into the
// log by timestamp. It returns the hashes added.
func (s *Store) mergeLocked(msgs []types.Message) []string {
	batch := make([]types.Message, 0, len(msgs))
	for _, m := range msgs {
		if _, dup := s.hashes[m.Hash]; dup {
			continue
		}
		m.IsPhoenix = s.opts.Classifier.IsPhoenixMessage(m, s.connections)
		s.hashes[m.Hash] = struct{}{}
		batch = append(batch, m)
	}
	if len(batch) == 0 {
		return nil
	}
	byTimestamp := func(a, b types.Message) int {
		switch {
		case a.Timestamp < b.Timestamp:
			return -1
		case a.Timestamp > b.Timestamp:
			return 1
		default:
			return 0
		}
	}
	slices.SortStableFunc(batch, byTimestamp)

	s.messages = append(s.messages, batch...)
	if len(s.messages) > len(batch) && byTimestamp(s.messages[len(s.messages)-len(batch)-1], batch[0]) > 0 {
		slices.SortStableFunc(s.messages, byTimestamp)
	}
	if over := len(s.messages) - s.opts.MaxMessages; over > 0 {
		for _, m := range s.messages[:over] {
			delete(s.hashes, m.Hash)
		}
		s.messages = slices.Delete(s.messages, 0, over)
	}

	added := make([]string, len(batch))
	for i, m := range batch {
		added[i] = m.Hash
	}
	return added
}

func (s *Store) expireRecent() {
	s.mu.Lock()
	if s.closed || len(s.recent) == 0 {
		s.mu.Unlock()
		return
	}
	clear(s.recent)
	s.mu.Unlock()
	s.notify()
}

func (s *Store) stopTimersLocked() {
	if s.debounce != nil {
		s.debounce.Stop()
		s.debounce = nil
	}
	if s.maxWait != nil {
		s.maxWait.Stop()
		s.maxWait = nil
	}
}

func (s *Store) notify() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	fns := make([]func(), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
