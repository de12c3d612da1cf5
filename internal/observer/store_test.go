package observer

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgnsrekt/phx_devtools/internal/aggregator"
	"github.com/dgnsrekt/phx_devtools/internal/types"
)

type fakePort struct {
	updates chan types.Update

	mu     sync.Mutex
	sent   []types.Request
	closed bool
}

func newFakePort() *fakePort {
	return &fakePort{updates: make(chan types.Update, 16)}
}

func (p *fakePort) Send(_ context.Context, req types.Request) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, req)
	return nil
}

func (p *fakePort) Updates() <-chan types.Update { return p.updates }

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePort) actions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.sent))
	for i, r := range p.sent {
		out[i] = r.Action
	}
	return out
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func msg(hash string, ts int64, dir types.Direction, data string) types.Message {
	return types.Message{
		Method:    types.MethodPhoenixReceive,
		Data:      data,
		Hash:      hash,
		Type:      types.TypeWebSocket,
		Direction: dir,
		Size:      len(data),
		Timestamp: ts,
	}
}

func TestConnectRequestsSnapshot(t *testing.T) {
	session := aggregator.NewSession(aggregator.Options{Highlighting: true})
	ctx := context.Background()
	session.Capture(ctx, types.Message{Method: types.MethodPhoenixSend, Data: `["1","1","lv:a","phx_join",{}]`, Type: types.TypeWebSocket, Direction: types.Outbound})
	session.Capture(ctx, types.Message{Method: types.MethodPhoenixReceive, Data: `["1","1","lv:a","phx_reply",{}]`, Type: types.TypeWebSocket, Direction: types.Inbound})

	store := New(session.Connect(), Options{Logger: quietLogger()})
	defer store.Close()
	if err := store.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	waitFor(t, func() bool { return len(store.Messages()) == 2 })
	if enabled, ok := store.Highlighting(); !ok || !enabled {
		t.Fatalf("Highlighting() = %v, %v", enabled, ok)
	}
	if store.Messages()[0].Method != types.MethodPhoenixSend {
		t.Fatalf("log not ordered by timestamp: %+v", store.Messages())
	}
}

func TestDebouncedMerge(t *testing.T) {
	port := newFakePort()
	store := New(port, Options{Debounce: 150 * time.Millisecond, RecentTTL: 100 * time.Millisecond, Logger: quietLogger()})
	defer store.Close()
	if err := store.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	var notified atomic.Int32
	store.Subscribe(func() { notified.Add(1) })

	port.updates <- types.Update{Kind: types.UpdateMessages, Messages: []types.Message{
		msg("c", 30, types.Inbound, "three"),
		msg("a", 10, types.Inbound, "one"),
		msg("a", 10, types.Inbound, "one"),
	}}
	port.updates <- types.Update{Kind: types.UpdateMessages, Messages: []types.Message{msg("b", 20, types.Outbound, "two")}}

	waitFor(t, func() bool { return store.Pending() == 3 })
	if len(store.Messages()) != 0 {
		t.Fatalf("messages applied before debounce")
	}

	waitFor(t, func() bool { return len(store.Messages()) == 3 })
	got := store.Messages()
	if got[0].Hash != "a" || got[1].Hash != "b" || got[2].Hash != "c" {
		t.Fatalf("merge order = %s %s %s", got[0].Hash, got[1].Hash, got[2].Hash)
	}
	if !store.IsRecent("b") {
		t.Fatalf("merged message not marked recent")
	}
	if notified.Load() == 0 {
		t.Fatalf("listeners not notified")
	}

	// Already applied hashes are not merged again.
	port.updates <- types.Update{Kind: types.UpdateMessages, Messages: []types.Message{msg("a", 10, types.Inbound, "one")}}
	time.Sleep(20 * time.Millisecond)
	if store.Pending() != 0 {
		t.Fatalf("duplicate buffered")
	}

	waitFor(t, func() bool { return !store.IsRecent("b") })
}

func TestResetForgetsRecent(t *testing.T) {
	port := newFakePort()
	store := New(port, Options{Debounce: time.Millisecond, RecentTTL: time.Hour, Logger: quietLogger()})
	defer store.Close()
	if err := store.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	port.updates <- types.Update{Kind: types.UpdateMessages, Messages: []types.Message{msg("a", 1, types.Inbound, "x")}}
	waitFor(t, func() bool { return store.IsRecent("a") })

	t.Run("clear", func(t *testing.T) {
		if err := store.Clear(context.Background()); err != nil {
			t.Fatalf("Clear() error = %v", err)
		}
		if store.IsRecent("a") {
			t.Fatalf("hash from before the clear still recent")
		}
	})

	t.Run("snapshot", func(t *testing.T) {
		port.updates <- types.Update{Kind: types.UpdateMessages, Messages: []types.Message{msg("b", 2, types.Inbound, "y")}}
		waitFor(t, func() bool { return store.IsRecent("b") })
		port.updates <- types.Update{Kind: types.UpdateSnapshot, Messages: []types.Message{msg("c", 3, types.Inbound, "z")}}
		waitFor(t, func() bool { return len(store.Messages()) == 1 && store.Messages()[0].Hash == "c" })
		if store.IsRecent("b") {
			t.Fatalf("hash replaced by a snapshot still recent")
		}
	})
}

func TestMaxWaitFlushes(t *testing.T) {
	port := newFakePort()
	store := New(port, Options{Debounce: time.Hour, MaxWait: 20 * time.Millisecond, Logger: quietLogger()})
	defer store.Close()
	store.Connect(context.Background())

	port.updates <- types.Update{Kind: types.UpdateMessages, Messages: []types.Message{msg("a", 1, types.Inbound, "x")}}
	waitFor(t, func() bool { return len(store.Messages()) == 1 })
}

func TestViewFilters(t *testing.T) {
	store := New(newFakePort(), Options{TabID: 2, Location: time.UTC, Logger: quietLogger()})
	defer store.Close()

	phx := msg("p", 1000, types.Inbound, `{"topic":"lv:1","event":"phx_reply","payload":{},"ref":"1"}`)
	phx.TabID = 2
	plain := msg("o", 2000, types.Outbound, "ping")
	foreign := msg("f", 3000, types.Inbound, `{"topic":"lv:9","event":"diff","payload":{},"ref":"2"}`)
	foreign.TabID = 7
	store.apply(types.Update{Kind: types.UpdateSnapshot, Messages: []types.Message{phx, plain, foreign}})

	hashes := func(msgs []types.Message) string {
		var b bytes.Buffer
		for _, m := range msgs {
			b.WriteString(m.Hash)
		}
		return b.String()
	}

	tests := []struct {
		name   string
		filter Filter
		want   string
	}{
		{"all_newest_first", Filter{}, "op"},
		{"inbound", Filter{Direction: DirectionInbound}, "p"},
		{"outbound", Filter{Direction: DirectionOutbound}, "o"},
		{"phoenix_only", Filter{PhoenixOnly: true}, "p"},
		{"search", Filter{Search: "PHX_REPLY"}, "p"},
		{"search_direction_word", Filter{Search: "outbound ping"}, "o"},
		{"search_timestamp", Filter{Search: "00:00:02.000"}, "o"},
		{"search_no_match", Filter{Search: "ping phx_reply"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store.SetFilter(tt.filter)
			if got := hashes(store.View()); got != tt.want {
				t.Fatalf("View() = %q, want %q", got, tt.want)
			}
		})
	}

	if len(store.Messages()) != 3 {
		t.Fatalf("filters mutated the base log")
	}
}

func TestSearchConjunction(t *testing.T) {
	m := msg("h", 0, types.Inbound, "foo and Café résumé")
	blob := searchBlob(m, time.UTC)

	tests := []struct {
		query string
		want  bool
	}{
		{"foo", true},
		{"foo bar", false},
		{"résumé FOO", true},
		{"cafe resume", true},
		{"CAFÉ", true},
		{"resume bar", false},
		{"", true},
	}
	for _, tt := range tests {
		if got := matches(blob, searchTerms(tt.query)); got != tt.want {
			t.Errorf("matches(%q) = %v, want %v", tt.query, got, tt.want)
		}
	}
}

func TestStoreClassifiesWithConnections(t *testing.T) {
	store := New(newFakePort(), Options{Debounce: time.Millisecond, Logger: quietLogger()})
	defer store.Close()

	m := msg("x", 1, types.Inbound, "opaque")
	m.TabID = 4
	m.IsPhoenix = false
	store.apply(types.Update{Kind: types.UpdateConnections, Connections: []types.Connection{{TabID: 4, IsPhoenix: true}}})
	store.apply(types.Update{Kind: types.UpdateMessages, Messages: []types.Message{m}})

	waitFor(t, func() bool { return len(store.Messages()) == 1 })
	if !store.Messages()[0].IsPhoenix {
		t.Fatalf("message from a phoenix tab not classified")
	}
}

func TestRoundTripClear(t *testing.T) {
	session := aggregator.NewSession(aggregator.Options{})
	ctx := context.Background()

	first := New(session.Connect(), Options{Debounce: time.Millisecond, Logger: quietLogger()})
	second := New(session.Connect(), Options{Debounce: time.Millisecond, Logger: quietLogger()})
	defer first.Close()
	defer second.Close()
	for _, s := range []*Store{first, second} {
		if err := s.Connect(ctx); err != nil {
			t.Fatalf("Connect() error = %v", err)
		}
	}

	session.Capture(ctx, types.Message{Method: types.MethodPhoenixReceive, Data: "a", Type: types.TypeWebSocket, Direction: types.Inbound})
	session.ConnectionInfo(ctx, 1, types.ConnectionInfo{URL: "ws://x"})
	waitFor(t, func() bool { return len(first.Messages()) == 1 && len(second.Messages()) == 1 })

	if err := first.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	waitFor(t, func() bool {
		return len(first.Messages()) == 0 && len(second.Messages()) == 0 && len(second.Connections()) == 0
	})
	snap := session.Snapshot()
	if len(snap.Messages) != 0 || len(snap.Connections) != 0 {
		t.Fatalf("aggregator not cleared: %+v", snap)
	}
}

func TestCloseStopsMutation(t *testing.T) {
	port := newFakePort()
	store := New(port, Options{Debounce: 10 * time.Millisecond, Logger: quietLogger()})
	store.Connect(context.Background())

	var calls atomic.Int32
	store.Subscribe(func() { calls.Add(1) })

	port.updates <- types.Update{Kind: types.UpdateMessages, Messages: []types.Message{msg("a", 1, types.Inbound, "x")}}
	waitFor(t, func() bool { return store.Pending() == 1 })

	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !port.closed {
		t.Fatalf("port not closed")
	}
	store.apply(types.Update{Kind: types.UpdateSnapshot, Messages: []types.Message{msg("b", 2, types.Inbound, "y")}})
	time.Sleep(30 * time.Millisecond)

	if len(store.Messages()) != 0 || store.Pending() != 0 {
		t.Fatalf("store mutated after Close")
	}
	if calls.Load() != 0 {
		t.Fatalf("listener called after Close")
	}
	if err := store.Clear(context.Background()); err != ErrClosed {
		t.Fatalf("Clear() after Close = %v, want ErrClosed", err)
	}
	if got := port.actions(); len(got) != 1 || got[0] != types.RequestGetMessages {
		t.Fatalf("sent = %v", got)
	}
}

func TestParseDirection(t *testing.T) {
	for in, want := range map[string]Direction{"": DirectionAll, "all": DirectionAll, "inbound": DirectionInbound, "outbound": DirectionOutbound} {
		got, err := ParseDirection(in)
		if err != nil || got != want {
			t.Errorf("ParseDirection(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseDirection("sideways"); err == nil {
		t.Errorf("ParseDirection(sideways) = nil error")
	}
}
