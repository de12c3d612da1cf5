package relay

import (
	"context"
	"sync"

	"github.com/dgnsrekt/phx_devtools/internal/types"
)

// Fleet holds the relays of all attached tabs and the highlighting setting
// they share.
type Fleet struct {
	mu           sync.Mutex
	relays       map[*Relay]struct{}
	highlighting bool
}

func NewFleet(highlighting bool) *Fleet {
	return &Fleet{relays: make(map[*Relay]struct{}), highlighting: highlighting}
}

// Add registers r and applies the current setting to it.
func (f *Fleet) Add(r *Relay) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.relays[r] = struct{}{}
	r.SetHighlighting(f.highlighting)
}

func (f *Fleet) Remove(r *Relay) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.relays, r)
}

func (f *Fleet) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.relays)
}

func (f *Fleet) Highlighting() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.highlighting
}

func (f *Fleet) SetHighlighting(enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.highlighting = enabled
	for r := range f.relays {
		r.SetHighlighting(enabled)
	}
}

// Follow applies the settings carried by aggregator updates until updates
// closes or ctx ends.
func (f *Fleet) Follow(ctx context.Context, updates <-chan types.Update) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			if u.Kind == types.UpdateSettings && u.Highlighting != nil {
				f.SetHighlighting(*u.Highlighting)
			}
		}
	}
}
