package cdp

import (
	"sort"
	"sync"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/dgnsrekt/phx_devtools/internal/storage"
	"github.com/dgnsrekt/phx_devtools/internal/types"
)

// TabRegistry maps CDP target IDs to the metadata of attached tabs.
type TabRegistry struct {
	tabs map[target.ID]*types.TabInfo
	now  func() time.Time
	mu   sync.RWMutex
}

func NewTabRegistry() *TabRegistry {
	return &TabRegistry{tabs: make(map[target.ID]*types.TabInfo), now: time.Now}
}

// Register records a tab or, when it is already known, its new URL.
func (r *TabRegistry) Register(targetID target.ID, url string) (types.TabInfo, error) {
	pathSegment, err := storage.TransformURLToPathSegment(url)
	if err != nil {
		return types.TabInfo{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.tabs[targetID]
	if !ok {
		info = &types.TabInfo{
			TargetID:   string(targetID),
			BrowserID:  storage.BrowserIDFromTargetID(string(targetID)),
			AttachedAt: r.now(),
		}
		r.tabs[targetID] = info
	} else if info.URL != url {
		info.Navigations++
	}
	info.URL = url
	info.PathSegment = pathSegment
	return *info, nil
}

func (r *TabRegistry) Get(targetID target.ID) (types.TabInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.tabs[targetID]
	if !ok {
		return types.TabInfo{}, false
	}
	return *info, true
}

// List returns the registered tabs in attach order.
func (r *TabRegistry) List() []types.TabInfo {
	r.mu.RLock()
	out := make([]types.TabInfo, 0, len(r.tabs))
	for _, info := range r.tabs {
		out = append(out, *info)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].AttachedAt.Equal(out[j].AttachedAt) {
			return out[i].TargetID < out[j].TargetID
		}
		return out[i].AttachedAt.Before(out[j].AttachedAt)
	})
	return out
}

func (r *TabRegistry) Remove(targetID target.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tabs, targetID)
}

func (r *TabRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tabs)
}
