package types

import "time"

// TabInfo holds metadata about an inspected browser tab.
type TabInfo struct {
	TargetID    string
	URL         string
	PathSegment string // Transformed URL path, e.g., "live_dashboard"
	BrowserID   string // Short ID from target ID, e.g., "B0D5A8E8"
	AttachedAt  time.Time
	// Navigations counts URL changes seen since attach.
	Navigations int
}
