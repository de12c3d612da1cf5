package config

import (
	"fmt"
	"strings"
	"time"
)

// RelayConfig configures cmd/relay.
type RelayConfig struct {
	// CDP connection settings
	CDPAddress string
	CDPPort    int

	// Tab matching and behavior
	TabURLFilter   string
	ReloadOnAttach bool

	// Browser launch, used when LaunchBrowser is set
	LaunchBrowser bool
	StartURL      string
	ProfileDir    string

	// Capture behavior
	CaptureHTTP bool
	CaptureWS   bool

	// Payload safety limits
	HTTPMaxBodyBytes int
	WSMaxFrameBytes  int

	AggregatorURL     string
	AggregatorTimeout time.Duration
	MaxAttempts       int
	// MarkersFile optionally overrides the classifier markers (YAML).
	MarkersFile string

	LogLevel string
	LogFile  string
}

// LoadRelay reads relay configuration from environment variables.
func LoadRelay() (*RelayConfig, error) {
	loadDotEnv()

	cfg := &RelayConfig{
		CDPAddress:        getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:           getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9222),
		TabURLFilter:      getEnvOrDefault("PHX_TAB_URL_FILTER", "localhost:4000"),
		ReloadOnAttach:    getEnvBoolOrDefault("PHX_RELOAD_ON_ATTACH", false),
		LaunchBrowser:     getEnvBoolOrDefault("PHX_LAUNCH_BROWSER", false),
		StartURL:          getEnvOrDefault("PHX_START_URL", "http://localhost:4000"),
		ProfileDir:        getEnvOrDefault("PHX_BROWSER_PROFILE_DIR", "./phx_data/browser"),
		CaptureHTTP:       getEnvBoolOrDefault("PHX_CAPTURE_HTTP", true),
		CaptureWS:         getEnvBoolOrDefault("PHX_CAPTURE_WS", true),
		HTTPMaxBodyBytes:  getEnvIntOrDefault("PHX_HTTP_MAX_BODY_BYTES", 1024*1024),
		WSMaxFrameBytes:   getEnvIntOrDefault("PHX_WS_MAX_FRAME_BYTES", 1024*1024),
		AggregatorURL:     strings.TrimRight(getEnvOrDefault("PHX_AGGREGATOR_URL", "http://127.0.0.1:4010"), "/"),
		AggregatorTimeout: time.Duration(getEnvIntOrDefault("PHX_AGGREGATOR_TIMEOUT_MS", 5000)) * time.Millisecond,
		MaxAttempts:       getEnvIntOrDefault("PHX_AGGREGATOR_MAX_ATTEMPTS", 5),
		MarkersFile:       getEnvOrDefault("PHX_MARKERS_FILE", ""),
		LogLevel:          strings.ToLower(getEnvOrDefault("PHX_RELAY_LOG_LEVEL", "info")),
		LogFile:           getEnvOrDefault("PHX_RELAY_LOG_FILE", "logs/relay.log"),
	}

	if !cfg.CaptureHTTP && !cfg.CaptureWS {
		return nil, fmt.Errorf("config: PHX_CAPTURE_HTTP and PHX_CAPTURE_WS are both disabled")
	}
	if cfg.AggregatorTimeout < 100*time.Millisecond {
		cfg.AggregatorTimeout = 100 * time.Millisecond
	}
	return cfg, nil
}

// GetCDPURL returns the full CDP HTTP endpoint used by chromedp remote allocator.
func (c *RelayConfig) GetCDPURL() string {
	return fmt.Sprintf("http://%s:%d", c.CDPAddress, c.CDPPort)
}

// PortURL returns the aggregator's WebSocket port endpoint.
func (c *RelayConfig) PortURL() string {
	return PortURL(c.AggregatorURL)
}

// PanelConfig holds the defaults of the panel CLI flags.
type PanelConfig struct {
	AggregatorURL string
	TabID         int
	LogLevel      string
}

// LoadPanel reads panel flag defaults from environment variables.
func LoadPanel() *PanelConfig {
	loadDotEnv()
	return &PanelConfig{
		AggregatorURL: strings.TrimRight(getEnvOrDefault("PHX_AGGREGATOR_URL", "http://127.0.0.1:4010"), "/"),
		TabID:         getEnvIntOrDefault("PHX_PANEL_TAB_ID", 0),
		LogLevel:      strings.ToLower(getEnvOrDefault("PHX_PANEL_LOG_LEVEL", "warn")),
	}
}

// PortURL maps an aggregator base URL onto its /ws endpoint.
func PortURL(baseURL string) string {
	u := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws"
}
