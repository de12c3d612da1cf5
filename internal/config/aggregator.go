package config

import (
	"fmt"
	"strings"
)

// AggregatorConfig configures cmd/aggregator.
type AggregatorConfig struct {
	BindAddr         string
	PortCandidates   []string
	PortAutoFallback bool

	MaxMessages  int
	Highlighting bool

	// StoreBackend is "file", "sqlite" or "memory".
	StoreBackend string
	StorePath    string
	// RestoreOnStart keeps the stored collections of the previous run.
	// Otherwise they are reset at start.
	RestoreOnStart bool

	ArchiveEnabled       bool
	ArchiveDir           string
	ArchiveBufferSize    int
	ArchiveMaxFileSizeMB int

	LogLevel string
	LogFile  string
}

// LoadAggregator reads aggregator configuration from environment variables.
func LoadAggregator() (*AggregatorConfig, error) {
	loadDotEnv()

	cfg := &AggregatorConfig{
		BindAddr:             getEnvOrDefault("PHX_AGGREGATOR_BIND_ADDR", "127.0.0.1:4010"),
		PortCandidates:       getEnvListOrDefault("PHX_AGGREGATOR_PORT_CANDIDATES", []string{"127.0.0.1:4011", "127.0.0.1:4012", "127.0.0.1:4013"}),
		PortAutoFallback:     getEnvBoolOrDefault("PHX_AGGREGATOR_PORT_AUTO_FALLBACK", true),
		MaxMessages:          getEnvIntOrDefault("PHX_MAX_MESSAGES", 10000),
		Highlighting:         getEnvBoolOrDefault("PHX_HIGHLIGHTING", true),
		StoreBackend:         strings.ToLower(getEnvOrDefault("PHX_STORE_BACKEND", "file")),
		StorePath:            getEnvOrDefault("PHX_STORE_PATH", "./phx_data/state"),
		RestoreOnStart:       getEnvBoolOrDefault("PHX_RESTORE_ON_START", false),
		ArchiveEnabled:       getEnvBoolOrDefault("PHX_ARCHIVE_ENABLED", false),
		ArchiveDir:           getEnvOrDefault("PHX_ARCHIVE_DIR", "./phx_data/archive"),
		ArchiveBufferSize:    getEnvIntOrDefault("PHX_ARCHIVE_BUFFER_SIZE", 5000),
		ArchiveMaxFileSizeMB: getEnvIntOrDefault("PHX_ARCHIVE_MAX_FILE_SIZE_MB", 200),
		LogLevel:             strings.ToLower(getEnvOrDefault("PHX_AGGREGATOR_LOG_LEVEL", "info")),
		LogFile:              getEnvOrDefault("PHX_AGGREGATOR_LOG_FILE", "logs/aggregator.log"),
	}

	if cfg.MaxMessages < 1 {
		return nil, fmt.Errorf("config: PHX_MAX_MESSAGES must be positive, got %d", cfg.MaxMessages)
	}
	switch cfg.StoreBackend {
	case "file", "sqlite", "memory":
	default:
		return nil, fmt.Errorf("config: unknown PHX_STORE_BACKEND %q", cfg.StoreBackend)
	}
	return cfg, nil
}
