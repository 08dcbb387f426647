package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ConsoleConfig holds configuration for the operator console service.
type ConsoleConfig struct {
	WSURL string

	BindAddr         string
	PortCandidates   []string
	PortAutoFallback bool

	LogLevel string
	LogFile  string

	LogCapacity int
	PingTimeout time.Duration
	DialTimeout time.Duration

	JournalDir    string
	JournalMaxMB  int
	PanoramaDir   string
	FleetDBPath   string
	EnableMetrics bool
}

// LoadConsole reads console configuration from environment variables.
func LoadConsole() (*ConsoleConfig, error) {
	loadDotEnv()

	cfg := &ConsoleConfig{
		WSURL:            getFirstEnvOrDefault([]string{"CONSOLE_WS_URL", "NEXT_PUBLIC_WS_URL"}, "ws://localhost:5000/ws"),
		BindAddr:         getEnvOrDefault("CONSOLE_BIND_ADDR", "127.0.0.1:8190"),
		PortCandidates:   getEnvListOrDefault("CONSOLE_PORT_CANDIDATES", []string{"127.0.0.1:8191", "127.0.0.1:8192", "127.0.0.1:8193"}),
		PortAutoFallback: getEnvBoolOrDefault("CONSOLE_PORT_AUTO_FALLBACK", true),
		LogLevel:         strings.ToLower(getEnvOrDefault("CONSOLE_LOG_LEVEL", "info")),
		LogFile:          getEnvOrDefault("CONSOLE_LOG_FILE", "logs/console.log"),
		LogCapacity:      getEnvIntOrDefault("CONSOLE_LOG_CAPACITY", 50),
		PingTimeout:      getEnvMillisOrDefault("CONSOLE_PING_TIMEOUT_MS", 10*time.Second),
		DialTimeout:      getEnvMillisOrDefault("CONSOLE_DIAL_TIMEOUT_MS", 10*time.Second),
		JournalDir:       getEnvOrDefault("CONSOLE_JOURNAL_DIR", "./journal"),
		JournalMaxMB:     getEnvIntOrDefault("CONSOLE_JOURNAL_MAX_MB", 50),
		PanoramaDir:      getEnvOrDefault("CONSOLE_PANORAMA_DIR", "./panoramas"),
		FleetDBPath:      getEnvOrDefault("CONSOLE_FLEET_DB", "./fleet.db"),
		EnableMetrics:    getEnvBoolOrDefault("CONSOLE_METRICS", true),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that would otherwise fail only at first connect.
func (c *ConsoleConfig) Validate() error {
	u, err := url.Parse(c.WSURL)
	if err != nil {
		return fmt.Errorf("config: ws url %q: %w", c.WSURL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("config: ws url %q must use ws:// or wss://", c.WSURL)
	}
	if c.LogCapacity < 1 {
		c.LogCapacity = 50
	}
	if c.PingTimeout < time.Second {
		c.PingTimeout = time.Second
	}
	return nil
}
