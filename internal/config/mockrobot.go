package config

import "time"

// MockRobotConfig holds configuration for the mock robot gateway.
type MockRobotConfig struct {
	BindAddr string
	LogLevel string
	LogFile  string

	TelemetryInterval time.Duration
	FrameInterval     time.Duration
	InitialBattery    float64

	FrameWidth  int
	FrameHeight int
	JPEGQuality int
}

// LoadMockRobot reads mock robot configuration from environment variables.
func LoadMockRobot() (*MockRobotConfig, error) {
	loadDotEnv()

	cfg := &MockRobotConfig{
		BindAddr:          getEnvOrDefault("MOCKROBOT_BIND_ADDR", "127.0.0.1:5000"),
		LogLevel:          getEnvOrDefault("MOCKROBOT_LOG_LEVEL", "info"),
		LogFile:           getEnvOrDefault("MOCKROBOT_LOG_FILE", "logs/mockrobot.log"),
		TelemetryInterval: getEnvMillisOrDefault("MOCKROBOT_TELEMETRY_INTERVAL_MS", 2*time.Second),
		FrameInterval:     getEnvMillisOrDefault("MOCKROBOT_FRAME_INTERVAL_MS", 100*time.Millisecond),
		InitialBattery:    getEnvFloatOrDefault("MOCKROBOT_INITIAL_BATTERY", 100),
		FrameWidth:        getEnvIntOrDefault("MOCKROBOT_FRAME_WIDTH", 320),
		FrameHeight:       getEnvIntOrDefault("MOCKROBOT_FRAME_HEIGHT", 240),
		JPEGQuality:       getEnvIntOrDefault("MOCKROBOT_JPEG_QUALITY", 60),
	}
	if cfg.JPEGQuality < 1 || cfg.JPEGQuality > 100 {
		cfg.JPEGQuality = 60
	}
	return cfg, nil
}
