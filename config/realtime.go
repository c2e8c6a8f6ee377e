package config

import (
	"os"
	"strconv"
	"time"
)

// RealtimeConfig holds client connection and retry configuration.
type RealtimeConfig struct {
	// URL is the websocket endpoint, e.g. "ws://localhost:4000/ws".
	URL string

	// MaxAttempts is the number of consecutive failed connect attempts
	// before the client gives up and waits for a manual reconnect.
	MaxAttempts int

	// InitialDelay is the backoff delay after the first failure.
	InitialDelay time.Duration

	// Multiplier grows the delay after each further failure.
	Multiplier float64

	// MaxDelay caps the backoff delay.
	MaxDelay time.Duration

	// WriteTimeout bounds a single websocket write.
	WriteTimeout time.Duration

	// HandshakeTimeout bounds the websocket dial.
	HandshakeTimeout time.Duration

	// PingInterval is how often the client pings the server to verify
	// the connection is still live. Zero disables the heartbeat.
	PingInterval time.Duration

	// PongWait is the read deadline refreshed on each pong. A half-open
	// connection surfaces as a read error once it expires. Must exceed
	// PingInterval.
	PongWait time.Duration
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *RealtimeConfig {
	return &RealtimeConfig{
		URL:              "ws://localhost:4000/ws",
		MaxAttempts:      5,
		InitialDelay:     1 * time.Second,
		Multiplier:       2,
		MaxDelay:         30 * time.Second,
		WriteTimeout:     10 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     30 * time.Second,
		PongWait:         45 * time.Second,
	}
}

// FromEnv loads client configuration from environment variables, falling
// back to defaults for any missing values.
func FromEnv() *RealtimeConfig {
	cfg := DefaultConfig()

	if url := os.Getenv("TASKHIVE_WS_URL"); url != "" {
		cfg.URL = url
	}
	if s := os.Getenv("TASKHIVE_WS_MAX_ATTEMPTS"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			cfg.MaxAttempts = n
		}
	}
	if s := os.Getenv("TASKHIVE_WS_INITIAL_DELAY_MS"); s != "" {
		if ms, err := strconv.Atoi(s); err == nil && ms > 0 {
			cfg.InitialDelay = time.Duration(ms) * time.Millisecond
		}
	}
	if s := os.Getenv("TASKHIVE_WS_MAX_DELAY_MS"); s != "" {
		if ms, err := strconv.Atoi(s); err == nil && ms > 0 {
			cfg.MaxDelay = time.Duration(ms) * time.Millisecond
		}
	}
	return cfg
}
