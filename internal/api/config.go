// Package api serves the control HTTP API of the capture session and the
// websocket event stream consumed by user interfaces.
package api

import (
	"fmt"
	"net"
	"time"

	"github.com/sigscope/sigscope/internal/conf"
	"github.com/sigscope/sigscope/internal/logger"
)

// GetLogger returns the api package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("api")
}

// Default constants for the HTTP server.
const (
	DefaultListen          = "127.0.0.1:8090"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultBodyLimit       = "1M"
	DefaultStreamRate      = 10.0
	DefaultStreamBurst     = 2
)

// Config holds the HTTP server configuration.
type Config struct {
	Listen         string   // host:port to bind
	AllowedOrigins []string // CORS allowed origins

	// Timeouts
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	BodyLimit string // Maximum request body size (e.g., "1M")

	// StreamRate caps spectrum frames per second sent to each stream client.
	StreamRate  float64
	StreamBurst int

	Debug bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:          DefaultListen,
		AllowedOrigins:  []string{"*"},
		ReadTimeout:     DefaultReadTimeout,
		WriteTimeout:    DefaultWriteTimeout,
		IdleTimeout:     DefaultIdleTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		BodyLimit:       DefaultBodyLimit,
		StreamRate:      DefaultStreamRate,
		StreamBurst:     DefaultStreamBurst,
	}
}

// ConfigFromSettings creates a Config from the application settings.
func ConfigFromSettings(settings *conf.Settings) *Config {
	cfg := DefaultConfig()
	if settings == nil {
		return cfg
	}
	if settings.API.Listen != "" {
		cfg.Listen = settings.API.Listen
	}
	if settings.API.StreamRate > 0 {
		cfg.StreamRate = settings.API.StreamRate
	}
	if settings.API.StreamBurst > 0 {
		cfg.StreamBurst = settings.API.StreamBurst
	}
	cfg.Debug = settings.Main.Debug
	return cfg
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		return fmt.Errorf("invalid listen address %q: %w", c.Listen, err)
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive")
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("write timeout must be positive")
	}
	if c.StreamRate <= 0 {
		return fmt.Errorf("stream rate must be positive")
	}
	if c.StreamBurst < 1 {
		return fmt.Errorf("stream burst must be at least 1")
	}
	return nil
}
