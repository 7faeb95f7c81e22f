// Package mqtt publishes session state to an MQTT broker.
package mqtt

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/sigscope/sigscope/internal/conf"
	"github.com/sigscope/sigscope/internal/errors"
	"github.com/sigscope/sigscope/internal/logger"
)

// Client defines the MQTT operations the publisher needs.
type Client interface {
	// Connect attempts to connect to the MQTT broker.
	Connect(ctx context.Context) error

	// Publish sends payload to topic using the configured QoS and retain flag.
	Publish(ctx context.Context, topic string, payload []byte) error

	// IsConnected returns true if the client is currently connected to the MQTT broker.
	IsConnected() bool

	// Disconnect closes the connection to the MQTT broker.
	Disconnect()
}

// Config holds the configuration for the MQTT client.
type Config struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
	Retain      bool

	ReconnectCooldown time.Duration
	ConnectTimeout    time.Duration
	PublishTimeout    time.Duration
	DisconnectTimeout time.Duration
}

// DefaultConfig returns a Config with reasonable default values
func DefaultConfig() Config {
	return Config{
		ClientID:          "sigscope",
		TopicPrefix:       "sigscope",
		ReconnectCooldown: 5 * time.Second,
		ConnectTimeout:    30 * time.Second,
		PublishTimeout:    10 * time.Second,
		DisconnectTimeout: 250 * time.Millisecond,
	}
}

// ConfigFromSettings builds a client configuration from application settings.
// The instance name is the client id fallback.
func ConfigFromSettings(settings *conf.Settings) Config {
	cfg := DefaultConfig()
	m := settings.MQTT
	cfg.Broker = m.Broker
	cfg.Username = m.Username
	cfg.Password = m.Password
	cfg.QoS = m.QoS
	cfg.Retain = m.Retain
	switch {
	case m.ClientID != "":
		cfg.ClientID = m.ClientID
	case settings.Main.Name != "":
		cfg.ClientID = settings.Main.Name
	}
	if m.TopicPrefix != "" {
		cfg.TopicPrefix = strings.TrimSuffix(m.TopicPrefix, "/")
	}
	return cfg
}

// Validate checks the broker address and delivery options.
func (c *Config) Validate() error {
	if c.Broker == "" {
		return configError("broker address is required")
	}
	u, err := url.Parse(c.Broker)
	if err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryConfiguration).
			Context("broker", c.Broker).
			Build()
	}
	switch u.Scheme {
	case "tcp", "mqtt", "ssl", "tls", "mqtts", "ws", "wss":
	default:
		return configError("unsupported broker scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return configError("broker %q has no host", c.Broker)
	}
	if c.QoS > 2 {
		return configError("qos must be 0, 1 or 2, got %d", c.QoS)
	}
	if c.ClientID == "" {
		return configError("client id is required")
	}
	return nil
}

func configError(format string, args ...any) error {
	return errors.Newf(format, args...).
		Component("mqtt").
		Category(errors.CategoryConfiguration).
		Build()
}

// GetLogger returns the mqtt module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("mqtt")
}
