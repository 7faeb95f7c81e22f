// env.go - environment variable configuration and validation
package conf

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns all environment variable bindings with validation
func getEnvBindings() []envBinding {
	return []envBinding{
		{"main.debug", "SIGSCOPE_DEBUG", validateEnvBool},
		{"main.autostart", "SIGSCOPE_AUTOSTART", validateEnvBool},

		{"profile.type", "SIGSCOPE_PROFILE_TYPE", validateEnvProfileType},
		{"profile.path", "SIGSCOPE_PROFILE_PATH", nil},
		{"profile.samplerate", "SIGSCOPE_PROFILE_SAMPLERATE", validateEnvPositiveInt},
		{"profile.frequency", "SIGSCOPE_PROFILE_FREQUENCY", validateEnvFloat},

		{"source.record", "SIGSCOPE_SOURCE_RECORD", validateEnvBool},
		{"source.recordpath", "SIGSCOPE_SOURCE_RECORDPATH", nil},

		{"audio.enabled", "SIGSCOPE_AUDIO_ENABLED", validateEnvBool},
		{"audio.device", "SIGSCOPE_AUDIO_DEVICE", nil},

		{"api.listen", "SIGSCOPE_API_LISTEN", validateEnvListen},

		{"mqtt.enabled", "SIGSCOPE_MQTT_ENABLED", validateEnvBool},
		{"mqtt.broker", "SIGSCOPE_MQTT_BROKER", validateEnvBrokerURL},
		{"mqtt.username", "SIGSCOPE_MQTT_USERNAME", nil},
		{"mqtt.password", "SIGSCOPE_MQTT_PASSWORD", nil},
		{"mqtt.passwordfile", "SIGSCOPE_MQTT_PASSWORD_FILE", nil},

		{"telemetry.enabled", "SIGSCOPE_TELEMETRY_ENABLED", validateEnvBool},
		{"telemetry.sentrydsn", "SIGSCOPE_SENTRY_DSN", nil},
		{"telemetry.sentrydsnfile", "SIGSCOPE_SENTRY_DSN_FILE", nil},
	}
}

// bindEnvVars sets up environment variable bindings with validation (internal)
func bindEnvVars() error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate == nil {
			continue
		}
		if envValue := os.Getenv(binding.EnvVar); envValue != "" {
			if err := binding.Validate(envValue); err != nil {
				warnings = append(warnings, fmt.Sprintf("invalid %s value %q: %v", binding.EnvVar, envValue, err))
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}

	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true/false, 1/0, t/f")
	}
	return nil
}

func validateEnvFloat(value string) error {
	if _, err := strconv.ParseFloat(value, 64); err != nil {
		return fmt.Errorf("not a number: %w", err)
	}
	return nil
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return fmt.Errorf("not an unsigned integer: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("must be greater than zero")
	}
	return nil
}

func validateEnvProfileType(value string) error {
	switch value {
	case ProfileTypeSDR, ProfileTypeFile:
		return nil
	}
	return fmt.Errorf("must be one of: %s, %s", ProfileTypeSDR, ProfileTypeFile)
}

func validateEnvListen(value string) error {
	if _, _, err := net.SplitHostPort(value); err != nil {
		return fmt.Errorf("expected host:port: %w", err)
	}
	return nil
}

func validateEnvBrokerURL(value string) error {
	u, err := url.Parse(value)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "tcp", "ssl", "tls", "ws", "wss", "mqtt", "mqtts":
	default:
		return fmt.Errorf("unsupported broker scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("broker host is empty")
	}
	return nil
}
