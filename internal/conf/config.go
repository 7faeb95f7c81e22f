// Package conf loads, validates and persists sigscope settings.
package conf

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/sigscope/sigscope/internal/logger"
	"github.com/sigscope/sigscope/internal/secrets"
)

//go:embed config.yaml
var configFiles embed.FS

// MainSettings holds process-wide options.
type MainSettings struct {
	Name      string // instance name, used as MQTT client id prefix and in notices
	Debug     bool   // true to force debug logging
	Autostart bool   // start capture as soon as the process is up
}

// ProfileSettings is the capture profile the session starts from.
type ProfileSettings struct {
	Label      string             // human readable profile name
	Type       string             // "sdr" for a live (simulated) device, "file" for raw replay
	Device     string             // device identifier for sdr profiles
	Path       string             // raw capture path for file profiles
	SampleRate uint32             // samples per second
	Frequency  float64            // center frequency in Hz
	LNB        float64            // LNB offset in Hz
	Gains      map[string]float64 // gain element name to dB
	Antenna    string             // antenna port
	Bandwidth  float64            // front-end bandwidth in Hz, 0 = sample rate
	Loop       bool               // restart file replay at EOF instead of ending the stream
}

// SourceSettings mirrors the source panel.
type SourceSettings struct {
	DCRemove     bool
	IQReverse    bool
	AGC          bool
	Throttle     bool   // enable throttling of file replay
	ThrottleRate uint32 // samples per second when throttling
	Record       bool   // record raw samples while running
	RecordPath   string // directory for capture files
}

// AudioSettings mirrors the audio panel.
type AudioSettings struct {
	Enabled    bool
	Device     string  // playback device name, empty for default
	SampleRate uint32  // requested playback rate
	Cutoff     float64 // low-pass cutoff in Hz
	Volume     float64 // 0..100
	Demod      string  // am, fm, usb or lsb
	BufferSize int     // playback buffer in samples, watermark is half of it
}

// InspectorSettings mirrors the inspector panel.
type InspectorSettings struct {
	Class     string  // inspector class requested on open, e.g. "psk"
	Bandwidth float64 // channel bandwidth in Hz
}

// SpectrumSettings holds display conventions and the initial cursor.
type SpectrumSettings struct {
	Headroom         float64 // log units added above the frame maximum
	Cursor           float64 // initial cursor LO relative to center, Hz
	DisplayBandwidth float64 // initial display bandwidth, Hz
}

// LimitsSettings caps rates negotiated at start.
type LimitsSettings struct {
	MaxSampleRate           uint32 // sdr profiles above this trigger the clamp policy
	AudioInspectorBandwidth uint32 // upper bound for the audio inspector rate
	ClampPolicy             string // accept, keep or abort
}

// SaverSettings configures the raw capture writer.
type SaverSettings struct {
	BufferSize   int           // ring buffer size in bytes
	ReportPeriod time.Duration // rate report interval
	MinFreeBytes uint64        // refuse to open a capture file below this much free space
}

// AnalyzerSettings configures the built-in simulated analyzer.
type AnalyzerSettings struct {
	FFTSize    int           // PSD frame length
	PSDRate    float64       // PSD frames per second
	ChunkSize  int           // samples per producer iteration
	ToneOffset float64       // simulated carrier offset from center, Hz
	ToneLevel  float64       // carrier amplitude
	NoiseLevel float64       // noise amplitude
	HaltDelay  time.Duration // simulated halt latency
}

// APISettings configures the control HTTP API.
type APISettings struct {
	Enabled     bool
	Listen      string  // host:port
	StreamRate  float64 // max spectrum frames per second per stream client
	StreamBurst int
}

// MQTTSettings configures the MQTT publisher.
type MQTTSettings struct {
	Enabled      bool
	Broker       string // tcp://host:1883
	ClientID     string
	Username     string
	Password     string // may reference ${ENV_VAR}
	PasswordFile string // read Password from this file instead
	TopicPrefix  string
	QoS          byte
	Retain       bool
}

// TelemetrySettings configures error reporting.
type TelemetrySettings struct {
	Enabled       bool
	SentryDSN     string
	SentryDSNFile string
}

// MonitorSettings configures free space monitoring of the record directory.
type MonitorSettings struct {
	Enabled        bool
	Interval       time.Duration // check period
	Warning        float64       // used space percent raising a warning
	Critical       float64       // used space percent raising a critical notice
	Hysteresis     float64       // percent below a threshold before recovery
	ResendInterval time.Duration // repeat period while critical
}

// EventsSettings configures the internal event bus.
type EventsSettings struct {
	BufferSize int
	Workers    int
}

// Settings is the root of the configuration tree.
type Settings struct {
	Main      MainSettings
	Logging   logger.LoggingConfig
	Profile   ProfileSettings
	Source    SourceSettings
	Audio     AudioSettings
	Inspector InspectorSettings
	Spectrum  SpectrumSettings
	Limits    LimitsSettings
	Saver     SaverSettings
	Analyzer  AnalyzerSettings
	API       APISettings
	MQTT      MQTTSettings
	Telemetry TelemetrySettings
	Monitor   MonitorSettings
	Events    EventsSettings
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration into a fresh Settings and makes it current.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := resolveSecrets(settings); err != nil {
		return nil, fmt.Errorf("error resolving secrets: %w", err)
	}

	if settings.Main.Debug {
		settings.Logging.DefaultLevel = string(logger.LogLevelDebug)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper registers defaults and env bindings, then reads the config file.
// A config file given through viper.SetConfigFile takes precedence over search paths.
func initViper() error {
	setDefaultConfig()

	if err := bindEnvVars(); err != nil {
		GetLogger().Warn("environment configuration issues", logger.Error(err))
	}

	if viper.ConfigFileUsed() == "" {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")

		configPaths, err := GetDefaultConfigPaths()
		if err != nil {
			return fmt.Errorf("error getting default config paths: %w", err)
		}
		for _, path := range configPaths {
			viper.AddConfigPath(path)
		}
	}

	err := viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return createDefaultConfig()
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes the embedded config to the first default path and reads it back.
func createDefaultConfig() error {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	configPath := filepath.Join(configPaths[0], "config.yaml")

	defaultConfig, err := getDefaultConfig()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	if err := os.WriteFile(configPath, defaultConfig, 0o644); err != nil { //nolint:gosec // config is not secret until the operator edits it
		return fmt.Errorf("error writing default config file: %w", err)
	}

	GetLogger().Info("created default config file", logger.String("path", configPath))
	viper.SetConfigFile(configPath)
	return viper.ReadInConfig()
}

// getDefaultConfig returns the embedded default config.yaml.
func getDefaultConfig() ([]byte, error) {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return nil, fmt.Errorf("error reading embedded config: %w", err)
	}
	return data, nil
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// SaveYAMLConfig writes settings to configPath atomically.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName)

	if _, err := tempFile.Write(yamlData); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := moveFile(tempFileName, configPath); err != nil {
		return fmt.Errorf("error moving config file into place: %w", err)
	}

	return nil
}

// MarshalYAML renders settings as YAML with secrets masked.
func MarshalYAML(settings *Settings) ([]byte, error) {
	masked := *settings
	if masked.MQTT.Password != "" {
		masked.MQTT.Password = "********"
	}
	if masked.Telemetry.SentryDSN != "" {
		masked.Telemetry.SentryDSN = "********"
	}
	return yaml.Marshal(&masked)
}

// resolveSecrets replaces credential settings with their file or environment
// backed values. Disabled sections are left alone.
func resolveSecrets(settings *Settings) error {
	if settings.MQTT.Enabled {
		pw, err := secrets.Resolve(settings.MQTT.PasswordFile, settings.MQTT.Password)
		if err != nil {
			return fmt.Errorf("mqtt.password: %w", err)
		}
		settings.MQTT.Password = pw
	}
	if settings.Telemetry.Enabled {
		dsn, err := secrets.Resolve(settings.Telemetry.SentryDSNFile, settings.Telemetry.SentryDSN)
		if err != nil {
			return fmt.Errorf("telemetry.sentrydsn: %w", err)
		}
		settings.Telemetry.SentryDSN = dsn
	}
	return nil
}
