// conf/validate.go

package conf

import (
	"fmt"
	"net"
	"slices"
	"strings"
)

// Profile types
const (
	ProfileTypeSDR  = "sdr"
	ProfileTypeFile = "file"
)

// Clamp policies for sample rates above limits.maxsamplerate
const (
	ClampPolicyAccept = "accept"
	ClampPolicyKeep   = "keep"
	ClampPolicyAbort  = "abort"
)

var validDemods = []string{"am", "fm", "usb", "lsb"}

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation errors: %s", strings.Join(ve.Errors, "; "))
}

// ValidateSettings validates the entire Settings struct and reports every problem found.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	validators := []func(*Settings) error{
		func(s *Settings) error { return validateProfileSettings(&s.Profile) },
		func(s *Settings) error { return validateSourceSettings(&s.Source) },
		func(s *Settings) error { return validateAudioSettings(&s.Audio) },
		func(s *Settings) error { return validateLimitsSettings(&s.Limits) },
		func(s *Settings) error { return validateSaverSettings(&s.Saver) },
		func(s *Settings) error { return validateAnalyzerSettings(&s.Analyzer) },
		func(s *Settings) error { return validateAPISettings(&s.API) },
		func(s *Settings) error { return validateMQTTSettings(&s.MQTT) },
		func(s *Settings) error { return validateMonitorSettings(&s.Monitor) },
	}
	for _, validate := range validators {
		if err := validate(settings); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

// validateProfileSettings checks structural validity only. A profile without a
// source is a runtime configuration error reported by the session on start.
func validateProfileSettings(p *ProfileSettings) error {
	var errs []string

	if p.Type != "" && p.Type != ProfileTypeSDR && p.Type != ProfileTypeFile {
		errs = append(errs, fmt.Sprintf("profile.type must be %q or %q", ProfileTypeSDR, ProfileTypeFile))
	}
	if p.SampleRate == 0 {
		errs = append(errs, "profile.samplerate must be greater than zero")
	}
	if p.Bandwidth < 0 {
		errs = append(errs, "profile.bandwidth must not be negative")
	}

	return joinErrors(errs)
}

func validateSourceSettings(s *SourceSettings) error {
	if s.Throttle && s.ThrottleRate == 0 {
		return fmt.Errorf("source.throttlerate must be greater than zero when throttling")
	}
	if s.Record && s.RecordPath == "" {
		return fmt.Errorf("source.recordpath is required when recording")
	}
	return nil
}

func validateAudioSettings(a *AudioSettings) error {
	var errs []string

	if !slices.Contains(validDemods, strings.ToLower(a.Demod)) {
		errs = append(errs, fmt.Sprintf("audio.demod must be one of %v", validDemods))
	}
	if a.Volume < 0 || a.Volume > 100 {
		errs = append(errs, "audio.volume must be between 0 and 100")
	}
	if a.SampleRate == 0 {
		errs = append(errs, "audio.samplerate must be greater than zero")
	}
	if a.BufferSize < 2 {
		errs = append(errs, "audio.buffersize must be at least 2")
	}

	return joinErrors(errs)
}

func validateLimitsSettings(l *LimitsSettings) error {
	var errs []string

	if l.MaxSampleRate == 0 {
		errs = append(errs, "limits.maxsamplerate must be greater than zero")
	}
	if l.AudioInspectorBandwidth == 0 {
		errs = append(errs, "limits.audioinspectorbandwidth must be greater than zero")
	}
	switch l.ClampPolicy {
	case ClampPolicyAccept, ClampPolicyKeep, ClampPolicyAbort:
	default:
		errs = append(errs, fmt.Sprintf("limits.clamppolicy must be %s, %s or %s",
			ClampPolicyAccept, ClampPolicyKeep, ClampPolicyAbort))
	}

	return joinErrors(errs)
}

func validateSaverSettings(s *SaverSettings) error {
	if s.BufferSize < 1024 {
		return fmt.Errorf("saver.buffersize must be at least 1024 bytes")
	}
	if s.ReportPeriod <= 0 {
		return fmt.Errorf("saver.reportperiod must be positive")
	}
	return nil
}

func validateAnalyzerSettings(a *AnalyzerSettings) error {
	var errs []string

	if a.FFTSize < 2 {
		errs = append(errs, "analyzer.fftsize must be at least 2")
	}
	if a.PSDRate <= 0 {
		errs = append(errs, "analyzer.psdrate must be positive")
	}
	if a.ChunkSize <= 0 {
		errs = append(errs, "analyzer.chunksize must be positive")
	}

	return joinErrors(errs)
}

func validateAPISettings(a *APISettings) error {
	if !a.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(a.Listen); err != nil {
		return fmt.Errorf("api.listen: %w", err)
	}
	if a.StreamRate <= 0 {
		return fmt.Errorf("api.streamrate must be positive")
	}
	return nil
}

func validateMQTTSettings(m *MQTTSettings) error {
	if !m.Enabled {
		return nil
	}
	var errs []string
	if err := validateEnvBrokerURL(m.Broker); err != nil {
		errs = append(errs, fmt.Sprintf("mqtt.broker: %v", err))
	}
	if m.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1 or 2")
	}
	if m.TopicPrefix == "" {
		errs = append(errs, "mqtt.topicprefix is required")
	}
	return joinErrors(errs)
}

func validateMonitorSettings(m *MonitorSettings) error {
	if !m.Enabled {
		return nil
	}
	var errs []string
	if m.Interval <= 0 {
		errs = append(errs, "monitor.interval must be positive")
	}
	if m.Warning <= 0 || m.Warning > 100 || m.Critical <= 0 || m.Critical > 100 {
		errs = append(errs, "monitor thresholds must be within (0, 100]")
	}
	if m.Warning > m.Critical {
		errs = append(errs, "monitor.warning must not exceed monitor.critical")
	}
	if m.Hysteresis < 0 {
		errs = append(errs, "monitor.hysteresis must not be negative")
	}
	return joinErrors(errs)
}

func joinErrors(errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%s", strings.Join(errs, ", "))
}
