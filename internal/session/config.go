package session

import (
	"maps"
	"time"

	"github.com/sigscope/sigscope/internal/analyzer"
	"github.com/sigscope/sigscope/internal/conf"
	"github.com/sigscope/sigscope/internal/errors"
	"github.com/sigscope/sigscope/internal/tuning"
)

// SourceConfig mirrors the source panel.
type SourceConfig struct {
	DCRemove     bool   `json:"dc_remove"`
	IQReverse    bool   `json:"iq_reverse"`
	AGC          bool   `json:"agc"`
	Throttle     bool   `json:"throttle"`
	ThrottleRate uint32 `json:"throttle_rate"`
	Record       bool   `json:"record"`
	RecordDir    string `json:"record_dir"`
}

// AudioConfig mirrors the audio panel.
type AudioConfig struct {
	Enabled    bool               `json:"enabled"`
	Device     string             `json:"device"`
	SampleRate uint32             `json:"sample_rate"`
	Cutoff     float64            `json:"cutoff"`
	Volume     float64            `json:"volume"`
	Demod      tuning.Demodulator `json:"demod"`
	BufferSize int                `json:"buffer_size"`
}

// tuning returns the inspector tuning the panel asks for.
func (a AudioConfig) tuning() tuning.AudioTuning {
	return tuning.AudioTuning{
		SampleRate: a.SampleRate,
		Cutoff:     a.Cutoff,
		Volume:     a.Volume,
		Demod:      a.Demod,
	}
}

// InspectorConfig mirrors the inspector panel.
type InspectorConfig struct {
	Class     string  `json:"class"`
	Bandwidth float64 `json:"bandwidth"`
}

// Limits cap the rates negotiated at start.
type Limits struct {
	MaxSampleRate           uint32
	AudioInspectorBandwidth uint32
}

// WriterConfig configures capture writers.
type WriterConfig struct {
	BufferSize   int
	ReportPeriod time.Duration
	MinFreeBytes uint64
}

// Config is the initial state of a session controller.
type Config struct {
	Profile   analyzer.Profile
	Params    analyzer.Params
	Source    SourceConfig
	Audio     AudioConfig
	Inspector InspectorConfig
	Limits    Limits
	Writer    WriterConfig
	Clamp     ClampPolicy

	Cursor           float64
	DisplayBandwidth float64
	Headroom         float32
}

func (c Config) clone() Config {
	c.Profile = c.Profile.Clone()
	return c
}

// ConfigFromSettings builds a session configuration from loaded settings.
func ConfigFromSettings(s *conf.Settings) (Config, error) {
	if s == nil {
		return Config{}, errors.Newf("settings not loaded").
			Component("session").
			Category(errors.CategoryConfiguration).
			Build()
	}

	srcType, err := analyzer.ParseSourceType(s.Profile.Type)
	if err != nil {
		return Config{}, errors.New(err).
			Component("session").
			Category(errors.CategoryConfiguration).
			Context("setting", "profile.type").
			Build()
	}
	demod, err := tuning.ParseDemodulator(s.Audio.Demod)
	if err != nil {
		return Config{}, errors.New(err).
			Component("session").
			Category(errors.CategoryConfiguration).
			Context("setting", "audio.demod").
			Build()
	}
	clamp, err := ParseClampPolicy(s.Limits.ClampPolicy)
	if err != nil {
		return Config{}, err
	}

	return Config{
		Profile: analyzer.Profile{
			Label:      s.Profile.Label,
			Type:       srcType,
			Device:     s.Profile.Device,
			Path:       s.Profile.Path,
			SampleRate: s.Profile.SampleRate,
			Frequency:  s.Profile.Frequency,
			LNB:        s.Profile.LNB,
			Gains:      maps.Clone(s.Profile.Gains),
			Antenna:    s.Profile.Antenna,
			Bandwidth:  s.Profile.Bandwidth,
			Loop:       s.Profile.Loop,
		},
		Params: analyzer.Params{
			FFTSize:    s.Analyzer.FFTSize,
			PSDRate:    s.Analyzer.PSDRate,
			ChunkSize:  s.Analyzer.ChunkSize,
			HaltDelay:  s.Analyzer.HaltDelay,
			ToneOffset: s.Analyzer.ToneOffset,
			ToneLevel:  s.Analyzer.ToneLevel,
			NoiseLevel: s.Analyzer.NoiseLevel,
		},
		Source: SourceConfig{
			DCRemove:     s.Source.DCRemove,
			IQReverse:    s.Source.IQReverse,
			AGC:          s.Source.AGC,
			Throttle:     s.Source.Throttle,
			ThrottleRate: s.Source.ThrottleRate,
			Record:       s.Source.Record,
			RecordDir:    s.Source.RecordPath,
		},
		Audio: AudioConfig{
			Enabled:    s.Audio.Enabled,
			Device:     s.Audio.Device,
			SampleRate: s.Audio.SampleRate,
			Cutoff:     s.Audio.Cutoff,
			Volume:     s.Audio.Volume,
			Demod:      demod,
			BufferSize: s.Audio.BufferSize,
		},
		Inspector: InspectorConfig{
			Class:     s.Inspector.Class,
			Bandwidth: s.Inspector.Bandwidth,
		},
		Limits: Limits{
			MaxSampleRate:           s.Limits.MaxSampleRate,
			AudioInspectorBandwidth: s.Limits.AudioInspectorBandwidth,
		},
		Writer: WriterConfig{
			BufferSize:   s.Saver.BufferSize,
			ReportPeriod: s.Saver.ReportPeriod,
			MinFreeBytes: s.Saver.MinFreeBytes,
		},
		Clamp:            clamp,
		Cursor:           s.Spectrum.Cursor,
		DisplayBandwidth: s.Spectrum.DisplayBandwidth,
		Headroom:         float32(s.Spectrum.Headroom),
	}, nil
}
