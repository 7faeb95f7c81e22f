package analyzer

import (
	"maps"

	"github.com/sigscope/sigscope/internal/errors"
)

// SourceType distinguishes live devices from file replay.
type SourceType int

const (
	SourceSDR SourceType = iota
	SourceFile
)

func (t SourceType) String() string {
	if t == SourceFile {
		return "file"
	}
	return "sdr"
}

// MarshalText implements encoding.TextMarshaler.
func (t SourceType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *SourceType) UnmarshalText(b []byte) error {
	v, err := ParseSourceType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ParseSourceType maps a configuration string to a SourceType.
func ParseSourceType(s string) (SourceType, error) {
	switch s {
	case "sdr", "":
		return SourceSDR, nil
	case "file":
		return SourceFile, nil
	}
	return SourceSDR, errors.Newf("unknown source type %q", s).
		Component("analyzer").
		Category(errors.CategoryConfiguration).
		Build()
}

// Profile describes what to capture.
type Profile struct {
	Label      string             `json:"label"`
	Type       SourceType         `json:"type"`
	Device     string             `json:"device,omitempty"`
	Path       string             `json:"path,omitempty"`
	SampleRate uint32             `json:"sample_rate"`
	Frequency  float64            `json:"frequency"`
	LNB        float64            `json:"lnb"`
	Gains      map[string]float64 `json:"gains,omitempty"`
	Antenna    string             `json:"antenna,omitempty"`
	Bandwidth  float64            `json:"bandwidth"`
	Loop       bool               `json:"loop"`
}

// ErrNoSource is returned by Validate for a profile without a device or file.
var ErrNoSource = errors.NewStd("no source defined in profile")

// Validate reports configuration errors that prevent a capture from starting.
func (p *Profile) Validate() error {
	switch {
	case p.Type == SourceSDR && p.Device == "":
		return errors.New(ErrNoSource).
			Component("analyzer").
			Category(errors.CategoryConfiguration).
			Context("source_type", p.Type.String()).
			Build()
	case p.Type == SourceFile && p.Path == "":
		return errors.New(ErrNoSource).
			Component("analyzer").
			Category(errors.CategoryConfiguration).
			Context("source_type", p.Type.String()).
			Build()
	case p.SampleRate == 0:
		return errors.Newf("profile sample rate is zero").
			Component("analyzer").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return nil
}

// Clone returns a deep copy.
func (p Profile) Clone() Profile {
	p.Gains = maps.Clone(p.Gains)
	return p
}
