// Package tuning computes where the audio inspector listens and what it is told.
package tuning

import (
	"fmt"
	"math"
	"strings"
)

// LOEpsilon is the smallest LO change, in Hz, worth sending to the analyzer.
const LOEpsilon = 1e-8

// Demodulator selects the audio demodulation mode.
type Demodulator int

const (
	DemodAM Demodulator = iota
	DemodFM
	DemodUSB
	DemodLSB
)

var demodNames = [...]string{"am", "fm", "usb", "lsb"}

func (d Demodulator) String() string {
	if d < 0 || int(d) >= len(demodNames) {
		return fmt.Sprintf("demod(%d)", int(d))
	}
	return demodNames[d]
}

// WireValue is the demodulator number understood by the analyzer, which counts from one.
func (d Demodulator) WireValue() uint64 {
	return uint64(d) + 1
}

// MarshalText implements encoding.TextMarshaler.
func (d Demodulator) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Demodulator) UnmarshalText(b []byte) error {
	v, err := ParseDemodulator(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// ParseDemodulator accepts am, fm, usb or lsb in any case.
func ParseDemodulator(s string) (Demodulator, error) {
	for i, name := range demodNames {
		if strings.EqualFold(s, name) {
			return Demodulator(i), nil
		}
	}
	return DemodAM, fmt.Errorf("unknown demodulator %q", s)
}

// Bandwidth clamps the display bandwidth to [1, maxBw]. The upper bound wins
// when maxBw is below one.
func Bandwidth(displayBw, maxBw float64) float64 {
	switch {
	case displayBw > maxBw:
		return maxBw
	case displayBw < 1:
		return 1
	default:
		return displayBw
	}
}

// EffectiveLO offsets the cursor by half the bandwidth for single-sideband modes.
func EffectiveLO(cursor, bw float64, demod Demodulator) float64 {
	switch demod {
	case DemodUSB:
		return cursor + 0.5*bw
	case DemodLSB:
		return cursor - 0.5*bw
	default:
		return cursor
	}
}

// Tracker follows the spectrum cursor and remembers the last LO sent to the analyzer.
// It is not safe for concurrent use.
type Tracker struct {
	cursor    float64
	displayBw float64
	maxBw     float64
	demod     Demodulator
	lastLO    float64
}

// NewTracker returns a tracker with no negotiated bandwidth yet.
func NewTracker(cursor, displayBw float64, demod Demodulator) *Tracker {
	return &Tracker{cursor: cursor, displayBw: displayBw, demod: demod}
}

func (t *Tracker) SetCursor(lo float64)           { t.cursor = lo }
func (t *Tracker) SetDisplayBandwidth(bw float64) { t.displayBw = bw }
func (t *Tracker) SetDemod(d Demodulator)         { t.demod = d }

// SetMaxBandwidth records the audio channel bandwidth negotiated on open.
func (t *Tracker) SetMaxBandwidth(bw float64) { t.maxBw = bw }

func (t *Tracker) Cursor() float64          { return t.cursor }
func (t *Tracker) DisplayBandwidth() float64 { return t.displayBw }
func (t *Tracker) Demod() Demodulator       { return t.demod }
func (t *Tracker) MaxBandwidth() float64    { return t.maxBw }
func (t *Tracker) LastLO() float64          { return t.lastLO }

// Bandwidth is the audio inspector bandwidth for the current display bandwidth.
func (t *Tracker) Bandwidth() float64 {
	return Bandwidth(t.displayBw, t.maxBw)
}

// LO is the audio inspector LO for the current cursor, bandwidth and mode.
func (t *Tracker) LO() float64 {
	return EffectiveLO(t.cursor, t.Bandwidth(), t.demod)
}

// Reset marks the current LO as already asserted.
func (t *Tracker) Reset() float64 {
	t.lastLO = t.LO()
	return t.lastLO
}

// Assert returns the LO to send and true when it moved by more than LOEpsilon.
func (t *Tracker) Assert() (float64, bool) {
	lo := t.LO()
	if math.Abs(lo-t.lastLO) <= LOEpsilon {
		return t.lastLO, false
	}
	t.lastLO = lo
	return lo, true
}

// AudioTuning is the audio panel state pushed to the audio inspector.
type AudioTuning struct {
	SampleRate uint32
	Cutoff     float64
	Volume     float64 // 0..100 as shown on the panel
	Demod      Demodulator
}

// Inspector configuration keys for the audio class.
const (
	KeyCutoff     = "audio.cutoff"
	KeyVolume     = "audio.volume"
	KeySampleRate = "audio.sample-rate"
	KeyDemod      = "audio.demodulator"
)

// volumeScale maps panel volume onto the inspector gain.
const volumeScale = 20

// Apply returns a copy of template with the tuning written over it.
func (a AudioTuning) Apply(template map[string]any) map[string]any {
	cfg := make(map[string]any, len(template)+4)
	for k, v := range template {
		cfg[k] = v
	}
	cfg[KeyCutoff] = a.Cutoff
	cfg[KeyVolume] = a.Volume / volumeScale
	cfg[KeySampleRate] = uint64(a.SampleRate)
	cfg[KeyDemod] = a.Demod.WireValue()
	return cfg
}
