// Package analyzer defines the boundary to the acquisition engine: the
// control surface the session drives and the messages the engine emits.
package analyzer

import (
	"time"
)

// Handle is an opaque inspector handle issued by the analyzer on open.
type Handle uint32

// InspectorID is the routing tag the session assigns to an opened inspector.
// The analyzer stamps it on every spectrum and samples message of that inspector.
type InspectorID uint32

// RequestID correlates an open request with its OPEN response.
type RequestID uint32

// Channel describes the sub-band an inspector is opened on. Frequencies are
// relative to the capture center.
type Channel struct {
	Center    float64 `json:"center"`    // fc
	Bandwidth float64 `json:"bandwidth"` // bw
	FLow      float64 `json:"f_low"`     // lower edge relative to Center
	FHigh     float64 `json:"f_high"`    // upper edge relative to Center
	FTune     float64 `json:"f_tune"`    // fine tuning offset
}

// Config is an inspector configuration set, keyed by parameter name.
type Config map[string]any

// Clone returns a shallow copy.
func (c Config) Clone() Config {
	if c == nil {
		return nil
	}
	out := make(Config, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Params are the runtime parameters an analyzer is built with and may be
// updated with while running.
type Params struct {
	FFTSize    int           `json:"fft_size"`    // PSD frame length
	PSDRate    float64       `json:"psd_rate"`    // PSD frames per second
	ChunkSize  int           `json:"chunk_size"`  // samples read per producer iteration
	HaltDelay  time.Duration `json:"halt_delay"`  // time between a halt request and the Halted message
	ToneOffset float64       `json:"tone_offset"` // simulated carrier offset from center
	ToneLevel  float64       `json:"tone_level"`  // simulated carrier amplitude
	NoiseLevel float64       `json:"noise_level"` // simulated noise amplitude
}

// BasebandFilter receives raw samples on the producer goroutine. It must not block.
type BasebandFilter func(samples []complex64)

// HookToken identifies an installed baseband filter. A nil *HookToken means
// no filter has been installed on the current analyzer.
type HookToken struct {
	ID uint64
}

// Analyzer is the control surface of a running acquisition engine.
//
// Control calls are requests; their effects are observed through Messages.
// Halt is fire-and-forget and is acknowledged by exactly one Halted message,
// after which the message channel is closed.
type Analyzer interface {
	Messages() <-chan Message
	SampleRate() float64

	Halt()
	Close() error

	SetFrequency(freq, lnb float64) error
	SetGain(name string, value float64) error
	SetAntenna(name string) error
	SetBandwidth(bw float64) error
	SetDCRemove(enabled bool) error
	SetIQReverse(enabled bool) error
	SetAGC(enabled bool) error
	SetThrottle(rate uint32) error
	SetParams(p Params) error

	Open(class string, ch Channel, req RequestID) error
	OpenPrecise(class string, ch Channel, req RequestID) error
	CloseInspector(h Handle, req RequestID) error

	SetInspectorID(h Handle, id InspectorID, req RequestID) error
	SetInspectorWatermark(h Handle, samples int, req RequestID) error
	SetInspectorBandwidth(h Handle, bw float64, req RequestID) error
	SetInspectorFreq(h Handle, lo float64, req RequestID) error
	SetInspectorConfig(h Handle, cfg Config, req RequestID) error

	RegisterBasebandFilter(f BasebandFilter) (*HookToken, error)
}

// Factory builds an analyzer from runtime parameters and a capture profile.
// A failed construction must not leak resources.
type Factory func(params Params, profile Profile) (Analyzer, error)
