package sim

import (
	"math"
	"math/cmplx"

	"github.com/sigscope/sigscope/internal/analyzer"
	"github.com/sigscope/sigscope/internal/tuning"
)

const (
	audioClass = "audio"

	inspectorSpectrumSize = 256
	defaultAudioRate      = 44100
	defaultWatermark      = 512
)

// configTemplate returns the configuration an inspector class reports on open.
func configTemplate(class string) analyzer.Config {
	switch class {
	case audioClass:
		return analyzer.Config{
			tuning.KeyCutoff:     3000.0,
			tuning.KeyVolume:     1.0,
			tuning.KeySampleRate: uint64(defaultAudioRate),
			tuning.KeyDemod:      tuning.DemodFM.WireValue(),
			"audio.squelch":      false,
		}
	default:
		return analyzer.Config{
			class + ".baud":   1200.0,
			"agc.gain":        1.0,
			"equalizer.type":  "none",
			"spectrum.source": "psd",
		}
	}
}

// inspector is the simulator side of an opened inspector.
type inspector struct {
	handle    analyzer.Handle
	id        analyzer.InspectorID
	class     string
	channel   analyzer.Channel
	cfg       analyzer.Config
	watermark int

	phase    float64
	prev     complex128
	outAcc   float64
	pending  []complex64
	baseband []complex64
	spectAcc float64
	spec     *psdEstimator
}

func newInspector(h analyzer.Handle, class string, ch analyzer.Channel) *inspector {
	return &inspector{
		handle:    h,
		class:     class,
		channel:   ch,
		cfg:       configTemplate(class),
		watermark: defaultWatermark,
		prev:      1,
	}
}

func (in *inspector) isAudio() bool { return in.class == audioClass }

// lo is the mixing frequency relative to the capture center.
func (in *inspector) lo() float64 { return in.channel.Center + in.channel.FTune }

// outputRate is the rate samples are delivered at.
func (in *inspector) outputRate(inputRate float64) float64 {
	if in.isAudio() {
		if r, ok := in.cfg[tuning.KeySampleRate].(uint64); ok && r > 0 {
			return float64(r)
		}
		return defaultAudioRate
	}
	bw := in.channel.Bandwidth
	if bw <= 0 || bw > inputRate {
		return inputRate
	}
	return bw
}

func (in *inspector) volume() float64 {
	if v, ok := in.cfg[tuning.KeyVolume].(float64); ok {
		return v
	}
	return 1
}

func (in *inspector) demod() uint64 {
	if d, ok := in.cfg[tuning.KeyDemod].(uint64); ok {
		return d
	}
	return tuning.DemodFM.WireValue()
}

// process mixes x down to the inspector LO and decimates to the output rate.
// It returns a batch of samples once the watermark is reached.
func (in *inspector) process(x []complex64, inputRate float64) []complex64 {
	step := -2 * math.Pi * in.lo() / inputRate
	ratio := in.outputRate(inputRate) / inputRate

	for _, s := range x {
		mixed := complex128(s) * cmplx.Exp(complex(0, in.phase))
		in.phase = math.Mod(in.phase+step, 2*math.Pi)

		in.outAcc += ratio
		if in.outAcc < 1 {
			continue
		}
		in.outAcc--

		var out complex64
		if in.isAudio() {
			out = complex(float32(in.demodulate(mixed)*in.volume()), 0)
		} else {
			out = complex64(mixed)
		}
		in.pending = append(in.pending, out)
		in.baseband = append(in.baseband, complex64(mixed))
	}

	if len(in.baseband) > inspectorSpectrumSize {
		in.baseband = in.baseband[len(in.baseband)-inspectorSpectrumSize:]
	}

	if len(in.pending) < in.watermark {
		return nil
	}
	batch := in.pending
	in.pending = nil
	return batch
}

func (in *inspector) demodulate(x complex128) float64 {
	switch tuning.Demodulator(in.demod() - 1) {
	case tuning.DemodFM:
		d := cmplx.Phase(x * cmplx.Conj(in.prev))
		in.prev = x
		return d / math.Pi
	case tuning.DemodUSB, tuning.DemodLSB:
		return real(x)
	default:
		return cmplx.Abs(x)
	}
}

// spectrum estimates the power spectrum of the recent inspector baseband.
func (in *inspector) spectrum() []float32 {
	if in.spec == nil {
		in.spec = newPSDEstimator(inspectorSpectrumSize)
	}
	return in.spec.estimate(in.baseband)
}
