// Package sim implements a simulated analyzer: a tone-plus-noise SDR or a
// raw capture file replayed at its sample rate.
package sim

import (
	"io"
	"maps"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sigscope/sigscope/internal/analyzer"
	"github.com/sigscope/sigscope/internal/errors"
	"github.com/sigscope/sigscope/internal/logger"
)

const (
	messageBuffer = 256
	requestBuffer = 256

	defaultFFTSize   = 1024
	defaultPSDRate   = 25
	defaultChunkSize = 4096
	minTick          = time.Millisecond
)

// ErrHalted is returned for requests made after a halt.
var ErrHalted = errors.NewStd("analyzer halted")

// Analyzer is a simulated acquisition engine. All state is owned by the
// producer goroutine; control calls enqueue requests.
type Analyzer struct {
	profile analyzer.Profile
	rate    float64
	log     logger.Logger

	msgs    chan analyzer.Message
	reqs    chan func()
	haltCh  chan struct{}
	closing chan struct{}
	done    chan struct{}

	haltOnce  sync.Once
	closeOnce sync.Once
	halted    atomic.Bool

	filter  atomic.Pointer[analyzer.BasebandFilter]
	hookSeq atomic.Uint64
	dropped atomic.Uint64

	// producer-owned state
	src        source
	params     analyzer.Params
	psd        *psdEstimator
	psdAcc     float64
	history    []complex64
	frequency  float64
	lnb        float64
	gains      map[string]float64
	antenna    string
	bandwidth  float64
	dcRemove   bool
	iqReverse  bool
	agc        bool
	throttle   uint32
	dcI, dcQ   float64
	inspectors map[analyzer.Handle]*inspector
	nextHandle analyzer.Handle
}

// Option configures the simulator.
type Option func(*Analyzer)

// WithLogger overrides the simulator logger.
func WithLogger(l logger.Logger) Option {
	return func(a *Analyzer) { a.log = l }
}

// NewFactory returns an analyzer.Factory building simulators.
func NewFactory(opts ...Option) analyzer.Factory {
	return func(params analyzer.Params, profile analyzer.Profile) (analyzer.Analyzer, error) {
		a, err := New(params, profile, opts...)
		if err != nil {
			return nil, err
		}
		return a, nil
	}
}

// New builds and starts a simulator for the profile.
func New(params analyzer.Params, profile analyzer.Profile, opts ...Option) (*Analyzer, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	params = withDefaults(params)

	a := &Analyzer{
		profile:    profile.Clone(),
		rate:       float64(profile.SampleRate),
		msgs:       make(chan analyzer.Message, messageBuffer),
		reqs:       make(chan func(), requestBuffer),
		haltCh:     make(chan struct{}),
		closing:    make(chan struct{}),
		done:       make(chan struct{}),
		params:     params,
		psd:        newPSDEstimator(params.FFTSize),
		frequency:  profile.Frequency,
		lnb:        profile.LNB,
		gains:      maps.Clone(profile.Gains),
		antenna:    profile.Antenna,
		bandwidth:  profile.Bandwidth,
		inspectors: make(map[analyzer.Handle]*inspector),
		nextHandle: 1,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.log == nil {
		a.log = logger.Global().Module("analyzer.sim")
	}

	switch profile.Type {
	case analyzer.SourceFile:
		src, err := openFileSource(profile.Path, profile.Loop)
		if err != nil {
			return nil, errors.New(err).
				Component("analyzer.sim").
				Category(errors.CategoryConstruction).
				Context("path", profile.Path).
				Build()
		}
		a.src = src
	default:
		a.src = newToneSource(a.rate, params.ToneOffset, params.ToneLevel, params.NoiseLevel, uint64(time.Now().UnixNano()))
	}

	a.log.Info("simulated analyzer started",
		logger.String("profile", profile.Label),
		logger.String("source", profile.Type.String()),
		logger.Float64("sample_rate", a.rate),
		logger.Float64("frequency", profile.Frequency))

	go a.run()
	return a, nil
}

func withDefaults(p analyzer.Params) analyzer.Params {
	if p.FFTSize <= 0 {
		p.FFTSize = defaultFFTSize
	}
	if p.PSDRate <= 0 {
		p.PSDRate = defaultPSDRate
	}
	if p.ChunkSize <= 0 {
		p.ChunkSize = defaultChunkSize
	}
	return p
}

// Messages implements analyzer.Analyzer.
func (a *Analyzer) Messages() <-chan analyzer.Message { return a.msgs }

// SampleRate implements analyzer.Analyzer.
func (a *Analyzer) SampleRate() float64 { return a.rate }

// Dropped returns the number of data messages dropped because the consumer lagged.
func (a *Analyzer) Dropped() uint64 { return a.dropped.Load() }

// Halt implements analyzer.Analyzer.
func (a *Analyzer) Halt() {
	a.haltOnce.Do(func() {
		a.halted.Store(true)
		close(a.haltCh)
	})
}

// Close implements analyzer.Analyzer. It stops the producer without waiting
// for the Halted acknowledgement.
func (a *Analyzer) Close() error {
	var err error
	a.closeOnce.Do(func() {
		a.Halt()
		close(a.closing)
		<-a.done
		err = a.src.close()
	})
	return err
}

// submit enqueues a request for the producer goroutine.
func (a *Analyzer) submit(op string, fn func()) error {
	if a.halted.Load() {
		return haltedError(op)
	}
	select {
	case a.reqs <- fn:
		return nil
	default:
		return errors.Newf("analyzer request queue full").
			Component("analyzer.sim").
			Category(errors.CategoryLimit).
			Context("operation", op).
			Build()
	}
}

func haltedError(op string) error {
	return errors.New(ErrHalted).
		Component("analyzer.sim").
		Category(errors.CategoryState).
		Context("operation", op).
		Build()
}

// send delivers a control message, serving requests while the consumer is busy.
func (a *Analyzer) send(m analyzer.Message) bool {
	for {
		select {
		case a.msgs <- m:
			return true
		case fn := <-a.reqs:
			fn()
		case <-a.closing:
			return false
		}
	}
}

// trySend delivers a data message or drops it.
func (a *Analyzer) trySend(m analyzer.Message) {
	select {
	case a.msgs <- m:
	default:
		a.dropped.Add(1)
	}
}

func (a *Analyzer) tickPeriod() (time.Duration, int) {
	rate := a.rate
	if a.throttle > 0 {
		rate = float64(a.throttle)
	}
	chunk := a.params.ChunkSize
	period := time.Duration(float64(chunk) / rate * float64(time.Second))
	if period < minTick {
		period = minTick
		chunk = int(rate * period.Seconds())
	}
	return period, chunk
}

func (a *Analyzer) run() {
	defer close(a.done)
	defer close(a.msgs)

	period, chunk := a.tickPeriod()
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	buf := make([]complex64, chunk)

	for {
		select {
		case <-a.haltCh:
			a.finishHalt()
			return
		case <-a.closing:
			return
		case fn := <-a.reqs:
			fn()
			if p, c := a.tickPeriod(); p != period || c != chunk {
				period, chunk = p, c
				ticker.Reset(period)
				buf = make([]complex64, chunk)
			}
		case <-ticker.C:
			n, err := a.src.read(buf)
			if n > 0 {
				a.produce(buf[:n])
			}
			if err != nil {
				a.reportSourceError(err)
				a.waitForTeardown()
				return
			}
		}
	}
}

func (a *Analyzer) finishHalt() {
	if a.params.HaltDelay > 0 {
		t := time.NewTimer(a.params.HaltDelay)
		select {
		case <-t.C:
		case <-a.closing:
			t.Stop()
			return
		}
	}
	a.log.Debug("analyzer halted")
	a.send(analyzer.Halted{})
}

func (a *Analyzer) reportSourceError(err error) {
	if errors.Is(err, io.EOF) {
		a.log.Info("end of stream", logger.String("path", a.profile.Path))
		a.send(analyzer.EndOfStream{})
		return
	}
	a.log.Error("source read error", logger.Error(err))
	a.send(analyzer.ReadError{Err: err})
}

// waitForTeardown keeps serving requests after the source ended until the
// consumer halts or closes the analyzer.
func (a *Analyzer) waitForTeardown() {
	for {
		select {
		case <-a.haltCh:
			a.finishHalt()
			return
		case <-a.closing:
			return
		case fn := <-a.reqs:
			fn()
		}
	}
}

func (a *Analyzer) produce(x []complex64) {
	a.condition(x)

	if f := a.filter.Load(); f != nil {
		(*f)(x)
	}

	a.history = append(a.history, x...)
	if len(a.history) > a.params.FFTSize {
		a.history = a.history[len(a.history)-a.params.FFTSize:]
	}

	a.psdAcc += float64(len(x))
	if every := a.rate / a.params.PSDRate; a.psdAcc >= every {
		a.psdAcc = 0
		a.trySend(analyzer.PSD{
			Frequency:  a.frequency,
			SampleRate: a.rate,
			Data:       a.psd.estimate(a.history),
		})
	}

	for _, in := range a.inspectors {
		a.feedInspector(in, x)
	}
}

// condition applies gain, IQ reversal, DC removal and AGC in place.
func (a *Analyzer) condition(x []complex64) {
	gain := float32(1)
	for _, g := range a.gains {
		gain *= float32(dbToLinear(g))
	}

	var peak float32
	for i, s := range x {
		re, im := real(s)*gain, imag(s)*gain
		if a.iqReverse {
			re, im = im, re
		}
		if a.dcRemove {
			a.dcI += 0.001 * (float64(re) - a.dcI)
			a.dcQ += 0.001 * (float64(im) - a.dcQ)
			re -= float32(a.dcI)
			im -= float32(a.dcQ)
		}
		x[i] = complex(re, im)
		if m := max(abs32(re), abs32(im)); m > peak {
			peak = m
		}
	}
	if a.agc && peak > 0 {
		norm := 1 / peak
		for i := range x {
			x[i] *= complex(norm, 0)
		}
	}
}

func (a *Analyzer) feedInspector(in *inspector, x []complex64) {
	batch := in.process(x, a.rate)
	if batch != nil && in.id != 0 {
		a.trySend(analyzer.Samples{InspectorID: in.id, Samples: batch})
	}
	if in.isAudio() || in.id == 0 {
		return
	}
	rate := in.outputRate(a.rate)
	in.spectAcc += float64(len(x)) * rate / a.rate
	if in.spectAcc >= rate/defaultPSDRate {
		in.spectAcc = 0
		a.trySend(analyzer.InspectorMessage{
			Kind:         analyzer.InspectorSpectrum,
			Handle:       in.handle,
			InspectorID:  in.id,
			Class:        in.class,
			Channel:      in.channel,
			Spectrum:     in.spectrum(),
			SpectrumRate: rate,
		})
	}
}

func dbToLinear(db float64) float64 {
	return math.Pow(10, db/20)
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
