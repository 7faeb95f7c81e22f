// Package saver writes raw baseband samples to disk without ever blocking
// the producer. Samples are staged in a ring buffer and drained by a
// dedicated goroutine; failures are reported as signals.
package saver

import (
	"encoding/binary"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smallnest/ringbuffer"

	"github.com/sigscope/sigscope/internal/errors"
	"github.com/sigscope/sigscope/internal/logger"
	"github.com/sigscope/sigscope/internal/observability/metrics"
)

// BytesPerSample is the on-disk size of one interleaved float32 I/Q sample.
const BytesPerSample = 8

const (
	// DefaultBufferSize is the ring buffer capacity in bytes.
	DefaultBufferSize = 8 << 20
	// DefaultReportPeriod is the interval between rate and commit signals.
	DefaultReportPeriod = 500 * time.Millisecond

	drainChunk = 256 << 10
)

// SignalKind enumerates the signals a Saver emits.
type SignalKind int

const (
	// SignalStopped reports an I/O failure. The saver is dead afterwards.
	SignalStopped SignalKind = iota
	// SignalSwamped reports that the drain could not keep up. The saver is dead afterwards.
	SignalSwamped
	// SignalRate carries the write rate in bytes per second.
	SignalRate
	// SignalCommitted carries the cumulative number of bytes written.
	SignalCommitted
)

func (k SignalKind) String() string {
	switch k {
	case SignalStopped:
		return "stopped"
	case SignalSwamped:
		return "swamped"
	case SignalRate:
		return "rate"
	case SignalCommitted:
		return "committed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the signal ends the saver's life.
func (k SignalKind) Terminal() bool {
	return k == SignalStopped || k == SignalSwamped
}

// Signal is emitted by the drain goroutine. Generation identifies the saver
// instance so late signals from a detached saver can be told apart.
type Signal struct {
	Kind       SignalKind
	Generation uint64
	Rate       float64
	Committed  uint64
	Err        error
}

// Options configure a Saver.
type Options struct {
	BufferSize   int
	ReportPeriod time.Duration
	SampleRate   uint32
	Generation   uint64
	Logger       logger.Logger
	Metrics      *metrics.SaverMetrics
}

// ErrSwamped is carried by SignalSwamped.
var ErrSwamped = errors.NewStd("capture writer swamped")

// Saver stages samples in a ring buffer and drains them to w.
type Saver struct {
	w       io.WriteCloser
	rb      *ringbuffer.RingBuffer
	signals chan<- Signal
	opts    Options
	log     logger.Logger

	encMu   sync.Mutex
	scratch []byte

	dead      atomic.Bool
	closing   atomic.Bool
	swamped   atomic.Bool
	committed atomic.Uint64

	wake      chan struct{}
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// New starts a saver draining into w. Signals are delivered on signals until
// Close returns.
func New(w io.WriteCloser, signals chan<- Signal, opts Options) *Saver {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.ReportPeriod <= 0 {
		opts.ReportPeriod = DefaultReportPeriod
	}
	log := opts.Logger
	if log == nil {
		log = logger.Global().Module("saver")
	}

	s := &Saver{
		w:       w,
		rb:      ringbuffer.New(opts.BufferSize),
		signals: signals,
		opts:    opts,
		log:     log.With(logger.Uint64("generation", opts.Generation)),
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	opts.Metrics.SetAttached(true)
	go s.run()
	return s
}

// Generation returns the generation id the saver was created with.
func (s *Saver) Generation() uint64 { return s.opts.Generation }

// SampleRate returns the sample rate of the capture.
func (s *Saver) SampleRate() uint32 { return s.opts.SampleRate }

// Size returns the number of bytes committed to the writer so far.
func (s *Saver) Size() uint64 { return s.committed.Load() }

// Write stages samples for writing. It never blocks on I/O. It returns
// false when the samples were dropped because the saver is dead or swamped.
func (s *Saver) Write(samples []complex64) bool {
	if s.dead.Load() || s.closing.Load() {
		return false
	}
	need := len(samples) * BytesPerSample

	s.encMu.Lock()
	if s.rb.Free() < need {
		s.encMu.Unlock()
		s.markSwamped()
		return false
	}
	buf := s.encode(samples)
	n, err := s.rb.Write(buf)
	s.encMu.Unlock()

	if err != nil || n < need {
		s.markSwamped()
		return false
	}
	s.kick()
	return true
}

// encode converts samples to interleaved little-endian float32 I/Q.
// Callers hold encMu.
func (s *Saver) encode(samples []complex64) []byte {
	need := len(samples) * BytesPerSample
	if cap(s.scratch) < need {
		s.scratch = make([]byte, need)
	}
	buf := s.scratch[:need]
	for i, x := range samples {
		off := i * BytesPerSample
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(real(x)))
		binary.LittleEndian.PutUint32(buf[off+4:], math.Float32bits(imag(x)))
	}
	return buf
}

func (s *Saver) markSwamped() {
	if s.swamped.CompareAndSwap(false, true) {
		s.kick()
	}
}

func (s *Saver) kick() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Saver) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.opts.ReportPeriod)
	defer ticker.Stop()

	buf := make([]byte, drainChunk)
	lastTick := time.Now()
	var lastCommitted uint64

	for {
		select {
		case <-s.quit:
			if !s.dead.Load() {
				if err := s.drain(buf); err != nil {
					s.log.Warn("final drain failed", logger.Error(err))
				}
			}
			return

		case <-s.wake:
			if s.swamped.Load() {
				s.fail(SignalSwamped, ErrSwamped)
				return
			}
			if err := s.drain(buf); err != nil {
				s.fail(SignalStopped, err)
				return
			}

		case now := <-ticker.C:
			if err := s.drain(buf); err != nil {
				s.fail(SignalStopped, err)
				return
			}
			committed := s.committed.Load()
			elapsed := now.Sub(lastTick).Seconds()
			rate := 0.0
			if elapsed > 0 {
				rate = float64(committed-lastCommitted) / elapsed
			}
			lastTick, lastCommitted = now, committed

			s.opts.Metrics.SetRate(rate)
			s.opts.Metrics.SetCommitted(committed)
			if !s.emit(Signal{Kind: SignalRate, Rate: rate}) {
				return
			}
			if !s.emit(Signal{Kind: SignalCommitted, Committed: committed}) {
				return
			}
		}
	}
}

// drain moves everything currently staged to the writer.
func (s *Saver) drain(buf []byte) error {
	if c := s.rb.Capacity(); c > 0 {
		s.opts.Metrics.ObserveFill(float64(s.rb.Length()) / float64(c))
	}
	for s.rb.Length() > 0 {
		n, err := s.rb.Read(buf)
		if err != nil {
			if errors.Is(err, ringbuffer.ErrIsEmpty) {
				return nil
			}
			return err
		}
		written, err := s.w.Write(buf[:n])
		s.committed.Add(uint64(written))
		if err != nil {
			return errors.New(err).
				Component("saver").
				Category(errors.CategoryWriter).
				Context("operation", "write").
				Build()
		}
		if written < n {
			return errors.New(io.ErrShortWrite).
				Component("saver").
				Category(errors.CategoryWriter).
				Build()
		}
	}
	return nil
}

func (s *Saver) fail(kind SignalKind, err error) {
	s.dead.Store(true)
	s.opts.Metrics.RecordFailure(kind.String())
	s.log.Warn("capture writer failed",
		logger.String("kind", kind.String()),
		logger.Uint64("committed", s.committed.Load()),
		logger.Error(err))
	s.emit(Signal{Kind: kind, Err: err, Committed: s.committed.Load()})
}

// emit delivers a signal unless the saver is being closed.
func (s *Saver) emit(sig Signal) bool {
	sig.Generation = s.opts.Generation
	select {
	case s.signals <- sig:
		return true
	case <-s.quit:
		return false
	}
}

// Close stops the drain goroutine, flushes what is staged and closes the
// writer. It is safe to call more than once.
func (s *Saver) Close() error {
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		close(s.quit)
		<-s.done
		s.closeErr = s.w.Close()
		s.opts.Metrics.SetAttached(false)
	})
	return s.closeErr
}
