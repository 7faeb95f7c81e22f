// Package audio plays demodulated inspector audio on a sound device.
package audio

import (
	"encoding/binary"
	"math"
	"sync"
	"sync/atomic"

	"github.com/smallnest/ringbuffer"

	"github.com/sigscope/sigscope/internal/errors"
)

// NullDevice selects a playback that discards audio.
const NullDevice = "null"

// bytesPerFrame is one mono float32 frame.
const bytesPerFrame = 4

// Playback plays mono audio. Write must not block.
type Playback interface {
	// SampleRate is the rate negotiated with the device.
	SampleRate() uint32
	Write(samples []complex64)
	Close() error
}

// Opener opens a playback device at a requested rate.
type Opener interface {
	Open(device string, rate uint32) (Playback, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(device string, rate uint32) (Playback, error)

// Open implements Opener.
func (f OpenerFunc) Open(device string, rate uint32) (Playback, error) { return f(device, rate) }

// ErrInvalidRate is returned for a zero sample rate.
var ErrInvalidRate = errors.NewStd("invalid playback sample rate")

// queue buffers audio between the controller and the device callback.
// Overflowing writes drop the oldest audio rather than blocking.
type queue struct {
	mu      sync.Mutex
	rb      *ringbuffer.RingBuffer
	scratch []byte
	dropped atomic.Uint64
	under   atomic.Uint64
}

func newQueue(frames int) *queue {
	return &queue{rb: ringbuffer.New(frames * bytesPerFrame)}
}

// push stores the real part of samples as float32 frames.
func (q *queue) push(samples []complex64) {
	need := len(samples) * bytesPerFrame
	if need == 0 {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if cap(q.scratch) < need {
		q.scratch = make([]byte, need)
	}
	buf := q.scratch[:need]
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[i*bytesPerFrame:], math.Float32bits(real(s)))
	}

	if free := q.rb.Free(); free < need {
		// keep the newest audio
		discard := need - free
		if discard > q.rb.Length() {
			discard = q.rb.Length()
		}
		discard -= discard % bytesPerFrame
		if discard > 0 {
			skip := make([]byte, discard)
			_, _ = q.rb.Read(skip)
		}
		q.dropped.Add(uint64(discard / bytesPerFrame))
	}
	if n, err := q.rb.Write(buf); err != nil {
		q.dropped.Add(uint64((need - n) / bytesPerFrame))
	}
}

// pull fills out with queued frames and pads with silence.
func (q *queue) pull(out []byte) {
	n, _ := q.rb.Read(out)
	n -= n % bytesPerFrame
	if n < len(out) {
		clear(out[n:])
		q.under.Add(1)
	}
}

func (q *queue) buffered() int { return q.rb.Length() / bytesPerFrame }

// nullPlayback discards audio at the requested rate.
type nullPlayback struct {
	rate    uint32
	written atomic.Uint64
	closed  atomic.Bool
}

// NewNullPlayback returns a playback that accepts and discards audio.
func NewNullPlayback(rate uint32) (Playback, error) {
	if rate == 0 {
		return nil, errors.New(ErrInvalidRate).
			Component("audio").
			Category(errors.CategoryPlayback).
			Build()
	}
	return &nullPlayback{rate: rate}, nil
}

func (p *nullPlayback) SampleRate() uint32 { return p.rate }

func (p *nullPlayback) Write(samples []complex64) {
	if !p.closed.Load() {
		p.written.Add(uint64(len(samples)))
	}
}

func (p *nullPlayback) Close() error {
	p.closed.Store(true)
	return nil
}
