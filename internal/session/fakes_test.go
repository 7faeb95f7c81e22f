package session

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sigscope/sigscope/internal/analyzer"
	"github.com/sigscope/sigscope/internal/audio"
	"github.com/sigscope/sigscope/internal/events"
	"github.com/sigscope/sigscope/internal/logger"
	"github.com/sigscope/sigscope/internal/tuning"
)

// call is one request received by a fake analyzer.
type call struct {
	op      string
	handle  analyzer.Handle
	class   string
	channel analyzer.Channel
	req     analyzer.RequestID
	id      analyzer.InspectorID
	value   any
}

// fakeAnalyzer records requests and lets tests inject messages.
type fakeAnalyzer struct {
	seq   int
	rate  float64
	msgs  chan analyzer.Message
	fail  map[string]error
	opLog *opLog

	mu     sync.Mutex
	calls  []call
	filter analyzer.BasebandFilter
	hooks  int
	closed bool

	haltOnce sync.Once
	endOnce  sync.Once
}

func (f *fakeAnalyzer) record(c call) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	return f.fail[c.op]
}

func (f *fakeAnalyzer) callsOf(op string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.op == op {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeAnalyzer) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeAnalyzer) hookCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hooks
}

// feed runs the installed baseband filter as the producer would.
func (f *fakeAnalyzer) feed(x []complex64) {
	f.mu.Lock()
	fn := f.filter
	f.mu.Unlock()
	if fn != nil {
		fn(x)
	}
}

func (f *fakeAnalyzer) push(m analyzer.Message) { f.msgs <- m }

func (f *fakeAnalyzer) end() { f.endOnce.Do(func() { close(f.msgs) }) }

func (f *fakeAnalyzer) Messages() <-chan analyzer.Message { return f.msgs }
func (f *fakeAnalyzer) SampleRate() float64              { return f.rate }

func (f *fakeAnalyzer) Halt() {
	f.haltOnce.Do(func() {
		_ = f.record(call{op: "halt"})
		f.msgs <- analyzer.Halted{}
		f.end()
	})
}

func (f *fakeAnalyzer) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.opLog.add(fmt.Sprintf("close#%d", f.seq))
	f.haltOnce.Do(func() {})
	f.end()
	return nil
}

func (f *fakeAnalyzer) SetFrequency(freq, lnb float64) error {
	return f.record(call{op: "set_frequency", value: [2]float64{freq, lnb}})
}
func (f *fakeAnalyzer) SetGain(name string, value float64) error {
	return f.record(call{op: "set_gain", class: name, value: value})
}
func (f *fakeAnalyzer) SetAntenna(name string) error {
	return f.record(call{op: "set_antenna", value: name})
}
func (f *fakeAnalyzer) SetBandwidth(bw float64) error {
	return f.record(call{op: "set_bandwidth", value: bw})
}
func (f *fakeAnalyzer) SetDCRemove(v bool) error  { return f.record(call{op: "set_dc_remove", value: v}) }
func (f *fakeAnalyzer) SetIQReverse(v bool) error { return f.record(call{op: "set_iq_reverse", value: v}) }
func (f *fakeAnalyzer) SetAGC(v bool) error       { return f.record(call{op: "set_agc", value: v}) }
func (f *fakeAnalyzer) SetThrottle(rate uint32) error {
	return f.record(call{op: "set_throttle", value: rate})
}
func (f *fakeAnalyzer) SetParams(p analyzer.Params) error {
	return f.record(call{op: "set_params", value: p})
}

func (f *fakeAnalyzer) Open(class string, ch analyzer.Channel, req analyzer.RequestID) error {
	return f.record(call{op: "open", class: class, channel: ch, req: req})
}
func (f *fakeAnalyzer) OpenPrecise(class string, ch analyzer.Channel, req analyzer.RequestID) error {
	return f.record(call{op: "open_precise", class: class, channel: ch, req: req})
}
func (f *fakeAnalyzer) CloseInspector(h analyzer.Handle, req analyzer.RequestID) error {
	return f.record(call{op: "close_inspector", handle: h, req: req})
}
func (f *fakeAnalyzer) SetInspectorID(h analyzer.Handle, id analyzer.InspectorID, req analyzer.RequestID) error {
	return f.record(call{op: "set_inspector_id", handle: h, id: id, req: req})
}
func (f *fakeAnalyzer) SetInspectorWatermark(h analyzer.Handle, n int, req analyzer.RequestID) error {
	return f.record(call{op: "set_inspector_watermark", handle: h, value: n, req: req})
}
func (f *fakeAnalyzer) SetInspectorBandwidth(h analyzer.Handle, bw float64, req analyzer.RequestID) error {
	return f.record(call{op: "set_inspector_bandwidth", handle: h, value: bw, req: req})
}
func (f *fakeAnalyzer) SetInspectorFreq(h analyzer.Handle, lo float64, req analyzer.RequestID) error {
	return f.record(call{op: "set_inspector_freq", handle: h, value: lo, req: req})
}
func (f *fakeAnalyzer) SetInspectorConfig(h analyzer.Handle, cfg analyzer.Config, req analyzer.RequestID) error {
	return f.record(call{op: "set_inspector_config", handle: h, value: cfg, req: req})
}

func (f *fakeAnalyzer) RegisterBasebandFilter(fn analyzer.BasebandFilter) (*analyzer.HookToken, error) {
	if err := f.record(call{op: "register_filter"}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filter = fn
	f.hooks++
	return &analyzer.HookToken{ID: uint64(f.hooks)}, nil
}

// opLog orders operations across analyzer instances.
type opLog struct {
	mu  sync.Mutex
	ops []string
}

func (l *opLog) add(op string) {
	l.mu.Lock()
	l.ops = append(l.ops, op)
	l.mu.Unlock()
}

func (l *opLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.ops...)
}

// fakeFactory builds fakeAnalyzers.
type fakeFactory struct {
	mu       sync.Mutex
	err      error
	fail     map[string]error
	built    []*fakeAnalyzer
	profiles []analyzer.Profile
	ops      opLog
}

func (ff *fakeFactory) build(params analyzer.Params, profile analyzer.Profile) (analyzer.Analyzer, error) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	ff.profiles = append(ff.profiles, profile)
	if ff.err != nil {
		return nil, ff.err
	}
	a := &fakeAnalyzer{
		seq:   len(ff.built) + 1,
		rate:  float64(profile.SampleRate),
		msgs:  make(chan analyzer.Message, 64),
		fail:  ff.fail,
		opLog: &ff.ops,
	}
	ff.built = append(ff.built, a)
	ff.ops.add(fmt.Sprintf("create#%d", a.seq))
	return a, nil
}

func (ff *fakeFactory) count() int {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return len(ff.built)
}

func (ff *fakeFactory) last() *fakeAnalyzer {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if len(ff.built) == 0 {
		return nil
	}
	return ff.built[len(ff.built)-1]
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) TryPublish(e events.Event) bool {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
	return true
}

func eventsOf[T events.Event](p *recordingPublisher) []T {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []T
	for _, e := range p.events {
		if v, ok := e.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

// fakeTail is a LogTail with fixed lines.
type fakeTail struct {
	mu     sync.Mutex
	lines  []string
	resets int
}

func (t *fakeTail) Recent(int) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.lines...)
}

func (t *fakeTail) ResetRecent() {
	t.mu.Lock()
	t.resets++
	t.mu.Unlock()
}

// fakePlayback records written samples.
type fakePlayback struct {
	rate uint32

	mu      sync.Mutex
	written int
	closed  bool
}

func (p *fakePlayback) SampleRate() uint32 { return p.rate }

func (p *fakePlayback) Write(s []complex64) {
	p.mu.Lock()
	p.written += len(s)
	p.mu.Unlock()
}

func (p *fakePlayback) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

func (p *fakePlayback) stats() (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written, p.closed
}

// fakeOpener opens fakePlaybacks at a fixed negotiated rate.
type fakeOpener struct {
	negotiated uint32
	err        error

	mu        sync.Mutex
	requested []uint32
	opened    []*fakePlayback
}

func (o *fakeOpener) Open(_ string, rate uint32) (audio.Playback, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.requested = append(o.requested, rate)
	if o.err != nil {
		return nil, o.err
	}
	r := o.negotiated
	if r == 0 {
		r = rate
	}
	p := &fakePlayback{rate: r}
	o.opened = append(o.opened, p)
	return p, nil
}

func (o *fakeOpener) last() *fakePlayback {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.opened) == 0 {
		return nil
	}
	return o.opened[len(o.opened)-1]
}

func testConfig() Config {
	return Config{
		Profile: analyzer.Profile{
			Label:      "test",
			Type:       analyzer.SourceSDR,
			Device:     "fake",
			SampleRate: 250000,
			Frequency:  100e6,
		},
		Source: SourceConfig{RecordDir: "/nonexistent/sigscope"},
		Audio: AudioConfig{
			SampleRate: 44100,
			Cutoff:     15000,
			Volume:     50,
			Demod:      tuning.DemodFM,
			BufferSize: 2048,
		},
		Inspector:        InspectorConfig{Class: "psk", Bandwidth: 10000},
		Limits:           Limits{MaxSampleRate: 1000000, AudioInspectorBandwidth: 48000},
		Clamp:            ClampAbort,
		DisplayBandwidth: 10000,
	}
}

// harness runs a controller against fakes.
type harness struct {
	ctrl    *Controller
	factory *fakeFactory
	pub     *recordingPublisher
	tail    *fakeTail
	opener  *fakeOpener
}

func newHarness(t *testing.T, cfg Config, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		factory: &fakeFactory{},
		pub:     &recordingPublisher{},
		tail:    &fakeTail{lines: []string{"12:00:00 ERROR analyzer: device busy"}},
		opener:  &fakeOpener{},
	}
	base := []Option{
		WithPublisher(h.pub),
		WithLogTail(h.tail),
		WithAudioOpener(h.opener),
		WithLogger(logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil)),
	}
	ctrl, err := New(cfg, h.factory.build, append(base, opts...)...)
	require.NoError(t, err)
	h.ctrl = ctrl

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = ctrl.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-ctrl.Done()
	})
	return h
}

func (h *harness) waitState(t *testing.T, want State) {
	t.Helper()
	require.Eventually(t, func() bool {
		s, err := h.ctrl.State(t.Context())
		return err == nil && s == want
	}, 2*time.Second, 2*time.Millisecond, "state %s not reached", want)
}

func (h *harness) snapshot(t *testing.T) Snapshot {
	t.Helper()
	s, err := h.ctrl.Snapshot(t.Context())
	require.NoError(t, err)
	return s
}

// sync waits until every message pushed so far has been handled.
func (h *harness) sync(t *testing.T, a *fakeAnalyzer) {
	t.Helper()
	require.Eventually(t, func() bool { return len(a.msgs) == 0 }, 2*time.Second, time.Millisecond)
	_ = h.snapshot(t)
}
