package inspector

import (
	"io"
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigscope/sigscope/internal/analyzer"
	"github.com/sigscope/sigscope/internal/errors"
	"github.com/sigscope/sigscope/internal/logger"
	"github.com/sigscope/sigscope/internal/observability/metrics"
)

type idCall struct {
	handle analyzer.Handle
	id     analyzer.InspectorID
}

type fakeCtrl struct {
	ids    []idCall
	closed []analyzer.Handle
	freqs  []float64
	bws    []float64
	cfgs   []analyzer.Config
}

func (f *fakeCtrl) SetInspectorID(h analyzer.Handle, id analyzer.InspectorID, _ analyzer.RequestID) error {
	f.ids = append(f.ids, idCall{h, id})
	return nil
}

func (f *fakeCtrl) SetInspectorConfig(_ analyzer.Handle, cfg analyzer.Config, _ analyzer.RequestID) error {
	f.cfgs = append(f.cfgs, cfg)
	return nil
}

func (f *fakeCtrl) SetInspectorFreq(_ analyzer.Handle, lo float64, _ analyzer.RequestID) error {
	f.freqs = append(f.freqs, lo)
	return nil
}

func (f *fakeCtrl) SetInspectorBandwidth(_ analyzer.Handle, bw float64, _ analyzer.RequestID) error {
	f.bws = append(f.bws, bw)
	return nil
}

func (f *fakeCtrl) CloseInspector(h analyzer.Handle, _ analyzer.RequestID) error {
	f.closed = append(f.closed, h)
	return nil
}

type spectrumFrame struct {
	tag  analyzer.InspectorID
	data []float32
	rate float64
}

type fakeSink struct {
	opened  []Info
	frames  []spectrumFrame
	samples map[analyzer.InspectorID]int
	closed  []analyzer.InspectorID
}

func newFakeSink() *fakeSink {
	return &fakeSink{samples: make(map[analyzer.InspectorID]int)}
}

func (s *fakeSink) InspectorOpened(info Info) { s.opened = append(s.opened, info) }
func (s *fakeSink) InspectorSpectrum(tag analyzer.InspectorID, data []float32, rate float64) {
	s.frames = append(s.frames, spectrumFrame{tag, append([]float32(nil), data...), rate})
}
func (s *fakeSink) InspectorSamples(tag analyzer.InspectorID, samples []complex64) {
	s.samples[tag] += len(samples)
}
func (s *fakeSink) InspectorClosed(tag analyzer.InspectorID) { s.closed = append(s.closed, tag) }

type fakeAudio struct {
	handle     analyzer.Handle
	configured bool
	playing    bool
	opened     []analyzer.InspectorMessage
	played     int
}

func (a *fakeAudio) OwnsHandle(h analyzer.Handle) bool { return a.configured && a.handle == h }
func (a *fakeAudio) Opened(msg *analyzer.InspectorMessage) {
	a.opened = append(a.opened, *msg)
	a.handle = msg.Handle
	a.configured = true
}
func (a *fakeAudio) Play(samples []complex64) bool {
	if !a.playing {
		return false
	}
	a.played += len(samples)
	return true
}

func newTestRouter(t *testing.T, opts ...RouterOption) (*Router, *fakeCtrl, *fakeSink, *fakeAudio) {
	t.Helper()
	ctrl := &fakeCtrl{}
	sink := newFakeSink()
	audio := &fakeAudio{}
	opts = append(opts, WithLogger(logger.NewSlogLogger(io.Discard, logger.LogLevelDebug, nil)))
	r := NewRouter(audio, sink, opts...)
	r.Attach(ctrl)
	return r, ctrl, sink, audio
}

func openMsg(h analyzer.Handle, req analyzer.RequestID) *analyzer.InspectorMessage {
	return &analyzer.InspectorMessage{
		Kind:      analyzer.InspectorOpen,
		RequestID: req,
		Handle:    h,
		Class:     "psk",
		Channel:   analyzer.Channel{Center: 1000, Bandwidth: 200},
		Config:    analyzer.Config{"psk.baud": 1200.0},
	}
}

func TestRouterOpenUserInspector(t *testing.T) {
	t.Parallel()

	r, ctrl, sink, audio := newTestRouter(t)

	target := r.HandleMessage(openMsg(7, 3))
	u, ok := target.(UserTarget)
	require.True(t, ok, "user open resolves to a user target")
	assert.Equal(t, analyzer.InspectorID(1), u.Inspector.Tag())
	assert.True(t, u.Inspector.Bound())
	assert.Equal(t, []idCall{{7, 1}}, ctrl.ids)
	require.Len(t, sink.opened, 1)
	assert.Equal(t, "psk", sink.opened[0].Class)
	assert.Empty(t, audio.opened)

	second := r.HandleMessage(openMsg(8, 4)).(UserTarget)
	assert.Equal(t, analyzer.InspectorID(2), second.Inspector.Tag())
	assert.Len(t, r.Inspectors(), 2)
}

func TestRouterOpenAudioInspector(t *testing.T) {
	t.Parallel()

	r, ctrl, sink, audio := newTestRouter(t)

	target := r.HandleMessage(openMsg(9, AudioRequestID))
	assert.IsType(t, AudioTarget{}, target)
	require.Len(t, audio.opened, 1)
	assert.Equal(t, analyzer.Handle(9), audio.opened[0].Handle)
	assert.Empty(t, ctrl.ids, "audio tag is assigned by the audio path")
	assert.Empty(t, sink.opened)
	assert.Empty(t, r.Inspectors())
}

func TestRouterOpenWithoutAnalyzer(t *testing.T) {
	t.Parallel()

	r, _, sink, _ := newTestRouter(t)
	r.Attach(nil)

	assert.IsType(t, NoTarget{}, r.HandleMessage(openMsg(1, 1)))
	assert.Empty(t, sink.opened)
}

func TestRouterSpectrumTransformsAndForwards(t *testing.T) {
	t.Parallel()

	r, _, sink, _ := newTestRouter(t, WithHeadroom(5))
	tag := r.HandleMessage(openMsg(7, 1)).(UserTarget).Inspector.Tag()

	data := []float32{1, 10, 100, 1000}
	target := r.HandleMessage(&analyzer.InspectorMessage{
		Kind:         analyzer.InspectorSpectrum,
		InspectorID:  tag,
		Spectrum:     data,
		SpectrumRate: 25,
	})
	assert.IsType(t, UserTarget{}, target)
	require.Len(t, sink.frames, 1)
	assert.InDelta(t, 25.0, sink.frames[0].rate, 0)
	// log10 = 0,1,2,3; ceiling = 8; halves swapped
	assert.InDeltaSlice(t, []float32{-6, -5, -8, -7}, sink.frames[0].data, 1e-6)
}

func TestRouterSpectrumUnknownOrAudioTagIgnored(t *testing.T) {
	t.Parallel()

	r, _, sink, _ := newTestRouter(t)

	data := []float32{1, 10}
	assert.IsType(t, NoTarget{}, r.HandleMessage(&analyzer.InspectorMessage{
		Kind: analyzer.InspectorSpectrum, InspectorID: 42, Spectrum: data,
	}))
	assert.IsType(t, AudioTarget{}, r.HandleMessage(&analyzer.InspectorMessage{
		Kind: analyzer.InspectorSpectrum, InspectorID: AudioTag, Spectrum: data,
	}))
	assert.Empty(t, sink.frames)
	assert.Equal(t, []float32{1, 10}, data, "untargeted frames are not transformed")
}

func TestRouterCloseUserInspector(t *testing.T) {
	t.Parallel()

	r, _, sink, _ := newTestRouter(t)
	insp := r.HandleMessage(openMsg(7, 1)).(UserTarget).Inspector

	target := r.HandleMessage(&analyzer.InspectorMessage{
		Kind: analyzer.InspectorClose, Handle: 7, InspectorID: insp.Tag(),
	})
	assert.IsType(t, UserTarget{}, target)
	assert.False(t, insp.Bound())
	assert.Equal(t, []analyzer.InspectorID{insp.Tag()}, sink.closed)
	assert.Empty(t, r.Inspectors())

	assert.IsType(t, NoTarget{}, r.HandleMessage(&analyzer.InspectorMessage{
		Kind: analyzer.InspectorClose, Handle: 7, InspectorID: insp.Tag(),
	}), "second close is dropped")
}

func TestRouterCloseAudioHandleIsNoop(t *testing.T) {
	t.Parallel()

	r, _, sink, audio := newTestRouter(t)
	r.HandleMessage(openMsg(9, AudioRequestID))
	user := r.HandleMessage(openMsg(10, 1)).(UserTarget).Inspector
	require.True(t, audio.configured)

	target := r.HandleMessage(&analyzer.InspectorMessage{
		Kind: analyzer.InspectorClose, Handle: 9, InspectorID: user.Tag(),
	})
	assert.IsType(t, AudioTarget{}, target)
	assert.Empty(t, sink.closed)
	assert.Len(t, r.Inspectors(), 1)
}

func TestRouterUnknownKindIgnored(t *testing.T) {
	t.Parallel()

	r, _, _, _ := newTestRouter(t)
	assert.IsType(t, NoTarget{}, r.HandleMessage(&analyzer.InspectorMessage{Kind: analyzer.InspectorEstimator}))
}

func TestRouterSamples(t *testing.T) {
	t.Parallel()

	r, _, sink, audio := newTestRouter(t)
	tag := r.HandleMessage(openMsg(7, 1)).(UserTarget).Inspector.Tag()
	batch := make([]complex64, 16)

	assert.IsType(t, NoTarget{}, r.HandleSamples(&analyzer.Samples{InspectorID: AudioTag, Samples: batch}),
		"audio samples without playback are dropped")

	audio.playing = true
	assert.IsType(t, AudioTarget{}, r.HandleSamples(&analyzer.Samples{InspectorID: AudioTag, Samples: batch}))
	assert.Equal(t, 16, audio.played)

	assert.IsType(t, UserTarget{}, r.HandleSamples(&analyzer.Samples{InspectorID: tag, Samples: batch}))
	assert.Equal(t, 16, sink.samples[tag])

	assert.IsType(t, NoTarget{}, r.HandleSamples(&analyzer.Samples{InspectorID: 99, Samples: batch}))
}

func TestRouterDetachUnbindsAll(t *testing.T) {
	t.Parallel()

	r, _, sink, _ := newTestRouter(t)
	a := r.HandleMessage(openMsg(1, 1)).(UserTarget).Inspector
	b := r.HandleMessage(openMsg(2, 2)).(UserTarget).Inspector

	r.Detach()
	assert.False(t, a.Bound())
	assert.False(t, b.Bound())
	assert.Equal(t, []analyzer.InspectorID{a.Tag(), b.Tag()}, sink.closed)
	assert.Empty(t, r.Inspectors())

	err := a.Configure(analyzer.Config{"x": 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotBound)
}

func TestRouterCloseRequest(t *testing.T) {
	t.Parallel()

	r, ctrl, _, _ := newTestRouter(t)
	insp := r.HandleMessage(openMsg(5, 1)).(UserTarget).Inspector

	require.NoError(t, r.Close(insp.Tag()))
	assert.Equal(t, []analyzer.Handle{5}, ctrl.closed)
	assert.Len(t, r.Inspectors(), 1, "removal waits for the CLOSE message")

	err := r.Close(77)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestInspectorControls(t *testing.T) {
	t.Parallel()

	r, ctrl, _, _ := newTestRouter(t)
	insp := r.HandleMessage(openMsg(5, 1)).(UserTarget).Inspector

	require.NoError(t, insp.SetFrequency(250))
	require.NoError(t, insp.SetBandwidth(300))
	require.NoError(t, insp.Configure(analyzer.Config{"psk.baud": 2400.0}))

	assert.Equal(t, []float64{250}, ctrl.freqs)
	assert.Equal(t, []float64{300}, ctrl.bws)
	assert.InDelta(t, 2400.0, insp.Config()["psk.baud"], 0)
	assert.InDelta(t, 300.0, insp.Info().Channel.Bandwidth, 0)
}

func TestRegistryTagsSkipAudioTag(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.nextTag = math.MaxUint32 - 1

	a := reg.Add(openMsg(1, 1), nil)
	b := reg.Add(openMsg(2, 2), nil)
	assert.Equal(t, analyzer.InspectorID(math.MaxUint32-1), a.Tag())
	assert.Equal(t, analyzer.InspectorID(1), b.Tag())
	assert.NotEqual(t, AudioTag, b.Tag())

	found, ok := reg.LookupHandle(2)
	require.True(t, ok)
	assert.Same(t, b, found)
}

func TestRouterMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m, err := metrics.NewInspectorMetrics(reg)
	require.NoError(t, err)

	r, _, _, _ := newTestRouter(t, WithMetrics(m))
	r.HandleMessage(openMsg(1, 1))
	r.HandleMessage(openMsg(2, AudioRequestID))

	assert.InDelta(t, 1.0, testutil.ToFloat64(m.Open), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.Messages.WithLabelValues("open", "user")), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.Messages.WithLabelValues("open", "audio")), 0)
}
