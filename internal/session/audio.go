package session

import (
	"github.com/sigscope/sigscope/internal/analyzer"
	"github.com/sigscope/sigscope/internal/audio"
	"github.com/sigscope/sigscope/internal/errors"
	"github.com/sigscope/sigscope/internal/events"
	"github.com/sigscope/sigscope/internal/inspector"
	"github.com/sigscope/sigscope/internal/logger"
	"github.com/sigscope/sigscope/internal/observability/metrics"
	"github.com/sigscope/sigscope/internal/tuning"
)

const audioClass = "audio"

// audioPath owns the audio inspector and the playback device. Tuning set
// before the inspector handshake completes is kept in cfg and applied when
// the OPEN response arrives.
type audioPath struct {
	opener  audio.Opener
	pub     Publisher
	log     logger.Logger
	metrics *metrics.SessionMetrics

	cfg     AudioConfig
	tracker *tuning.Tracker
	an      analyzer.Analyzer

	playback   audio.Playback
	rate       uint32
	handle     analyzer.Handle
	opened     bool // open request sent
	configured bool // OPEN response received
	template   analyzer.Config
}

func newAudioPath(cfg Config, opener audio.Opener, pub Publisher, log logger.Logger, m *metrics.SessionMetrics) *audioPath {
	return &audioPath{
		opener:  opener,
		pub:     pub,
		log:     log.Module("audio"),
		metrics: m,
		cfg:     cfg.Audio,
		tracker: tuning.NewTracker(cfg.Cursor, cfg.DisplayBandwidth, cfg.Audio.Demod),
	}
}

func (a *audioPath) attach(an analyzer.Analyzer) { a.an = an }

// isOpen reports whether a playback device is held.
func (a *audioPath) isOpen() bool { return a.playback != nil }

// OwnsHandle implements inspector.AudioPath.
func (a *audioPath) OwnsHandle(h analyzer.Handle) bool {
	return a.configured && a.handle == h
}

// Opened implements inspector.AudioPath.
func (a *audioPath) Opened(msg *analyzer.InspectorMessage) {
	if a.an == nil {
		return
	}
	if !a.opened || a.configured {
		// audio was closed while the open was in flight
		a.log.Debug("closing orphan audio inspector", logger.Uint64("handle", uint64(msg.Handle)))
		a.warn("close orphan audio inspector", a.an.CloseInspector(msg.Handle, 0))
		return
	}

	a.handle = msg.Handle
	a.configured = true
	a.template = msg.Config.Clone()

	h := a.handle
	a.warn("set audio inspector id", a.an.SetInspectorID(h, inspector.AudioTag, 0))
	a.warn("set audio watermark", a.an.SetInspectorWatermark(h, a.cfg.BufferSize/2, 0))
	a.warn("set audio bandwidth", a.an.SetInspectorBandwidth(h, a.tracker.Bandwidth(), 0))
	a.sendTuning()
	a.assertLO()

	a.metrics.SetAudioOpen(true)
	a.log.Info("audio inspector configured",
		logger.Uint64("handle", uint64(h)),
		logger.Uint64("rate", uint64(a.rate)),
		logger.String("demod", a.cfg.Demod.String()))
}

// Play implements inspector.AudioPath.
func (a *audioPath) Play(samples []complex64) bool {
	if a.playback == nil {
		return false
	}
	a.playback.Write(samples)
	return true
}

// open starts the playback device and requests the audio inspector. The
// requested rate is capped at limit.
func (a *audioPath) open(limit uint32) error {
	if a.playback != nil || a.an == nil {
		return nil
	}

	rate := a.cfg.SampleRate
	if limit > 0 && rate > limit {
		rate = limit
	}
	pb, err := a.opener.Open(a.cfg.Device, rate)
	if err != nil {
		return errors.New(err).
			Component("session").
			Category(errors.CategoryPlayback).
			Context("device", a.cfg.Device).
			Context("rate", rate).
			Build()
	}
	a.playback = pb
	a.rate = pb.SampleRate()
	if a.rate != rate {
		a.log.Info("audio device negotiated a different rate",
			logger.Uint64("requested", uint64(rate)),
			logger.Uint64("actual", uint64(a.rate)))
	}
	a.pub.TryPublish(events.AudioRateChanged{Header: events.Now(), Rate: a.rate})

	bw := float64(a.rate)
	if half := a.an.SampleRate() / 2; bw > half {
		bw = half
	}
	a.tracker.SetMaxBandwidth(bw)
	a.tracker.SetDemod(a.cfg.Demod)
	lo := a.tracker.Reset()

	ch := analyzer.Channel{Center: lo, Bandwidth: bw, FLow: -bw / 2, FHigh: bw / 2}
	if err := a.an.OpenPrecise(audioClass, ch, inspector.AudioRequestID); err != nil {
		a.closeDevice()
		return errors.New(err).
			Component("session").
			Category(errors.CategoryInspector).
			Context("class", audioClass).
			Build()
	}
	a.opened = true
	return nil
}

// close releases the device and resets all audio state. A close request is
// sent only when sendClose is set and the inspector is configured.
func (a *audioPath) close(sendClose bool) {
	if sendClose && a.configured && a.an != nil {
		a.warn("close audio inspector", a.an.CloseInspector(a.handle, 0))
	}
	a.closeDevice()
	a.handle = 0
	a.opened = false
	a.configured = false
	a.template = nil
	a.metrics.SetAudioOpen(false)
}

func (a *audioPath) closeDevice() {
	if a.playback == nil {
		return
	}
	if err := a.playback.Close(); err != nil {
		a.log.Warn("audio device close failed", logger.Error(err))
	}
	a.playback = nil
	a.rate = 0
}

// sendTuning pushes the panel tuning, at the negotiated rate, onto the
// configured inspector.
func (a *audioPath) sendTuning() {
	if !a.configured {
		return
	}
	t := a.cfg.tuning()
	t.SampleRate = a.rate
	a.warn("set audio config", a.an.SetInspectorConfig(a.handle, t.Apply(a.template), 0))
}

// retune applies a changed panel to the live inspector.
func (a *audioPath) retune(cfg AudioConfig) {
	a.cfg = cfg
	a.tracker.SetDemod(cfg.Demod)
	if !a.configured {
		return
	}
	a.sendTuning()
	a.assertLO()
}

func (a *audioPath) setCursor(lo float64) {
	a.tracker.SetCursor(lo)
	if a.configured {
		a.assertLO()
	}
}

func (a *audioPath) setDisplayBandwidth(bw float64) {
	a.tracker.SetDisplayBandwidth(bw)
	if !a.configured {
		return
	}
	a.warn("set audio bandwidth", a.an.SetInspectorBandwidth(a.handle, a.tracker.Bandwidth(), 0))
	a.assertLO()
}

// assertLO pushes the audio LO when it moved past the tracker epsilon.
func (a *audioPath) assertLO() {
	if lo, changed := a.tracker.Assert(); changed {
		a.warn("set audio frequency", a.an.SetInspectorFreq(a.handle, lo, 0))
	}
}

func (a *audioPath) warn(op string, err error) {
	if err != nil {
		a.log.Warn("audio inspector request failed", logger.String("operation", op), logger.Error(err))
	}
}

// AudioStatus describes the audio path.
type AudioStatus struct {
	Open       bool    `json:"open"`
	Configured bool    `json:"configured"`
	Rate       uint32  `json:"rate"`
	LO         float64 `json:"lo"`
	Bandwidth  float64 `json:"bandwidth"`
}

func (a *audioPath) status() AudioStatus {
	return AudioStatus{
		Open:       a.playback != nil,
		Configured: a.configured,
		Rate:       a.rate,
		LO:         a.tracker.LastLO(),
		Bandwidth:  a.tracker.Bandwidth(),
	}
}

// openAudio opens the audio path and reports failures. A missing device is
// a warning, a refused inspector an error.
func (c *Controller) openAudio() error {
	err := c.audio.open(c.cfg.Limits.AudioInspectorBandwidth)
	if err == nil {
		return nil
	}
	if errors.IsCategory(err, errors.CategoryPlayback) {
		c.log.Warn("audio device unavailable", logger.Error(err))
		c.notify(events.SeverityWarning, "Audio unavailable", err.Error(), false)
	} else {
		c.log.Error("failed to open audio inspector", logger.Error(err))
		c.notify(events.SeverityCritical, "Failed to open audio inspector", err.Error(), true)
	}
	return err
}

// closeAudio closes the audio path, asking the analyzer to close the
// inspector only while running.
func (c *Controller) closeAudio() {
	c.audio.close(c.state == Running)
}
