package sim

import (
	"github.com/sigscope/sigscope/internal/analyzer"
	"github.com/sigscope/sigscope/internal/logger"
)

// SetFrequency implements analyzer.Analyzer.
func (a *Analyzer) SetFrequency(freq, lnb float64) error {
	return a.submit("set_frequency", func() {
		a.frequency, a.lnb = freq, lnb
	})
}

// SetGain implements analyzer.Analyzer.
func (a *Analyzer) SetGain(name string, value float64) error {
	return a.submit("set_gain", func() {
		if a.gains == nil {
			a.gains = make(map[string]float64)
		}
		a.gains[name] = value
	})
}

// SetAntenna implements analyzer.Analyzer.
func (a *Analyzer) SetAntenna(name string) error {
	return a.submit("set_antenna", func() { a.antenna = name })
}

// SetBandwidth implements analyzer.Analyzer.
func (a *Analyzer) SetBandwidth(bw float64) error {
	return a.submit("set_bandwidth", func() { a.bandwidth = bw })
}

// SetDCRemove implements analyzer.Analyzer.
func (a *Analyzer) SetDCRemove(enabled bool) error {
	return a.submit("set_dc_remove", func() {
		a.dcRemove = enabled
		a.dcI, a.dcQ = 0, 0
	})
}

// SetIQReverse implements analyzer.Analyzer.
func (a *Analyzer) SetIQReverse(enabled bool) error {
	return a.submit("set_iq_reverse", func() { a.iqReverse = enabled })
}

// SetAGC implements analyzer.Analyzer.
func (a *Analyzer) SetAGC(enabled bool) error {
	return a.submit("set_agc", func() { a.agc = enabled })
}

// SetThrottle implements analyzer.Analyzer. Zero replays at the profile rate.
func (a *Analyzer) SetThrottle(rate uint32) error {
	return a.submit("set_throttle", func() { a.throttle = rate })
}

// SetParams implements analyzer.Analyzer.
func (a *Analyzer) SetParams(p analyzer.Params) error {
	return a.submit("set_params", func() {
		p = withDefaults(p)
		if p.FFTSize != a.params.FFTSize {
			a.psd = newPSDEstimator(p.FFTSize)
		}
		a.params = p
	})
}

// Open implements analyzer.Analyzer.
func (a *Analyzer) Open(class string, ch analyzer.Channel, req analyzer.RequestID) error {
	return a.submit("open", func() { a.openInspector(class, ch, req) })
}

// OpenPrecise implements analyzer.Analyzer. The simulator mixes at full
// precision either way.
func (a *Analyzer) OpenPrecise(class string, ch analyzer.Channel, req analyzer.RequestID) error {
	return a.submit("open_precise", func() { a.openInspector(class, ch, req) })
}

func (a *Analyzer) openInspector(class string, ch analyzer.Channel, req analyzer.RequestID) {
	h := a.nextHandle
	a.nextHandle++
	in := newInspector(h, class, ch)
	a.inspectors[h] = in

	a.log.Debug("inspector opened",
		logger.String("class", class),
		logger.Uint64("handle", uint64(h)),
		logger.Uint64("request_id", uint64(req)))

	a.send(analyzer.InspectorMessage{
		Kind:      analyzer.InspectorOpen,
		RequestID: req,
		Handle:    h,
		Class:     class,
		Channel:   ch,
		Config:    in.cfg.Clone(),
	})
}

// CloseInspector implements analyzer.Analyzer.
func (a *Analyzer) CloseInspector(h analyzer.Handle, req analyzer.RequestID) error {
	return a.submit("close_inspector", func() {
		in, ok := a.inspectors[h]
		if !ok {
			a.log.Warn("close of unknown inspector", logger.Uint64("handle", uint64(h)))
			return
		}
		delete(a.inspectors, h)
		a.send(analyzer.InspectorMessage{
			Kind:        analyzer.InspectorClose,
			RequestID:   req,
			Handle:      h,
			InspectorID: in.id,
			Class:       in.class,
			Channel:     in.channel,
		})
	})
}

// withInspector runs fn on the inspector with handle h, if any.
func (a *Analyzer) withInspector(op string, h analyzer.Handle, fn func(*inspector)) error {
	return a.submit(op, func() {
		in, ok := a.inspectors[h]
		if !ok {
			a.log.Warn("request for unknown inspector",
				logger.String("operation", op),
				logger.Uint64("handle", uint64(h)))
			return
		}
		fn(in)
	})
}

// SetInspectorID implements analyzer.Analyzer.
func (a *Analyzer) SetInspectorID(h analyzer.Handle, id analyzer.InspectorID, _ analyzer.RequestID) error {
	return a.withInspector("set_inspector_id", h, func(in *inspector) { in.id = id })
}

// SetInspectorWatermark implements analyzer.Analyzer.
func (a *Analyzer) SetInspectorWatermark(h analyzer.Handle, samples int, _ analyzer.RequestID) error {
	return a.withInspector("set_inspector_watermark", h, func(in *inspector) {
		if samples > 0 {
			in.watermark = samples
		}
	})
}

// SetInspectorBandwidth implements analyzer.Analyzer.
func (a *Analyzer) SetInspectorBandwidth(h analyzer.Handle, bw float64, _ analyzer.RequestID) error {
	return a.withInspector("set_inspector_bandwidth", h, func(in *inspector) {
		in.channel.Bandwidth = bw
		in.channel.FLow = -bw / 2
		in.channel.FHigh = bw / 2
	})
}

// SetInspectorFreq implements analyzer.Analyzer. lo is relative to the
// capture center.
func (a *Analyzer) SetInspectorFreq(h analyzer.Handle, lo float64, _ analyzer.RequestID) error {
	return a.withInspector("set_inspector_freq", h, func(in *inspector) {
		in.channel.Center = lo
		in.channel.FTune = 0
	})
}

// SetInspectorConfig implements analyzer.Analyzer.
func (a *Analyzer) SetInspectorConfig(h analyzer.Handle, cfg analyzer.Config, _ analyzer.RequestID) error {
	cfg = cfg.Clone()
	return a.withInspector("set_inspector_config", h, func(in *inspector) {
		for k, v := range cfg {
			in.cfg[k] = v
		}
	})
}

// RegisterBasebandFilter implements analyzer.Analyzer. A later registration
// replaces the earlier one.
func (a *Analyzer) RegisterBasebandFilter(f analyzer.BasebandFilter) (*analyzer.HookToken, error) {
	if a.halted.Load() {
		return nil, haltedError("register_baseband_filter")
	}
	a.filter.Store(&f)
	return &analyzer.HookToken{ID: a.hookSeq.Add(1)}, nil
}

// Snapshot is a copy of the simulator control state for inspection.
type Snapshot struct {
	Frequency  float64
	LNB        float64
	Gains      map[string]float64
	Antenna    string
	Bandwidth  float64
	DCRemove   bool
	IQReverse  bool
	AGC        bool
	Throttle   uint32
	Params     analyzer.Params
	Inspectors int
	Hooks      uint64
}

// Snapshot returns the control state once all earlier requests are applied.
func (a *Analyzer) Snapshot() (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	err := a.submit("snapshot", func() {
		gains := make(map[string]float64, len(a.gains))
		for k, v := range a.gains {
			gains[k] = v
		}
		reply <- Snapshot{
			Frequency:  a.frequency,
			LNB:        a.lnb,
			Gains:      gains,
			Antenna:    a.antenna,
			Bandwidth:  a.bandwidth,
			DCRemove:   a.dcRemove,
			IQReverse:  a.iqReverse,
			AGC:        a.agc,
			Throttle:   a.throttle,
			Params:     a.params,
			Inspectors: len(a.inspectors),
			Hooks:      a.hookSeq.Load(),
		}
	})
	if err != nil {
		return Snapshot{}, err
	}
	select {
	case s := <-reply:
		return s, nil
	case <-a.done:
		return Snapshot{}, haltedError("snapshot")
	}
}
