package session

import (
	"context"

	"github.com/sigscope/sigscope/internal/analyzer"
	"github.com/sigscope/sigscope/internal/events"
	"github.com/sigscope/sigscope/internal/logger"
)

// live runs fn against the analyzer when the session is running. Halted
// sessions only keep the stored value.
func (c *Controller) live(op string, fn func(analyzer.Analyzer) error) error {
	if c.state != Running || c.an == nil {
		return nil
	}
	if err := fn(c.an); err != nil {
		c.log.Warn("analyzer request failed", logger.String("operation", op), logger.Error(err))
		return err
	}
	return nil
}

// SetProfile replaces the capture profile. A running capture restarts with it.
func (c *Controller) SetProfile(ctx context.Context, p analyzer.Profile) error {
	return c.do(ctx, "set_profile", func() error {
		if err := p.Validate(); err != nil {
			return err
		}
		c.cfg.Profile = p.Clone()
		return c.dispatch(RestartRequested, nil)
	})
}

// SetFrequency tunes the capture center and LNB offset.
func (c *Controller) SetFrequency(ctx context.Context, freq, lnb float64) error {
	return c.do(ctx, "set_frequency", func() error {
		c.cfg.Profile.Frequency = freq
		c.cfg.Profile.LNB = lnb
		return c.live("set_frequency", func(an analyzer.Analyzer) error { return an.SetFrequency(freq, lnb) })
	})
}

// SetGain sets a named gain element in dB.
func (c *Controller) SetGain(ctx context.Context, name string, value float64) error {
	return c.do(ctx, "set_gain", func() error {
		if c.cfg.Profile.Gains == nil {
			c.cfg.Profile.Gains = make(map[string]float64)
		}
		c.cfg.Profile.Gains[name] = value
		return c.live("set_gain", func(an analyzer.Analyzer) error { return an.SetGain(name, value) })
	})
}

// SetAntenna selects the antenna port.
func (c *Controller) SetAntenna(ctx context.Context, name string) error {
	return c.do(ctx, "set_antenna", func() error {
		c.cfg.Profile.Antenna = name
		return c.live("set_antenna", func(an analyzer.Analyzer) error { return an.SetAntenna(name) })
	})
}

// SetSourceBandwidth sets the front-end filter bandwidth.
func (c *Controller) SetSourceBandwidth(ctx context.Context, bw float64) error {
	return c.do(ctx, "set_source_bandwidth", func() error {
		c.cfg.Profile.Bandwidth = bw
		return c.live("set_source_bandwidth", func(an analyzer.Analyzer) error { return an.SetBandwidth(bw) })
	})
}

// SetDCRemove toggles DC removal.
func (c *Controller) SetDCRemove(ctx context.Context, enabled bool) error {
	return c.do(ctx, "set_dc_remove", func() error {
		c.cfg.Source.DCRemove = enabled
		return c.live("set_dc_remove", func(an analyzer.Analyzer) error { return an.SetDCRemove(enabled) })
	})
}

// SetIQReverse toggles I/Q swapping.
func (c *Controller) SetIQReverse(ctx context.Context, enabled bool) error {
	return c.do(ctx, "set_iq_reverse", func() error {
		c.cfg.Source.IQReverse = enabled
		return c.live("set_iq_reverse", func(an analyzer.Analyzer) error { return an.SetIQReverse(enabled) })
	})
}

// SetAGC toggles automatic gain control.
func (c *Controller) SetAGC(ctx context.Context, enabled bool) error {
	return c.do(ctx, "set_agc", func() error {
		c.cfg.Source.AGC = enabled
		return c.live("set_agc", func(an analyzer.Analyzer) error { return an.SetAGC(enabled) })
	})
}

// SetThrottle limits replay speed. Disabled throttling sends a zero rate.
func (c *Controller) SetThrottle(ctx context.Context, enabled bool, rate uint32) error {
	return c.do(ctx, "set_throttle", func() error {
		c.cfg.Source.Throttle = enabled
		if rate > 0 {
			c.cfg.Source.ThrottleRate = rate
		}
		var send uint32
		if enabled {
			send = c.cfg.Source.ThrottleRate
		}
		return c.live("set_throttle", func(an analyzer.Analyzer) error { return an.SetThrottle(send) })
	})
}

// SetParams replaces the analyzer parameters.
func (c *Controller) SetParams(ctx context.Context, p analyzer.Params) error {
	return c.do(ctx, "set_params", func() error {
		c.cfg.Params = p
		return c.live("set_params", func(an analyzer.Analyzer) error { return an.SetParams(p) })
	})
}

// SetRecord toggles recording. An empty dir keeps the current directory.
// Enabling while running attaches a writer; disabling detaches it.
func (c *Controller) SetRecord(ctx context.Context, enabled bool, dir string) error {
	return c.do(ctx, "set_record", func() error {
		if dir != "" {
			c.cfg.Source.RecordDir = dir
		}
		c.cfg.Source.Record = enabled
		if enabled {
			if c.state == Running {
				return c.installWriter()
			}
			c.pub.TryPublish(events.RecordChanged{Header: events.Now(), Enabled: true})
			return nil
		}

		c.uninstallWriter()
		c.captureBytes = 0
		c.ioRate = 0
		c.pub.TryPublish(events.RecordChanged{Header: events.Now(), Enabled: false})
		c.pub.TryPublish(events.CaptureSize{Header: events.Now(), Bytes: 0})
		return nil
	})
}

// SetAudio applies the audio panel. While running the device is opened,
// reopened on a rate or device change, retuned or closed to match.
func (c *Controller) SetAudio(ctx context.Context, cfg AudioConfig) error {
	return c.do(ctx, "set_audio", func() error {
		prev := c.cfg.Audio
		if cfg.BufferSize <= 0 {
			cfg.BufferSize = prev.BufferSize
		}
		c.cfg.Audio = cfg

		if c.state != Running {
			c.audio.retune(cfg)
			return nil
		}

		switch {
		case cfg.Enabled && !c.audio.isOpen():
			c.audio.retune(cfg)
			return c.openAudio()
		case cfg.Enabled && (cfg.SampleRate != prev.SampleRate || cfg.Device != prev.Device):
			c.closeAudio()
			c.audio.retune(cfg)
			return c.openAudio()
		case cfg.Enabled:
			c.audio.retune(cfg)
			return nil
		default:
			c.closeAudio()
			c.audio.retune(cfg)
			return nil
		}
	})
}

// SetCursor moves the spectrum cursor, relative to the capture center.
func (c *Controller) SetCursor(ctx context.Context, lo float64) error {
	return c.do(ctx, "set_cursor", func() error {
		c.cfg.Cursor = lo
		c.audio.setCursor(lo)
		return nil
	})
}

// SetDisplayBandwidth sets the bandwidth selected on the spectrum.
func (c *Controller) SetDisplayBandwidth(ctx context.Context, bw float64) error {
	return c.do(ctx, "set_display_bandwidth", func() error {
		c.cfg.DisplayBandwidth = bw
		c.audio.setDisplayBandwidth(bw)
		return nil
	})
}

// OpenInspector requests an inspector on a channel centred on the cursor.
// Zero fields of req take the inspector panel values. The inspector appears
// once the analyzer answers.
func (c *Controller) OpenInspector(ctx context.Context, req InspectorConfig) error {
	return c.do(ctx, "open_inspector", func() error {
		if c.state != Running {
			return c.stateError("open_inspector")
		}
		class, bw := req.Class, req.Bandwidth
		if class == "" {
			class = c.cfg.Inspector.Class
		}
		if bw <= 0 {
			bw = c.cfg.Inspector.Bandwidth
		}
		ch := analyzer.Channel{
			Center:    c.cfg.Cursor,
			Bandwidth: bw,
			FLow:      -bw / 2,
			FHigh:     bw / 2,
		}
		c.log.Debug("opening inspector",
			logger.String("class", class),
			logger.Float64("center", ch.Center),
			logger.Float64("bandwidth", bw))
		return c.an.Open(class, ch, 0)
	})
}

// CloseInspector asks the analyzer to close a user inspector. The inspector
// is removed when the analyzer confirms.
func (c *Controller) CloseInspector(ctx context.Context, tag analyzer.InspectorID) error {
	return c.do(ctx, "close_inspector", func() error {
		return c.router.Close(tag)
	})
}

// Snapshot describes the session for status displays.
type Snapshot struct {
	SessionID        string             `json:"session_id,omitempty"`
	State            string             `json:"state"`
	Profile          analyzer.Profile   `json:"profile"`
	Params           analyzer.Params    `json:"params"`
	Source           SourceConfig       `json:"source"`
	Audio            AudioConfig        `json:"audio"`
	AudioStatus      AudioStatus        `json:"audio_status"`
	Inspector        InspectorConfig    `json:"inspector"`
	Cursor           float64            `json:"cursor"`
	DisplayBandwidth float64            `json:"display_bandwidth"`
	Recording        bool               `json:"recording"`
	CapturePath      string             `json:"capture_path,omitempty"`
	CaptureBytes     uint64             `json:"capture_bytes"`
	IORate           float64            `json:"io_rate"`
	HookInstalled    bool               `json:"hook_installed"`
	Inspectors       []InspectorSummary `json:"inspectors"`
}

// InspectorSummary is a user inspector in a Snapshot.
type InspectorSummary struct {
	Tag       uint32  `json:"tag"`
	Class     string  `json:"class"`
	Center    float64 `json:"center"`
	Bandwidth float64 `json:"bandwidth"`
}

// Snapshot returns the current session description.
func (c *Controller) Snapshot(ctx context.Context) (Snapshot, error) {
	var s Snapshot
	err := c.do(ctx, "snapshot", func() error {
		cfg := c.cfg.clone()
		s = Snapshot{
			SessionID:        c.sessionID,
			State:            c.state.String(),
			Profile:          cfg.Profile,
			Params:           cfg.Params,
			Source:           cfg.Source,
			Audio:            cfg.Audio,
			AudioStatus:      c.audio.status(),
			Inspector:        cfg.Inspector,
			Cursor:           cfg.Cursor,
			DisplayBandwidth: cfg.DisplayBandwidth,
			Recording:        c.writer.Load() != nil,
			CapturePath:      c.writerPath,
			CaptureBytes:     c.captureBytes,
			IORate:           c.ioRate,
			HookInstalled:    c.hook != nil,
		}
		for _, info := range c.router.Inspectors() {
			s.Inspectors = append(s.Inspectors, InspectorSummary{
				Tag:       uint32(info.Tag),
				Class:     info.Class,
				Center:    info.Channel.Center,
				Bandwidth: info.Channel.Bandwidth,
			})
		}
		return nil
	})
	return s, err
}
