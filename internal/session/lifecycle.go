package session

import (
	"github.com/sigscope/sigscope/internal/analyzer"
	"github.com/sigscope/sigscope/internal/errors"
	"github.com/sigscope/sigscope/internal/events"
	"github.com/sigscope/sigscope/internal/logger"
)

// analyzerEvent dispatches an event raised by the analyzer stream.
func (c *Controller) analyzerEvent(ev Event, cause error) {
	if err := c.dispatch(ev, cause); err != nil {
		c.log.Warn("capture did not restart", logger.Error(err))
	}
}

// startCapture builds the analyzer and brings the session to Running. On
// any failure the session stays Halted with no analyzer.
func (c *Controller) startCapture() error {
	c.hook = nil

	profile := c.cfg.Profile.Clone()
	if err := profile.Validate(); err != nil {
		c.metrics.Session.RecordStartFailure(string(errors.CategoryConfiguration))
		c.log.Error("capture profile rejected", logger.Error(err))
		c.notify(events.SeverityCritical, "Cannot start capture", err.Error(), false)
		return err
	}

	if limit := c.cfg.Limits.MaxSampleRate; profile.Type == analyzer.SourceSDR && limit > 0 && profile.SampleRate > limit {
		decision := c.clamp.DecideClamp(profile.SampleRate, limit)
		c.log.Info("sample rate above limit",
			logger.Uint64("requested", uint64(profile.SampleRate)),
			logger.Uint64("limit", uint64(limit)),
			logger.String("decision", decision.String()))
		switch decision {
		case ClampAccept:
			profile.SampleRate = limit
			c.cfg.Profile.SampleRate = limit
		case ClampKeep:
		default:
			c.metrics.Session.RecordStartFailure("aborted")
			return errors.New(ErrStartAborted).
				Component("session").
				Category(errors.CategoryConfiguration).
				Context("sample_rate", profile.SampleRate).
				Context("limit", limit).
				Build()
		}
	}

	// failure notices only carry lines logged from here on
	c.tail.ResetRecent()

	an, err := c.factory(c.cfg.Params, profile)
	if err != nil {
		return c.startFailed(err)
	}
	if err := c.configureAnalyzer(an); err != nil {
		if cerr := an.Close(); cerr != nil {
			c.log.Warn("failed to release analyzer", logger.Error(cerr))
		}
		return c.startFailed(err)
	}

	c.an = an
	c.msgs = an.Messages()
	c.router.Attach(an)
	c.audio.attach(an)
	c.sessionID = newSessionID()

	if c.cfg.Source.Record {
		// open failures are reported and the capture goes on unrecorded
		_ = c.installWriter()
	}

	if err := c.dispatch(Started, nil); err != nil {
		return err
	}

	if c.cfg.Audio.Enabled {
		_ = c.openAudio()
	}

	c.log.Info("capture started",
		logger.String("session_id", c.sessionID),
		logger.String("profile", profile.Label),
		logger.Float64("sample_rate", an.SampleRate()),
		logger.Float64("frequency", profile.Frequency))
	return nil
}

// configureAnalyzer pushes the source panel settings onto a new analyzer
// before anything else talks to it.
func (c *Controller) configureAnalyzer(an analyzer.Analyzer) error {
	src := c.cfg.Source
	var errs []error
	if src.Throttle {
		errs = append(errs, an.SetThrottle(src.ThrottleRate))
	}
	errs = append(errs,
		an.SetDCRemove(src.DCRemove),
		an.SetIQReverse(src.IQReverse))
	if src.AGC {
		errs = append(errs, an.SetAGC(true))
	}
	return errors.Join(errs...)
}

func (c *Controller) startFailed(err error) error {
	ee := errors.New(err).
		Component("session").
		Category(errors.CategoryConstruction).
		Context("profile", c.cfg.Profile.Label).
		Build()
	c.metrics.Session.RecordStartFailure(string(errors.CategoryConstruction))
	c.log.Error("failed to start capture", logger.Error(err))
	c.notify(events.SeverityCritical, "Failed to start capture", err.Error(), true)
	return ee
}

// teardown releases everything a capture holds. The analyzer is closed last
// so no message reaches a released consumer.
func (c *Controller) teardown() {
	an := c.an
	c.an = nil
	c.msgs = nil

	c.uninstallWriter()
	c.router.Detach()
	c.closeAudio()
	c.audio.attach(nil)

	if an != nil {
		if err := an.Close(); err != nil {
			c.log.Warn("failed to release analyzer", logger.Error(err))
		}
	}
	c.hook = nil
	c.log.Debug("capture torn down", logger.String("session_id", c.sessionID))
	c.sessionID = ""
}

func (c *Controller) reportProducerFailure(ev Event, cause error) {
	c.metrics.Session.RecordProducerError(ev.String())

	if ev == EndOfStream {
		c.log.Info("capture source reached end of stream")
		c.notify(events.SeverityWarning, "End of stream",
			"Capture stopped: the source has no more samples", true)
		return
	}

	if cause == nil {
		cause = errors.NewStd("source read error")
	}
	ee := errors.New(cause).
		Component("session").
		Category(errors.CategoryProducer).
		Context("session_id", c.sessionID).
		Build()
	c.log.Error("capture source read error", logger.Error(ee))
	c.notify(events.SeverityCritical, "Read error", "Capture stopped: "+cause.Error(), true)
}
