package session

import (
	"github.com/sigscope/sigscope/internal/errors"
	"github.com/sigscope/sigscope/internal/events"
	"github.com/sigscope/sigscope/internal/logger"
	"github.com/sigscope/sigscope/internal/saver"
)

// filter is the baseband hook installed on the analyzer. It runs on the
// analyzer goroutine and only touches the writer through the atomic pointer.
func (c *Controller) filter(x []complex64) {
	if s := c.writer.Load(); s != nil {
		s.Write(x)
	}
}

// installWriter opens a capture file and attaches a writer. It does nothing
// when a writer is attached or no analyzer exists. The baseband hook is
// registered once per analyzer.
func (c *Controller) installWriter() error {
	if c.writer.Load() != nil || c.an == nil {
		return nil
	}

	rate := c.cfg.Profile.SampleRate
	f, err := saver.OpenCaptureFile(c.cfg.Source.RecordDir, rate, c.cfg.Profile.Frequency, c.cfg.Writer.MinFreeBytes)
	if err != nil {
		c.log.Warn("failed to open capture file", logger.Error(err))
		c.notify(events.SeverityWarning, "Failed to open capture file",
			"Recording skipped: "+err.Error(), false)
		return err
	}

	if c.hook == nil {
		token, err := c.an.RegisterBasebandFilter(c.filter)
		if err != nil {
			_ = f.Close()
			c.log.Warn("failed to install baseband filter", logger.Error(err))
			c.notify(events.SeverityWarning, "Recording unavailable", err.Error(), false)
			return err
		}
		c.hook = token
	}

	c.writerGen++
	s := saver.New(f, c.signals, saver.Options{
		BufferSize:   c.cfg.Writer.BufferSize,
		ReportPeriod: c.cfg.Writer.ReportPeriod,
		SampleRate:   rate,
		Generation:   c.writerGen,
		Metrics:      c.metrics.Saver,
	})
	c.writer.Store(s)
	c.writerPath = f.Path
	c.captureBytes = 0
	c.ioRate = 0

	c.log.Info("capture writer attached",
		logger.String("path", f.Path),
		logger.Uint64("generation", c.writerGen))
	c.pub.TryPublish(events.RecordChanged{Header: events.Now(), Enabled: true, Path: f.Path})
	return nil
}

// uninstallWriter detaches and closes the writer, reporting whether one was attached.
func (c *Controller) uninstallWriter() bool {
	s := c.writer.Swap(nil)
	if s == nil {
		return false
	}
	if err := s.Close(); err != nil {
		c.log.Warn("capture file close failed", logger.Error(err), logger.String("path", c.writerPath))
	}
	c.log.Info("capture writer detached",
		logger.String("path", c.writerPath),
		logger.Uint64("bytes", s.Size()))
	c.writerPath = ""
	return true
}

func (c *Controller) handleWriterSignal(sig saver.Signal) {
	s := c.writer.Load()
	if s == nil || s.Generation() != sig.Generation {
		c.log.Debug("signal from detached writer dropped",
			logger.String("kind", sig.Kind.String()),
			logger.Uint64("generation", sig.Generation))
		return
	}

	switch sig.Kind {
	case saver.SignalRate:
		c.ioRate = sig.Rate
		c.pub.TryPublish(events.IORate{Header: events.Now(), BytesPerSecond: sig.Rate})
	case saver.SignalCommitted:
		c.captureBytes = sig.Committed
		c.pub.TryPublish(events.CaptureSize{Header: events.Now(), Bytes: sig.Committed})
	case saver.SignalStopped, saver.SignalSwamped:
		c.writerFailed(sig)
	}
}

// writerFailed detaches a failed writer and clears the record flag. Later
// signals of the same generation find no writer and are dropped.
func (c *Controller) writerFailed(sig saver.Signal) {
	cause := sig.Err
	if cause == nil {
		cause = errors.NewStd(sig.Kind.String())
	}
	ee := errors.New(cause).
		Component("session").
		Category(errors.CategoryWriter).
		Context("signal", sig.Kind.String()).
		Context("generation", sig.Generation).
		Build()
	c.log.Warn("capture writer failed", logger.Error(ee))

	c.uninstallWriter()
	c.cfg.Source.Record = false
	c.captureBytes = 0
	c.ioRate = 0

	title, msg := "Capture file write error", "Recording disabled: "+cause.Error()
	if sig.Kind == saver.SignalSwamped {
		title, msg = "Capture thread swamped", "Recording disabled: the storage device cannot keep up with the sample rate"
	}
	c.notify(events.SeverityWarning, title, msg, false)
	c.pub.TryPublish(events.RecordChanged{Header: events.Now(), Enabled: false})
	c.pub.TryPublish(events.CaptureSize{Header: events.Now(), Bytes: 0})
}
