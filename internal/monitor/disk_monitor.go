// Package monitor watches free space on the volume captures are written to
// and raises threshold notifications.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/sigscope/sigscope/internal/conf"
	"github.com/sigscope/sigscope/internal/errors"
	"github.com/sigscope/sigscope/internal/logger"
	"github.com/sigscope/sigscope/internal/notification"
)

// GetLogger returns the module logger for the disk monitor.
func GetLogger() logger.Logger {
	return logger.Global().Module("monitor")
}

const (
	levelWarning  = "warning"
	levelCritical = "critical"
)

// Config holds the thresholds, all in used space percent.
type Config struct {
	Interval       time.Duration
	Warning        float64
	Critical       float64
	Hysteresis     float64
	ResendInterval time.Duration
}

// ConfigFromSettings extracts the monitor configuration.
func ConfigFromSettings(s *conf.Settings) Config {
	return Config{
		Interval:       s.Monitor.Interval,
		Warning:        s.Monitor.Warning,
		Critical:       s.Monitor.Critical,
		Hysteresis:     s.Monitor.Hysteresis,
		ResendInterval: s.Monitor.ResendInterval,
	}
}

// Notifier receives the monitor's notifications.
type Notifier interface {
	Add(n *notification.Notification) *notification.Notification
}

// PathFunc returns the directory currently receiving captures.
type PathFunc func(ctx context.Context) (string, error)

// UsageFunc returns the used space percent of the volume holding path.
type UsageFunc func(path string) (float64, error)

func diskUsage(path string) (float64, error) {
	u, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return u.UsedPercent, nil
}

type alertState struct {
	path         string
	inWarning    bool
	inCritical   bool
	lastValue    float64
	lastNotified time.Time
}

// DiskMonitor checks the record directory volume on a fixed period.
type DiskMonitor struct {
	cfg      Config
	path     PathFunc
	notifier Notifier
	usage    UsageFunc
	now      func() time.Time
	log      logger.Logger

	mu    sync.Mutex
	state alertState
}

// Option configures a DiskMonitor.
type Option func(*DiskMonitor)

// WithUsageFunc replaces the gopsutil volume query.
func WithUsageFunc(fn UsageFunc) Option {
	return func(m *DiskMonitor) { m.usage = fn }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *DiskMonitor) { m.now = now }
}

// WithLogger sets the monitor logger.
func WithLogger(l logger.Logger) Option {
	return func(m *DiskMonitor) { m.log = l }
}

// New creates a disk monitor.
func New(cfg Config, path PathFunc, notifier Notifier, opts ...Option) *DiskMonitor {
	m := &DiskMonitor{
		cfg:      cfg,
		path:     path,
		notifier: notifier,
		usage:    diskUsage,
		now:      time.Now,
		log:      GetLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run checks once immediately, then every Interval until ctx is done.
func (m *DiskMonitor) Run(ctx context.Context) error {
	m.log.Info("disk monitor started",
		logger.Duration("interval", m.cfg.Interval),
		logger.Float64("warning", m.cfg.Warning),
		logger.Float64("critical", m.cfg.Critical))

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := m.Check(ctx); err != nil && ctx.Err() == nil {
			m.log.Warn("disk check failed", logger.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Check evaluates the current record directory once.
func (m *DiskMonitor) Check(ctx context.Context) error {
	dir, err := m.path(ctx)
	if err != nil {
		return err
	}
	if dir == "" {
		dir = "."
	}
	used, err := m.usage(dir)
	if err != nil {
		return errors.New(err).
			Component("monitor").
			Category(errors.CategoryDiskUsage).
			Context("directory", dir).
			Priority(errors.PriorityLow).
			Build()
	}
	m.evaluate(dir, used)
	return nil
}

func (m *DiskMonitor) evaluate(dir string, used float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := &m.state
	if st.path != dir {
		*st = alertState{path: dir}
	}
	st.lastValue = used
	now := m.now()

	switch {
	case used >= m.cfg.Critical:
		if !st.inCritical {
			m.log.Warn("critical disk usage",
				logger.String("path", dir),
				logger.Float64("used_percent", used))
			st.inCritical = true
			st.inWarning = true
			m.notify(notification.TypeError, notification.PriorityCritical, levelCritical, dir, used, m.cfg.Critical, now)
		} else if m.cfg.ResendInterval > 0 && now.Sub(st.lastNotified) >= m.cfg.ResendInterval {
			m.notify(notification.TypeError, notification.PriorityCritical, levelCritical, dir, used, m.cfg.Critical, now)
		}
	case used >= m.cfg.Warning:
		if !st.inWarning {
			m.log.Warn("high disk usage",
				logger.String("path", dir),
				logger.Float64("used_percent", used))
			st.inWarning = true
			m.notify(notification.TypeWarning, notification.PriorityHigh, levelWarning, dir, used, m.cfg.Warning, now)
		}
		if st.inCritical && used < m.cfg.Critical-m.cfg.Hysteresis {
			st.inCritical = false
			m.recover(levelCritical, dir, used, now)
		}
	default:
		if st.inWarning && used < m.cfg.Warning-m.cfg.Hysteresis {
			level := levelWarning
			if st.inCritical {
				level = levelCritical
			}
			*st = alertState{path: dir, lastValue: used}
			m.recover(level, dir, used, now)
		}
	}

	m.log.Debug("disk check completed",
		logger.String("path", dir),
		logger.Float64("used_percent", used),
		logger.Bool("in_warning", st.inWarning),
		logger.Bool("in_critical", st.inCritical))
}

func (m *DiskMonitor) notify(t notification.Type, p notification.Priority, level, dir string, used, threshold float64, now time.Time) {
	m.state.lastNotified = now
	if m.notifier == nil {
		return
	}
	n := notification.NewNotification(t, p,
		fmt.Sprintf("Disk usage %s", level),
		fmt.Sprintf("Volume holding %s is %.1f%% full (threshold %.1f%%)", dir, used, threshold)).
		WithComponent("monitor")
	m.notifier.Add(n)
}

func (m *DiskMonitor) recover(level, dir string, used float64, now time.Time) {
	m.log.Info("disk usage recovered",
		logger.String("path", dir),
		logger.String("level", level),
		logger.Float64("used_percent", used))
	m.state.lastNotified = now
	if m.notifier == nil {
		return
	}
	n := notification.NewNotification(notification.TypeInfo, notification.PriorityMedium,
		"Disk usage recovered",
		fmt.Sprintf("Volume holding %s is back to %.1f%% after %s level", dir, used, level)).
		WithComponent("monitor")
	m.notifier.Add(n)
}

// Status reports the last observed state.
func (m *DiskMonitor) Status() (path string, used float64, warning, critical bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.path, m.state.lastValue, m.state.inWarning, m.state.inCritical
}
