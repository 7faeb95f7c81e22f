// Package telemetry reports enhanced errors to Sentry with privacy filtering.
package telemetry

import (
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/sigscope/sigscope/internal/errors"
	"github.com/sigscope/sigscope/internal/logger"
)

// Config configures the Sentry reporter.
type Config struct {
	Enabled  bool
	DSN      string
	Release  string // version string, reported as sigscope@<release>
	SystemID string // anonymous installation id, attached as a tag

	// Transport overrides the HTTP transport; tests use it.
	Transport sentry.Transport
}

// Init initializes the Sentry SDK and installs the errors package reporter
// and privacy scrubber. It returns false when telemetry stays disabled.
func Init(cfg Config) (bool, error) {
	if !cfg.Enabled || cfg.DSN == "" {
		errors.SetTelemetryReporter(nil)
		return false, nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		SampleRate:       1.0,
		AttachStacktrace: false,
		Environment:      "production",
		ServerName:       "",
		Release:          "sigscope@" + cfg.Release,
		Transport:        cfg.Transport,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return applyPrivacyFilters(event)
		},
	})
	if err != nil {
		return false, errors.New(err).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if cfg.SystemID != "" {
		sentry.ConfigureScope(func(scope *sentry.Scope) {
			scope.SetTag("system_id", cfg.SystemID)
		})
	}

	errors.SetPrivacyScrubber(ScrubMessage)
	errors.SetTelemetryReporter(errors.NewSentryReporter(true))

	GetLogger().Info("error telemetry enabled",
		logger.String("release", cfg.Release),
		logger.String("system_id", cfg.SystemID))
	return true, nil
}

// applyPrivacyFilters strips host identity from an event before it leaves
// the process.
func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
		delete(event.Contexts, "runtime")
	}

	for k := range event.Extra {
		if k != "error_type" && k != "component" {
			delete(event.Extra, k)
		}
	}

	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}

	event.Message = ScrubMessage(event.Message)
	for i := range event.Exception {
		event.Exception[i].Value = ScrubMessage(event.Exception[i].Value)
	}
	for _, b := range event.Breadcrumbs {
		b.Message = ScrubMessage(b.Message)
	}
	return event
}

// Flush waits up to timeout for queued events to be sent.
func Flush(timeout time.Duration) {
	if errors.GetTelemetryReporter() == nil {
		return
	}
	if !sentry.Flush(timeout) {
		GetLogger().Warn("telemetry flush timed out", logger.Duration("timeout", timeout))
	}
}

// GetLogger returns the telemetry module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("telemetry")
}
