package session

import (
	"strings"

	"github.com/sigscope/sigscope/internal/errors"
	"github.com/sigscope/sigscope/internal/events"
	"github.com/sigscope/sigscope/internal/observability/metrics"
)

// Publisher receives session events. Implementations must not block.
type Publisher interface {
	TryPublish(event events.Event) bool
}

type discardPublisher struct{}

func (discardPublisher) TryPublish(events.Event) bool { return false }

// LogTail exposes the recent warning and error log lines attached to
// failure notices.
type LogTail interface {
	Recent(n int) []string
	ResetRecent()
}

// ClampPolicy is the answer to a profile sample rate above the ceiling.
type ClampPolicy int

const (
	// ClampAccept lowers the profile rate to the ceiling.
	ClampAccept ClampPolicy = iota
	// ClampKeep starts with the rate unchanged.
	ClampKeep
	// ClampAbort leaves the session halted.
	ClampAbort
)

var clampNames = [...]string{"accept", "keep", "abort"}

func (p ClampPolicy) String() string {
	if p < 0 || int(p) >= len(clampNames) {
		return "unknown"
	}
	return clampNames[p]
}

// ParseClampPolicy parses accept, keep or abort.
func ParseClampPolicy(s string) (ClampPolicy, error) {
	for i, name := range clampNames {
		if strings.EqualFold(s, name) {
			return ClampPolicy(i), nil
		}
	}
	return ClampAbort, errors.Newf("unknown clamp policy %q", s).
		Component("session").
		Category(errors.CategoryConfiguration).
		Build()
}

// ClampDecider chooses what to do when requested exceeds limit.
type ClampDecider interface {
	DecideClamp(requested, limit uint32) ClampPolicy
}

// ClampDeciderFunc adapts a function to ClampDecider.
type ClampDeciderFunc func(requested, limit uint32) ClampPolicy

// DecideClamp implements ClampDecider.
func (f ClampDeciderFunc) DecideClamp(requested, limit uint32) ClampPolicy { return f(requested, limit) }

// StaticClamp always answers p.
func StaticClamp(p ClampPolicy) ClampDecider {
	return ClampDeciderFunc(func(uint32, uint32) ClampPolicy { return p })
}

// Metrics groups the collectors the controller updates. Nil members are
// skipped.
type Metrics struct {
	Session   *metrics.SessionMetrics
	Inspector *metrics.InspectorMetrics
	Saver     *metrics.SaverMetrics
}
