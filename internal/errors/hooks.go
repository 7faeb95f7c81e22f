package errors

import (
	"sync"
	"sync/atomic"
)

// ErrorHook is called synchronously for every error built while reporting is active.
type ErrorHook func(ee *EnhancedError)

var (
	hooksMu    sync.RWMutex
	errorHooks []ErrorHook

	// hasActiveReporting gates the slow path of ErrorBuilder.Build
	hasActiveReporting atomic.Bool
)

// AddErrorHook registers a hook. Hooks must not block.
func AddErrorHook(hook ErrorHook) {
	if hook == nil {
		return
	}
	hooksMu.Lock()
	errorHooks = append(errorHooks, hook)
	hooksMu.Unlock()
	updateReportingState()
}

// ClearErrorHooks removes all registered hooks.
func ClearErrorHooks() {
	hooksMu.Lock()
	errorHooks = nil
	hooksMu.Unlock()
	updateReportingState()
}

func runErrorHooks(ee *EnhancedError) {
	hooksMu.RLock()
	hooks := errorHooks
	hooksMu.RUnlock()

	for _, hook := range hooks {
		hook(ee)
	}
}

// updateReportingState recomputes whether any consumer wants built errors.
func updateReportingState() {
	hooksMu.RLock()
	active := len(errorHooks) > 0
	hooksMu.RUnlock()

	if !active {
		if p := globalEventPublisher.Load(); p != nil && *p != nil {
			active = true
		}
	}
	if !active {
		if r := GetTelemetryReporter(); r != nil && r.IsEnabled() {
			active = true
		}
	}

	hasActiveReporting.Store(active)
}
