package notification

import "time"

const (
	// DefaultMaxNotifications bounds the in-memory store.
	DefaultMaxNotifications = 500
	// DefaultDedupWindow is how long an identical notice folds into the
	// previous notification instead of creating a new one.
	DefaultDedupWindow = 30 * time.Second
	// DefaultChannelBufferSize is the per-subscriber channel capacity.
	DefaultChannelBufferSize = 32
)
