// Package notification keeps the operator notices raised by the capture
// session and broadcasts them to live subscribers such as the API stream.
package notification

import (
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sigscope/sigscope/internal/errors"
)

// Type represents the category of a notification
type Type string

const (
	// TypeError indicates a failure that stopped an operation
	TypeError Type = "error"
	// TypeWarning indicates a degraded but continuing operation
	TypeWarning Type = "warning"
	// TypeInfo indicates an informational notification
	TypeInfo Type = "info"
)

// ErrNotificationNotFound is returned for unknown notification ids.
var ErrNotificationNotFound = errors.NewStd("notification not found")

// Priority represents the urgency level of a notification
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Status represents the read state of a notification
type Status string

const (
	StatusUnread Status = "unread"
	StatusRead   Status = "read"
)

// Notification is a single operator notice.
type Notification struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Priority  Priority  `json:"priority"`
	Status    Status    `json:"status"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Details   []string  `json:"details,omitempty"` // recent log lines
	Component string    `json:"component,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	// Count is the number of times the notice was raised inside the
	// de-duplication window.
	Count int `json:"count"`
}

// NewNotification creates a new notification with a unique ID and timestamp
func NewNotification(notifType Type, priority Priority, title, message string) *Notification {
	return &Notification{
		ID:        uuid.NewString(),
		Type:      notifType,
		Priority:  priority,
		Status:    StatusUnread,
		Title:     title,
		Message:   message,
		Timestamp: time.Now(),
		Count:     1,
	}
}

// WithComponent sets the component field and returns the notification for chaining
func (n *Notification) WithComponent(component string) *Notification {
	n.Component = component
	return n
}

// WithDetails attaches detail lines and returns the notification for chaining
func (n *Notification) WithDetails(lines []string) *Notification {
	n.Details = slices.Clone(lines)
	return n
}

// Clone returns a deep copy.
func (n *Notification) Clone() *Notification {
	if n == nil {
		return nil
	}
	c := *n
	c.Details = slices.Clone(n.Details)
	return &c
}

// FilterOptions narrows List results.
type FilterOptions struct {
	Types  []Type
	Status []Status
	Since  *time.Time
	Limit  int
}

// InMemoryStore is a bounded, thread-safe notification store.
type InMemoryStore struct {
	mu            sync.RWMutex
	notifications map[string]*Notification
	maxSize       int
	unreadCount   int
}

// NewInMemoryStore creates a store holding at most maxSize notifications.
func NewInMemoryStore(maxSize int) *InMemoryStore {
	if maxSize <= 0 {
		maxSize = DefaultMaxNotifications
	}
	return &InMemoryStore{
		notifications: make(map[string]*Notification),
		maxSize:       maxSize,
	}
}

// Save stores a notification, evicting the oldest when full.
func (s *InMemoryStore) Save(n *Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.notifications[n.ID]; !exists && len(s.notifications) >= s.maxSize {
		s.removeOldest()
	}
	if old, exists := s.notifications[n.ID]; exists && old.Status == StatusUnread {
		s.unreadCount--
	}
	s.notifications[n.ID] = n.Clone()
	if n.Status == StatusUnread {
		s.unreadCount++
	}
}

// Get returns a copy of the notification with id.
func (s *InMemoryStore) Get(id string) (*Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n, ok := s.notifications[id]; ok {
		return n.Clone(), nil
	}
	return nil, errors.New(ErrNotificationNotFound).
		Component("notification").
		Category(errors.CategoryNotFound).
		Context("id", id).
		Build()
}

// List returns matching notifications, newest first.
func (s *InMemoryStore) List(filter *FilterOptions) []*Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []*Notification
	for _, n := range s.notifications {
		if matchesFilter(n, filter) {
			results = append(results, n.Clone())
		}
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Timestamp.After(results[j].Timestamp)
	})
	if filter != nil && filter.Limit > 0 && len(results) > filter.Limit {
		results = results[:filter.Limit]
	}
	return results
}

// MarkAsRead flags a notification as read.
func (s *InMemoryStore) MarkAsRead(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok {
		return errors.New(ErrNotificationNotFound).
			Component("notification").
			Category(errors.CategoryNotFound).
			Context("id", id).
			Build()
	}
	if n.Status == StatusUnread {
		s.unreadCount--
	}
	n.Status = StatusRead
	return nil
}

// Delete removes a notification. Unknown ids are ignored.
func (s *InMemoryStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n, ok := s.notifications[id]; ok && n.Status == StatusUnread {
		s.unreadCount--
	}
	delete(s.notifications, id)
}

// UnreadCount returns the number of unread notifications.
func (s *InMemoryStore) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unreadCount
}

func (s *InMemoryStore) removeOldest() {
	var oldestID string
	var oldestTime time.Time
	for id, n := range s.notifications {
		if oldestID == "" || n.Timestamp.Before(oldestTime) {
			oldestID, oldestTime = id, n.Timestamp
		}
	}
	if oldestID == "" {
		return
	}
	if s.notifications[oldestID].Status == StatusUnread {
		s.unreadCount--
	}
	delete(s.notifications, oldestID)
}

func matchesFilter(n *Notification, filter *FilterOptions) bool {
	if filter == nil {
		return true
	}
	if len(filter.Types) > 0 && !slices.Contains(filter.Types, n.Type) {
		return false
	}
	if len(filter.Status) > 0 && !slices.Contains(filter.Status, n.Status) {
		return false
	}
	if filter.Since != nil && n.Timestamp.Before(*filter.Since) {
		return false
	}
	return true
}
