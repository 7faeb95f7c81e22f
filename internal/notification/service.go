package notification

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/sigscope/sigscope/internal/logger"
	"github.com/sigscope/sigscope/internal/observability/metrics"
)

// Subscriber represents a notification subscriber
type Subscriber struct {
	ch     chan *Notification
	ctx    context.Context
	cancel context.CancelFunc
}

// Service stores operator notices, folds repeats and broadcasts every new or
// updated notification to subscribers.
type Service struct {
	store         *InMemoryStore
	dedup         *cache.Cache
	createMu      sync.Mutex
	subscribers   []*Subscriber
	subscribersMu sync.Mutex
	ctx           context.Context
	cancel        context.CancelFunc
	log           logger.Logger
	metrics       *metrics.NotificationMetrics
}

// ServiceConfig holds the notification service settings.
type ServiceConfig struct {
	// MaxNotifications is the maximum number of notifications kept in memory
	MaxNotifications int
	// DedupWindow folds identical notices raised within the window
	DedupWindow time.Duration
	Logger      logger.Logger
	Metrics     *metrics.NotificationMetrics
}

// NewService creates a notification service.
func NewService(config ServiceConfig) *Service {
	if config.MaxNotifications <= 0 {
		config.MaxNotifications = DefaultMaxNotifications
	}
	if config.DedupWindow <= 0 {
		config.DedupWindow = DefaultDedupWindow
	}
	if config.Logger == nil {
		config.Logger = GetLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		store: NewInMemoryStore(config.MaxNotifications),
		// No janitor: expired keys are ignored by Get and overwritten by Set.
		dedup:   cache.New(config.DedupWindow, 0),
		ctx:     ctx,
		cancel:  cancel,
		log:     config.Logger,
		metrics: config.Metrics,
	}
	s.log.Info("notification service initialized",
		logger.Int("max_notifications", config.MaxNotifications),
		logger.Duration("dedup_window", config.DedupWindow))
	return s
}

// Add stores n, or bumps the count of the identical notification raised
// within the de-duplication window. It returns the stored notification.
func (s *Service) Add(n *Notification) *Notification {
	s.createMu.Lock()
	key := dedupKey(n)
	if id, ok := s.dedup.Get(key); ok {
		if prev, err := s.store.Get(id.(string)); err == nil {
			prev.Count++
			prev.Timestamp = n.Timestamp
			prev.Status = StatusUnread
			if len(n.Details) > 0 {
				prev.Details = n.Details
			}
			s.store.Save(prev)
			s.dedup.SetDefault(key, prev.ID)
			s.createMu.Unlock()

			s.metrics.RecordDeduplicated()
			s.metrics.SetUnread(s.store.UnreadCount())
			s.log.Debug("notification deduplicated",
				logger.String("id", prev.ID),
				logger.Int("count", prev.Count))
			s.broadcast(prev)
			return prev
		}
	}
	stored := n.Clone()
	s.store.Save(stored)
	s.dedup.SetDefault(key, stored.ID)
	s.createMu.Unlock()

	s.metrics.RecordCreated(string(stored.Type))
	s.metrics.SetUnread(s.store.UnreadCount())
	s.log.Debug("notification created",
		logger.String("id", stored.ID),
		logger.String("type", string(stored.Type)),
		logger.String("title", stored.Title))
	s.broadcast(stored)
	return stored
}

// Create builds and adds a notification.
func (s *Service) Create(notifType Type, priority Priority, title, message string) *Notification {
	return s.Add(NewNotification(notifType, priority, title, message))
}

// Get returns the notification with id.
func (s *Service) Get(id string) (*Notification, error) {
	return s.store.Get(id)
}

// List returns matching notifications, newest first.
func (s *Service) List(filter *FilterOptions) []*Notification {
	return s.store.List(filter)
}

// MarkAsRead flags a notification as read.
func (s *Service) MarkAsRead(id string) error {
	if err := s.store.MarkAsRead(id); err != nil {
		return err
	}
	s.metrics.SetUnread(s.store.UnreadCount())
	return nil
}

// Delete removes a notification.
func (s *Service) Delete(id string) {
	s.store.Delete(id)
	s.metrics.SetUnread(s.store.UnreadCount())
}

// UnreadCount returns the number of unread notifications.
func (s *Service) UnreadCount() int {
	return s.store.UnreadCount()
}

// Subscribe returns a channel receiving every new or updated notification.
// The context is cancelled on Unsubscribe or Stop; the channel is never
// closed.
func (s *Service) Subscribe() (<-chan *Notification, context.Context) {
	s.subscribersMu.Lock()
	defer s.subscribersMu.Unlock()

	ctx, cancel := context.WithCancel(s.ctx)
	sub := &Subscriber{
		ch:     make(chan *Notification, DefaultChannelBufferSize),
		ctx:    ctx,
		cancel: cancel,
	}
	s.subscribers = append(s.subscribers, sub)
	return sub.ch, ctx
}

// Unsubscribe removes a notification channel.
func (s *Service) Unsubscribe(ch <-chan *Notification) {
	s.subscribersMu.Lock()
	defer s.subscribersMu.Unlock()

	for i, sub := range s.subscribers {
		if sub.ch == ch {
			sub.cancel()
			s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
			return
		}
	}
}

// broadcast sends a clone to every live subscriber. Full channels skip.
func (s *Service) broadcast(n *Notification) {
	s.subscribersMu.Lock()
	defer s.subscribersMu.Unlock()

	active := s.subscribers[:0]
	for _, sub := range s.subscribers {
		if sub.ctx.Err() != nil {
			continue
		}
		active = append(active, sub)
		select {
		case sub.ch <- n.Clone():
		default:
			s.log.Debug("notification channel full, skipping subscriber",
				logger.String("id", n.ID))
		}
	}
	clear(s.subscribers[len(active):])
	s.subscribers = active
}

// Stop cancels every subscriber.
func (s *Service) Stop() {
	s.cancel()

	s.subscribersMu.Lock()
	count := len(s.subscribers)
	for _, sub := range s.subscribers {
		sub.cancel()
	}
	s.subscribers = nil
	s.subscribersMu.Unlock()

	s.log.Info("notification service stopped", logger.Int("subscribers_cancelled", count))
}

func dedupKey(n *Notification) string {
	return string(n.Type) + "|" + n.Title + "|" + n.Message
}
