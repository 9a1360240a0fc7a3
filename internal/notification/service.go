package notification

import (
	"context"
	"slices"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/ridecheck/ridecheck/internal/errors"
	"github.com/ridecheck/ridecheck/internal/logger"
	"github.com/ridecheck/ridecheck/internal/shell"
)

var (
	ErrServiceStopped       = errors.New("notification service stopped")
	ErrNotificationNotFound = errors.New("notification not found")
)

// ServiceConfig configures a Service.
type ServiceConfig struct {
	// TTL is how long an undismissed notification is kept.
	TTL time.Duration
	// CleanupInterval is how often expired notifications are purged.
	CleanupInterval time.Duration
	// SubscriberBuffer is the per-client event queue length.
	SubscriberBuffer int
	// ProviderTimeout bounds each external provider send.
	ProviderTimeout time.Duration
	Providers       []Provider
	Logger          logger.Logger
}

// DefaultServiceConfig returns the settings used for a nil config.
func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		TTL:              24 * time.Hour,
		CleanupInterval:  10 * time.Minute,
		SubscriberBuffer: 32,
		ProviderTimeout:  30 * time.Second,
	}
}

// Service is the shell's notification center and its view of open
// application instances. It implements shell.Notifier and shell.Clients.
type Service struct {
	cfg   ServiceConfig
	log   logger.Logger
	store *gocache.Cache

	mu          sync.RWMutex
	subscribers map[chan *ClientEvent]struct{}
	pendingOpen []string
	claimed     string
	stopped     bool

	sends  sync.WaitGroup
	stopCh chan struct{}
	doneCh chan struct{}
}

var (
	_ shell.Notifier = (*Service)(nil)
	_ shell.Clients  = (*Service)(nil)
)

// NewService creates a service and starts its cleanup loop.
func NewService(config *ServiceConfig) *Service {
	def := DefaultServiceConfig()
	if config == nil {
		config = def
	}
	cfg := *config
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = def.SubscriberBuffer
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}

	s := &Service{
		cfg: cfg,
		log: log.Module("notification"),
		// Expiry is purged by cleanupLoop so Stop can end it.
		store:       gocache.New(cfg.TTL, 0),
		subscribers: make(map[chan *ClientEvent]struct{}),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

func (s *Service) cleanupLoop() {
	defer close(s.doneCh)
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.store.DeleteExpired()
		case <-s.stopCh:
			return
		}
	}
}

// Show stores n, pushes it to every open instance and forwards it to the
// configured providers. Provider failures are logged, not returned.
func (s *Service) Show(ctx context.Context, n shell.Notification) (string, error) {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		return "", ErrServiceStopped
	}

	notif := NewNotification(n)
	s.store.Set(notif.ID, notif, gocache.DefaultExpiration)
	s.broadcast(&ClientEvent{Type: EventNotification, Notification: notif})
	s.forward(ctx, notif)

	s.log.Info("notification shown",
		logger.String("notification_id", notif.ID),
		logger.Int("subscribers", s.SubscriberCount()))
	return notif.ID, nil
}

func (s *Service) forward(ctx context.Context, n *Notification) {
	for _, p := range s.cfg.Providers {
		s.sends.Add(1)
		go func() {
			defer s.sends.Done()
			sendCtx := context.WithoutCancel(ctx)
			if s.cfg.ProviderTimeout > 0 {
				var cancel context.CancelFunc
				sendCtx, cancel = context.WithTimeout(sendCtx, s.cfg.ProviderTimeout)
				defer cancel()
			}
			if err := p.Send(sendCtx, n); err != nil {
				s.log.Warn("notification provider failed",
					logger.String("provider", p.Name()),
					logger.String("notification_id", n.ID),
					logger.Error(err))
			}
		}()
	}
}

// Dismiss removes a notification from every instance.
func (s *Service) Dismiss(_ context.Context, id string) error {
	if _, ok := s.store.Get(id); !ok {
		return ErrNotificationNotFound
	}
	s.store.Delete(id)
	s.broadcast(&ClientEvent{Type: EventNotificationDismissed, NotificationID: id})
	return nil
}

// Get returns a displayed notification.
func (s *Service) Get(id string) (*Notification, bool) {
	v, ok := s.store.Get(id)
	if !ok {
		return nil, false
	}
	return v.(*Notification), true
}

// List returns the displayed notifications, oldest first.
func (s *Service) List() []*Notification {
	items := s.store.Items()
	out := make([]*Notification, 0, len(items))
	for _, item := range items {
		out = append(out, item.Object.(*Notification))
	}
	slices.SortFunc(out, func(a, b *Notification) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out
}

// Claim records that the named generation now controls every instance and
// tells them so.
func (s *Service) Claim(_ context.Context, generation string) error {
	s.mu.Lock()
	s.claimed = generation
	s.mu.Unlock()
	s.broadcast(&ClientEvent{Type: EventControllerClaimed, Generation: generation})
	return nil
}

// Claimed returns the generation of the last Claim.
func (s *Service) Claimed() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.claimed
}

// OpenWindow asks an open instance to navigate to url. With no instance
// open the request is held and delivered to the next one that subscribes.
func (s *Service) OpenWindow(_ context.Context, url string) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrServiceStopped
	}
	if len(s.subscribers) == 0 {
		s.pendingOpen = append(s.pendingOpen, url)
		s.mu.Unlock()
		s.log.Debug("no open instance, window open deferred", logger.String("url", url))
		return nil
	}
	s.mu.Unlock()
	s.broadcast(&ClientEvent{Type: EventWindowOpen, URL: url})
	return nil
}

// Subscribe registers an application instance. The returned function
// unsubscribes and closes the channel.
func (s *Service) Subscribe() (<-chan *ClientEvent, func()) {
	ch := make(chan *ClientEvent, s.cfg.SubscriberBuffer)

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	s.subscribers[ch] = struct{}{}
	if s.claimed != "" {
		s.offer(ch, &ClientEvent{Type: EventControllerClaimed, Generation: s.claimed})
	}
	for _, url := range s.pendingOpen {
		s.offer(ch, &ClientEvent{Type: EventWindowOpen, URL: url})
	}
	s.pendingOpen = nil
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if _, ok := s.subscribers[ch]; ok {
				delete(s.subscribers, ch)
				close(ch)
			}
		})
	}
}

// SubscriberCount returns the number of open instances.
func (s *Service) SubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers)
}

// broadcast never blocks: a subscriber with a full queue misses the event.
func (s *Service) broadcast(event *ClientEvent) {
	event.Timestamp = time.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	for ch := range s.subscribers {
		s.offer(ch, event)
	}
}

func (s *Service) offer(ch chan *ClientEvent, event *ClientEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case ch <- event:
	default:
		s.log.Debug("client event dropped", logger.String("type", event.Type))
	}
}

// Stop ends the cleanup loop, waits for provider sends and disconnects
// every subscriber.
func (s *Service) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
	s.mu.Unlock()

	close(s.stopCh)
	<-s.doneCh
	s.sends.Wait()
}
