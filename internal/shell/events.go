package shell

import (
	"sync"
	"time"
)

// EventKind names a controller lifecycle event.
type EventKind string

const (
	EventInstalled         EventKind = "installed"
	EventInstallFailed     EventKind = "install_failed"
	EventActivated         EventKind = "activated"
	EventGenerationDeleted EventKind = "generation_deleted"
	EventClaimed           EventKind = "claimed"
	EventStoreFailed       EventKind = "store_failed"
)

// LifecycleEvent describes something that happened inside a controller.
type LifecycleEvent struct {
	Kind       EventKind
	Generation string // generation the event concerns
	Key        string // request key, for store events
	Err        error
	Timestamp  time.Time
}

// EventHandler processes lifecycle events.
type EventHandler func(event *LifecycleEvent)

// eventBusBufferSize is the capacity of the async event channel.
const eventBusBufferSize = 256

// EventBus is an async pub/sub for lifecycle events. Publish never blocks:
// events go to a buffered channel drained by a single worker goroutine, so
// request handling is never slowed by observers.
type EventBus struct {
	handlers []EventHandler
	mu       sync.RWMutex
	eventCh  chan *LifecycleEvent
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewEventBus creates an event bus and starts its worker.
func NewEventBus() *EventBus {
	b := &EventBus{
		eventCh: make(chan *LifecycleEvent, eventBusBufferSize),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	go b.processLoop()
	return b
}

// Subscribe registers a handler for lifecycle events.
func (b *EventBus) Subscribe(handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handler)
}

// Publish enqueues an event. If the buffer is full, or the bus has been
// stopped, the event is dropped.
func (b *EventBus) Publish(event *LifecycleEvent) {
	if b == nil {
		return
	}
	select {
	case <-b.stopCh:
		return
	default:
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	default:
	}
}

// Stop drains queued events and waits for the worker to exit. Safe to call
// multiple times.
func (b *EventBus) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopCh)
	})
	<-b.doneCh
}

func (b *EventBus) processLoop() {
	defer close(b.doneCh)
	for {
		select {
		case event := <-b.eventCh:
			b.dispatch(event)
		case <-b.stopCh:
			for {
				select {
				case event := <-b.eventCh:
					b.dispatch(event)
				default:
					return
				}
			}
		}
	}
}

func (b *EventBus) dispatch(event *LifecycleEvent) {
	b.mu.RLock()
	handlers := make([]EventHandler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, handler := range handlers {
		safeCall(handler, event)
	}
}

// safeCall keeps a panicking handler from killing the bus goroutine.
func safeCall(handler EventHandler, event *LifecycleEvent) {
	defer func() {
		recover() //nolint:errcheck // handlers do their own logging
	}()
	handler(event)
}
