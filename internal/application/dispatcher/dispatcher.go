package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ieeeucsd/dashboard-finance/internal/domain/event"
)

// DefaultMaxInFlight bounds concurrently running async handlers
const DefaultMaxInFlight = 64

// Dispatcher routes change events to registered handlers
type Dispatcher interface {
	// Subscribe registers a handler for an event type under a generated name
	Subscribe(eventType event.Type, handler Handler)

	// SubscribeNamed registers a handler for an event type under name
	SubscribeNamed(eventType event.Type, name string, handler Handler)

	// SubscribeAll registers one handler for every event type, including
	// types added later
	SubscribeAll(name string, handler Handler)

	// Unsubscribe stops the handlers registered under name from receiving
	// eventType
	Unsubscribe(eventType event.Type, name string)

	// Dispatch runs matching handlers in registration order and stops at the
	// first error
	Dispatch(ctx context.Context, evt *event.Event) error

	// DispatchAsync runs each matching handler on its own goroutine. Errors
	// are logged.
	DispatchAsync(ctx context.Context, evt *event.Event)

	// ListHandlers returns the handlers that would receive eventType
	ListHandlers(eventType event.Type) []HandlerInfo

	// Close rejects further dispatches and waits for async handlers
	Close() error
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type eventDispatcher struct {
	mu      sync.RWMutex
	subs    []*subscription
	counter int

	logger  Logger
	timeout time.Duration

	inFlight chan struct{}
	wg       sync.WaitGroup
	closed   atomic.Bool
}

// Option configures the dispatcher
type Option func(*eventDispatcher)

// WithLogger sets a logger for the dispatcher
func WithLogger(logger Logger) Option {
	return func(d *eventDispatcher) {
		d.logger = logger
	}
}

// WithHandlerTimeout bounds every handler invocation
func WithHandlerTimeout(timeout time.Duration) Option {
	return func(d *eventDispatcher) {
		d.timeout = timeout
	}
}

// WithMaxInFlight bounds concurrently running async handlers. DispatchAsync
// blocks while the limit is reached.
func WithMaxInFlight(n int) Option {
	return func(d *eventDispatcher) {
		if n > 0 {
			d.inFlight = make(chan struct{}, n)
		}
	}
}

// NewDispatcher creates a new event dispatcher
func NewDispatcher(opts ...Option) Dispatcher {
	d := &eventDispatcher{
		inFlight: make(chan struct{}, DefaultMaxInFlight),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *eventDispatcher) Subscribe(eventType event.Type, handler Handler) {
	d.mu.Lock()
	d.counter++
	name := fmt.Sprintf("handler-%d", d.counter)
	d.mu.Unlock()
	d.SubscribeNamed(eventType, name, handler)
}

func (d *eventDispatcher) SubscribeNamed(eventType event.Type, name string, handler Handler) {
	d.add(&subscription{
		name:    name,
		only:    map[event.Type]bool{eventType: true},
		handler: handler,
	})
	d.logInfo("Handler registered", "event_type", eventType, "handler_name", name)
}

func (d *eventDispatcher) SubscribeAll(name string, handler Handler) {
	d.add(&subscription{
		name:    name,
		except:  map[event.Type]bool{},
		handler: handler,
	})
	d.logInfo("Handler registered", "event_type", "*", "handler_name", name)
}

func (d *eventDispatcher) add(s *subscription) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subs = append(d.subs, s)
}

func (d *eventDispatcher) Unsubscribe(eventType event.Type, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	kept := d.subs[:0]
	for _, s := range d.subs {
		if s.name == name {
			if s.only == nil {
				s.except[eventType] = true
			} else {
				delete(s.only, eventType)
				if len(s.only) == 0 {
					continue
				}
			}
		}
		kept = append(kept, s)
	}
	d.subs = kept

	d.logInfo("Handler unregistered", "event_type", eventType, "handler_name", name)
}

// matching snapshots the subscriptions for t in registration order
func (d *eventDispatcher) matching(t event.Type) []*subscription {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []*subscription
	for _, s := range d.subs {
		if s.matches(t) {
			out = append(out, s)
		}
	}
	return out
}

func (d *eventDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	if d.closed.Load() {
		return fmt.Errorf("dispatcher is closed")
	}

	for _, s := range d.matching(evt.Type) {
		if err := d.run(ctx, evt, s); err != nil {
			d.logError("Handler error", evt, s.name, err)
			return fmt.Errorf("handler %s failed: %w", s.name, err)
		}
	}
	return nil
}

func (d *eventDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	if d.closed.Load() {
		d.logError("Dropping event, dispatcher is closed", evt, "", nil)
		return
	}

	subs := d.matching(evt.Type)
	d.logInfo("Dispatching event",
		"event_type", evt.Type,
		"record_kind", evt.RecordKind,
		"record_id", evt.RecordID,
		"handler_count", len(subs),
	)

	for _, s := range subs {
		d.wg.Add(1)
		d.inFlight <- struct{}{}
		go func(s *subscription) {
			defer func() {
				<-d.inFlight
				d.wg.Done()
			}()
			if err := d.run(ctx, evt, s); err != nil {
				d.logError("Async handler error", evt, s.name, err)
			}
		}(s)
	}
}

func (d *eventDispatcher) ListHandlers(eventType event.Type) []HandlerInfo {
	subs := d.matching(eventType)
	out := make([]HandlerInfo, 0, len(subs))
	for _, s := range subs {
		out = append(out, HandlerInfo{Name: s.name, EventType: eventType, CatchAll: s.only == nil})
	}
	return out
}

func (d *eventDispatcher) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return fmt.Errorf("dispatcher already closed")
	}
	d.wg.Wait()
	d.logInfo("Dispatcher closed")
	return nil
}

// run invokes one handler with the configured timeout, converting panics to
// errors
func (d *eventDispatcher) run(ctx context.Context, evt *event.Event, s *subscription) (err error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return s.handler(ctx, evt)
}

func (d *eventDispatcher) logInfo(msg string, keysAndValues ...interface{}) {
	if d.logger != nil {
		d.logger.Info(msg, keysAndValues...)
	}
}

func (d *eventDispatcher) logError(msg string, evt *event.Event, handler string, err error) {
	if d.logger == nil {
		return
	}
	kv := []interface{}{"event_type", evt.Type, "event_id", evt.ID, "record_id", evt.RecordID}
	if handler != "" {
		kv = append(kv, "handler_name", handler)
	}
	if err != nil {
		kv = append(kv, "error", err)
	}
	d.logger.Error(msg, kv...)
}
