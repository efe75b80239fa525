package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// EventBus carries status events out of the assistant core and control
// events back in. Both directions are buffered; a full queue drops the
// event after a short wait rather than blocking the conversation loop.
type EventBus struct {
	status   chan StatusEvent
	control  chan ControlEvent
	handlers map[string]StatusHandler
	closed   bool
	dropped  droppedCounters
	mu       sync.RWMutex
}

type droppedCounters struct {
	status  atomic.Uint64
	control atomic.Uint64
}

const publishTimeout = 100 * time.Millisecond

func NewEventBus() *EventBus {
	return &EventBus{
		status:   make(chan StatusEvent, 100),
		control:  make(chan ControlEvent, 100),
		handlers: make(map[string]StatusHandler),
	}
}

// Emit publishes a status event. It never blocks longer than
// publishTimeout; slow consumers lose events, counted in DroppedStatus.
// Registered handlers are invoked synchronously before queueing.
func (eb *EventBus) Emit(ev StatusEvent) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	if eb.closed {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	for _, h := range eb.handlers {
		h(ev)
	}
	select {
	case eb.status <- ev:
	default:
		timer := time.NewTimer(publishTimeout)
		defer timer.Stop()
		select {
		case eb.status <- ev:
		case <-timer.C:
			eb.dropped.status.Add(1)
		}
	}
}

// EmitStatus is shorthand for a status_change event.
func (eb *EventBus) EmitStatus(sessionID string, st Status) {
	eb.Emit(StatusEvent{
		Type:      EventStatusChange,
		Status:    st,
		SessionID: sessionID,
	})
}

// EmitError publishes an error event with a caller-safe message.
func (eb *EventBus) EmitError(sessionID, msg string) {
	eb.Emit(StatusEvent{
		Type:      EventError,
		Status:    StatusError,
		SessionID: sessionID,
		Error:     msg,
	})
}

// NextStatus blocks until a status event is available or ctx is done.
func (eb *EventBus) NextStatus(ctx context.Context) (StatusEvent, bool) {
	select {
	case ev, ok := <-eb.status:
		if !ok {
			return StatusEvent{}, false
		}
		return ev, true
	case <-ctx.Done():
		return StatusEvent{}, false
	}
}

// SendControl publishes a control event toward the core.
func (eb *EventBus) SendControl(ev ControlEvent) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	if eb.closed {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	select {
	case eb.control <- ev:
	default:
		timer := time.NewTimer(publishTimeout)
		defer timer.Stop()
		select {
		case eb.control <- ev:
		case <-timer.C:
			eb.dropped.control.Add(1)
		}
	}
}

// NextControl blocks until a control event is available or ctx is done.
func (eb *EventBus) NextControl(ctx context.Context) (ControlEvent, bool) {
	select {
	case ev, ok := <-eb.control:
		if !ok {
			return ControlEvent{}, false
		}
		return ev, true
	case <-ctx.Done():
		return ControlEvent{}, false
	}
}

// Subscribe registers a named handler called synchronously on every
// emitted status event. Re-registering a name replaces the handler.
func (eb *EventBus) Subscribe(name string, handler StatusHandler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.handlers[name] = handler
}

// Unsubscribe removes a named handler.
func (eb *EventBus) Unsubscribe(name string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	delete(eb.handlers, name)
}

func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	if eb.closed {
		return
	}
	eb.closed = true
	close(eb.status)
	close(eb.control)
}

func (eb *EventBus) DroppedStatus() uint64 {
	return eb.dropped.status.Load()
}

func (eb *EventBus) DroppedControl() uint64 {
	return eb.dropped.control.Load()
}
