package event

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Sink receives emitted events.
type Sink interface {
	Deliver(evt Event)
}

// Callback is the host notification function.
type Callback func(eventType, data string)

// CallbackSink invokes the registered Callback in-line.
type CallbackSink struct {
	cb     atomic.Pointer[Callback]
	logger *slog.Logger
}

// NewCallbackSink creates a sink with no callback registered.
func NewCallbackSink(logger *slog.Logger) *CallbackSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &CallbackSink{logger: logger}
}

// Register replaces the current callback. A nil callback disables delivery.
func (s *CallbackSink) Register(cb Callback) {
	if cb == nil {
		s.cb.Store(nil)
		return
	}
	s.cb.Store(&cb)
}

// Registered reports whether a callback is set.
func (s *CallbackSink) Registered() bool {
	return s.cb.Load() != nil
}

// Deliver implements Sink.
// A panicking callback is recovered so a background drain is not torn down
// by host code.
func (s *CallbackSink) Deliver(evt Event) {
	cb := s.cb.Load()
	if cb == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("event callback panic",
				slog.String("event_type", evt.Type),
				slog.Any("panic", rec),
			)
		}
	}()
	(*cb)(evt.Type, evt.Data)
}

// QueueSink is a FIFO of events that the host polls.
type QueueSink struct {
	mu      sync.Mutex
	events  []Event
	max     int
	dropped atomic.Int64
	onDrop  func(Event)
}

// NewQueueSink creates a FIFO. max <= 0 means unbounded.
func NewQueueSink(max int, onDrop func(Event)) *QueueSink {
	return &QueueSink{max: max, onDrop: onDrop}
}

// Deliver implements Sink by appending to the tail.
// When the queue is full the new event is dropped.
func (q *QueueSink) Deliver(evt Event) {
	q.mu.Lock()
	if q.max > 0 && len(q.events) >= q.max {
		q.mu.Unlock()
		q.dropped.Add(1)
		if q.onDrop != nil {
			q.onDrop(evt)
		}
		return
	}
	q.events = append(q.events, evt)
	q.mu.Unlock()
}

// Len returns the number of queued events.
func (q *QueueSink) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// TakeNext removes and returns the oldest event.
func (q *QueueSink) TakeNext() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return Event{}, false
	}
	evt := q.events[0]
	q.events[0] = Event{}
	q.events = q.events[1:]
	if len(q.events) == 0 {
		q.events = nil
	}
	return evt, true
}

// Clear discards every queued event.
func (q *QueueSink) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = nil
}

// Dropped returns how many events were discarded because the queue was full.
func (q *QueueSink) Dropped() int64 {
	return q.dropped.Load()
}
