package event

import (
	"log/slog"
)

// Delivery selects which sinks an emitted event reaches.
type Delivery struct {
	// Callback delivers synchronously through the registered callback.
	Callback bool
	// Queued appends the event to the pollable FIFO.
	Queued bool
}

var (
	// DeliverAll reaches both the callback and the FIFO.
	DeliverAll = Delivery{Callback: true, Queued: true}
	// DeliverNone drops the event (it is still logged).
	DeliverNone = Delivery{}
	// DeliverCallback reaches only the callback.
	DeliverCallback = Delivery{Callback: true}
	// DeliverQueued reaches only the FIFO.
	DeliverQueued = Delivery{Queued: true}
)

// Emitter is the narrow interface components use to report events.
type Emitter interface {
	Emit(d Delivery, eventType, data string) Event
}

// BusConfig configures bus behavior.
type BusConfig struct {
	// MaxQueued limits the pollable FIFO length.
	// Default: 0 (unlimited)
	MaxQueued int

	// Logger receives every emitted event at debug level.
	// Default: slog.Default()
	Logger *slog.Logger

	// OnDrop is called when the FIFO is full and an event is discarded.
	OnDrop func(evt Event)
}

// Compile-time interface checks.
var (
	_ Emitter = (*Bus)(nil)
	_ Emitter = Nop{}
	_ Sink    = (*CallbackSink)(nil)
	_ Sink    = (*QueueSink)(nil)
)

// Bus fans emitted events out to the callback and queue sinks.
type Bus struct {
	callback *CallbackSink
	queue    *QueueSink
	logger   *slog.Logger
}

// NewBus creates a bus with an empty FIFO and no callback.
func NewBus(config BusConfig) *Bus {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "event"))

	return &Bus{
		callback: NewCallbackSink(logger),
		queue:    NewQueueSink(config.MaxQueued, config.OnDrop),
		logger:   logger,
	}
}

// Emit creates an event and delivers it to the sinks selected by d.
// The callback runs before the event is queued.
func (b *Bus) Emit(d Delivery, eventType, data string) Event {
	evt := New(eventType, data)

	b.logger.Debug("event",
		slog.String("event_type", eventType),
		slog.String("data", data),
		slog.Bool("callback", d.Callback),
		slog.Bool("queued", d.Queued),
	)

	if d.Callback {
		b.callback.Deliver(evt)
	}
	if d.Queued {
		b.queue.Deliver(evt)
	}
	return evt
}

// Register replaces the synchronous callback. nil disables it.
func (b *Bus) Register(cb Callback) {
	b.callback.Register(cb)
}

// Len returns the number of events waiting in the FIFO.
func (b *Bus) Len() int {
	return b.queue.Len()
}

// TakeNext removes and returns the oldest queued event.
func (b *Bus) TakeNext() (Event, bool) {
	return b.queue.TakeNext()
}

// Clear empties the FIFO.
func (b *Bus) Clear() {
	b.queue.Clear()
}

// Dropped returns how many events the FIFO discarded because it was full.
func (b *Bus) Dropped() int64 {
	return b.queue.Dropped()
}

// Nop is an Emitter that discards everything.
type Nop struct{}

// Emit implements Emitter.
func (Nop) Emit(_ Delivery, eventType, data string) Event {
	return Event{Type: eventType, Data: data}
}
