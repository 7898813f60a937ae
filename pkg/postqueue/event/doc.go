/*
Package event delivers lifecycle notifications to the host.

Every operation of the queue narrates itself as an Event: a type such as
"QUEUE_START" or "REQUEST_FAILED" plus a human-readable data string. Events
reach the host through two independent sinks:

  - CallbackSink invokes a registered Callback synchronously on the
    emitting goroutine. Zero latency, but the host must tolerate being
    called from a background goroutine.
  - QueueSink appends events to an in-memory FIFO that the host drains by
    polling with TakeNext. Safe for single-threaded hosts.

The Delivery value passed to Bus.Emit selects the sinks per call:

	bus := event.NewBus(event.BusConfig{})
	bus.Register(func(eventType, data string) {
	    fmt.Println(eventType, data)
	})

	bus.Emit(event.DeliverAll, event.TypeQueueStart, "draining")
	bus.Emit(event.Delivery{Queued: true}, event.TypeCountResult, "3")

	for {
	    evt, ok := bus.TakeNext()
	    if !ok {
	        break
	    }
	    handle(evt)
	}

# Thread Safety

Emit, Register, Len, TakeNext and Clear are safe for concurrent use. The
FIFO lock is held only while the list is mutated or read, never while the
callback runs.
*/
package event
