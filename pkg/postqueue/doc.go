/*
Package postqueue is a durable outbound HTTP request queue with a response
cache.

A host hands JSON bodies and target URLs to a Client. They are either posted
immediately or stored in an embedded SQLite database and delivered later by
a drain, which survives restarts and retries failed posts on the next run.
Replies to queued requests that expect one are cached under (URL, body)
until the host takes them.

# Quick Start

	client, err := postqueue.Open(
	    postqueue.WithDatabasePath("queue.db"),
	    postqueue.WithEventCallback(func(typ, data string) {
	        log.Printf("%s: %s", typ, data)
	    }),
	)
	if err != nil {
	    return err
	}
	defer client.Close(context.Background())

	client.Enqueue(ctx, "https://stats.example.com/ingest", `{"v":1}`, true)
	client.StartQueueProcessing()
	client.WaitForProcessing()

	reply := client.TakeResponse(ctx, "https://stats.example.com/ingest", `{"v":1}`)

# Entry Points

Every entry point reports through a result code (CodeOK, CodeError) or
text, never a Go error, and emits events describing what happened:

  - SendRequest, SendRequestWithResponse: immediate posts
  - Enqueue: durable store for the next drain
  - StartQueueProcessing: background drain
  - TakeResponse: destructive read from the response cache
  - PurgeOlderThan, CountOlderThan: retention by age in hours

# Events

Events reach a synchronous callback (RegisterEventCallback), a pollable FIFO
(TakeNextEvent), or both. Each call may narrow the destination:

	client.SendRequest(ctx, url, body, postqueue.WithDelivery(event.DeliverQueued))

# Retries

By default failed entries stay queued forever and are retried on every
drain. A RetryPolicy adds backoff and a maximum number of attempts:

	policy := errors.NewBackoffPolicy(errors.NewRetryConfig(
	    errors.WithMaxAttempts(10),
	    errors.WithInitialBackoff(30*time.Second),
	))
	client, _ := postqueue.Open(postqueue.WithRetryPolicy(policy))

The host boundary working on UTF-16 strings lives in package host.
*/
package postqueue
