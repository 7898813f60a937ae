// Package host exposes a Client to hosts that exchange NUL-terminated UTF-16
// strings, such as scripting runtimes embedding a native library.
//
// Arguments are decoded up to the first NUL. Text results are returned
// NUL-terminated. URL and body arguments are limited to codec.MaxURLUnits
// and codec.MaxBodyUnits code units.
package host

import (
	"context"

	"github.com/randalmurphal/postqueue/pkg/postqueue"
	"github.com/randalmurphal/postqueue/pkg/postqueue/codec"
)

// WideCallback receives events as NUL-terminated UTF-16 strings.
// The slices are only valid for the duration of the call.
type WideCallback func(eventType, data []uint16)

// Library is the wide-string host boundary over a Client.
type Library struct {
	client *postqueue.Client
}

// Load opens a Client with opts and wraps it.
func Load(opts ...postqueue.Option) (*Library, error) {
	client, err := postqueue.Open(opts...)
	if err != nil {
		return nil, err
	}
	return &Library{client: client}, nil
}

// Wrap uses an already open Client.
func Wrap(client *postqueue.Client) *Library {
	return &Library{client: client}
}

// Client returns the wrapped Client.
func (l *Library) Client() *postqueue.Client {
	return l.client
}

// Unload closes the wrapped Client.
func (l *Library) Unload(ctx context.Context) error {
	return l.client.Close(ctx)
}

// SetEventCallback registers cb for every event. nil disables the callback.
func (l *Library) SetEventCallback(cb WideCallback) {
	if cb == nil {
		l.client.RegisterEventCallback(nil)
		return
	}
	l.client.RegisterEventCallback(func(eventType, data string) {
		cb(codec.EncodeZ(eventType), codec.EncodeZ(data))
	})
}

// SendHTTPRequest posts immediately. Returns 0 on success, 1 on failure.
func (l *Library) SendHTTPRequest(ctx context.Context, url, body []uint16) int {
	return l.client.SendRequest(ctx, codec.Decode(url), codec.Decode(body))
}

// SendHTTPRequestResponse posts immediately and returns the reply or an
// "ERROR:" text.
func (l *Library) SendHTTPRequestResponse(ctx context.Context, url, body []uint16) []uint16 {
	return codec.EncodeZ(l.client.SendRequestWithResponse(ctx, codec.Decode(url), codec.Decode(body)))
}

// SendHTTPRequestQueue stores a request for the next drain.
// Returns 0 on success, 1 on failure.
func (l *Library) SendHTTPRequestQueue(ctx context.Context, url, body []uint16, expectResponse bool) int {
	return l.client.Enqueue(ctx, codec.Decode(url), codec.Decode(body), expectResponse)
}

// ProcessHTTPQueue starts a background drain. Returns 0 if it started.
func (l *Library) ProcessHTTPQueue() int {
	return l.client.StartQueueProcessing()
}

// GetHTTPResponse takes a cached reply, or returns an "ERROR:" text.
func (l *Library) GetHTTPResponse(ctx context.Context, url, body []uint16) []uint16 {
	return codec.EncodeZ(l.client.TakeResponse(ctx, codec.Decode(url), codec.Decode(body)))
}

// CleanOldHTTPItems deletes rows older than hoursOld and returns how many.
func (l *Library) CleanOldHTTPItems(ctx context.Context, hoursOld int, cleanResponses bool) int {
	return l.client.PurgeOlderThan(ctx, hoursOld, cleanResponses)
}

// GetOldHTTPItemsCount counts rows older than hoursOld.
func (l *Library) GetOldHTTPItemsCount(ctx context.Context, hoursOld int, checkResponses bool) int {
	return l.client.CountOlderThan(ctx, hoursOld, checkResponses)
}

// GetPendingEventCount returns the number of events waiting to be polled.
func (l *Library) GetPendingEventCount() int {
	return l.client.PendingEventCount()
}

// GetNextEvent moves the oldest queued event into typeBuf and dataBuf,
// truncating to fit. It returns 1 if an event was copied and 0 if the queue
// was empty. Buffers without room for the terminator are left untouched.
func (l *Library) GetNextEvent(typeBuf, dataBuf []uint16) int {
	evt, ok := l.client.TakeNextEvent()
	if !ok {
		return 0
	}
	codec.CopyZ(typeBuf, evt.Type)
	codec.CopyZ(dataBuf, evt.Data)
	return 1
}

// ClearEvents discards every queued event. It always returns 1.
func (l *Library) ClearEvents() int {
	l.client.ClearEvents()
	return 1
}
