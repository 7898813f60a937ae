package event

import (
	"time"

	"github.com/google/uuid"
)

// Event describes something that happened inside the queue.
// Events are immutable once created.
type Event struct {
	// ID is a unique event identifier.
	ID string `json:"id"`
	// Type names the event, e.g. "REQUEST_SUCCESS".
	Type string `json:"type"`
	// Data is the human-readable payload.
	Data string `json:"data"`
	// Timestamp is when the event was created.
	Timestamp time.Time `json:"timestamp"`
}

// New creates an event with a fresh ID and the current time.
func New(eventType, data string) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now(),
	}
}

// IsZero reports whether e is the zero Event.
func (e Event) IsZero() bool {
	return e.ID == "" && e.Type == ""
}

// Event types emitted by the queue.
const (
	TypeLibraryLoaded   = "LIBRARY_LOADED"
	TypeLibraryUnloaded = "LIBRARY_UNLOADED"

	TypeSendRequestStart   = "SEND_REQUEST_START"
	TypeSendRequestSuccess = "SEND_REQUEST_SUCCESS"
	TypeSendRequestFailed  = "SEND_REQUEST_FAILED"

	TypeSendResponseStart   = "SEND_REQUEST_RESPONSE_START"
	TypeSendResponseSuccess = "SEND_REQUEST_RESPONSE_SUCCESS"
	TypeSendResponseFailed  = "SEND_REQUEST_RESPONSE_FAILED"

	TypeQueueAddSuccess = "QUEUE_ADD_SUCCESS"
	TypeQueueAddFailed  = "QUEUE_ADD_FAILED"

	TypeProcessQueueStart   = "PROCESS_QUEUE_START"
	TypeProcessQueueSuccess = "PROCESS_QUEUE_SUCCESS"
	TypeProcessQueueFailed  = "PROCESS_QUEUE_FAILED"

	TypeQueueStart     = "QUEUE_START"
	TypeQueueStatus    = "QUEUE_STATUS"
	TypeRequestSuccess = "REQUEST_SUCCESS"
	TypeRequestFailed  = "REQUEST_FAILED"
	TypeRequestDropped = "REQUEST_DROPPED"
	TypeQueueComplete  = "QUEUE_COMPLETE"

	TypeGetResponseSuccess  = "GET_RESPONSE_SUCCESS"
	TypeGetResponseNotFound = "GET_RESPONSE_NOT_FOUND"
	TypeGetResponseFailed   = "GET_RESPONSE_FAILED"

	TypeCleanStart    = "CLEAN_START"
	TypeCleanComplete = "CLEAN_COMPLETE"
	TypeCountResult   = "COUNT_RESULT"
)
