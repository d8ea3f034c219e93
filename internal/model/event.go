package model

import "time"

// EventType names a change applied to the task collection.
type EventType string

// Task event types.
const (
	EventSaved       EventType = "saved"
	EventDeleted     EventType = "deleted"
	EventDeletedAll  EventType = "deleted_all"
	EventCompleted   EventType = "completed"
	EventActivated   EventType = "activated"
	EventCleared     EventType = "cleared"
	EventInvalidated EventType = "invalidated"
)

// TaskEvent is pushed to WebSocket subscribers whenever the task collection
// changes or the cached snapshot is dropped.
type TaskEvent struct {
	Type      EventType `json:"type"`
	TaskID    string    `json:"task_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewTaskEvent creates an event stamped with the current UTC time.
func NewTaskEvent(eventType EventType, taskID string) TaskEvent {
	return TaskEvent{
		Type:      eventType,
		TaskID:    taskID,
		Timestamp: time.Now().UTC(),
	}
}

// WebSocket control message types.
const (
	WSMessageTypePing  = "ping"
	WSMessageTypePong  = "pong"
	WSMessageTypeError = "error"
)

// WebSocketMessage is a control message exchanged with WebSocket clients.
type WebSocketMessage struct {
	Type      string    `json:"type"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
