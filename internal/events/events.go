package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	TransactionRecorded = "inventory.transaction_recorded"
	TaskCreated         = "replen.task_created"
	TaskCompleted       = "replen.task_completed"
	TaskBlocked         = "replen.task_blocked"
	TaskCancelled       = "replen.task_cancelled"
)

// Event is emitted after the state change it describes has been committed.
type Event struct {
	ID        string    `json:"event_id"`
	Type      string    `json:"event_type"`
	Key       string    `json:"key"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

func New(eventType, key string, payload any) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Key:       key,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// Publisher never reports delivery failures to the caller.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

type Handler func(ctx context.Context, ev Event) error

type noop struct{}

func (noop) Publish(context.Context, Event) {}

// Noop discards every event.
var Noop Publisher = noop{}
