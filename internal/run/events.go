package run

import (
	"log"
	"strings"
	"sync"

	"sqlpilot/internal/pipeline"
)

// EventKind classifies run events published to the interactive surface.
type EventKind string

const (
	EventStatus    EventKind = "status"
	EventWaiting   EventKind = "waiting_confirmation"
	EventCompleted EventKind = "completed"
	EventError     EventKind = "error"
)

// Event is one message from a run worker to the interactive surface.
// Payload carries the text under review (rewritten query or generated SQL)
// on waiting events.
type Event struct {
	RunID   string         `json:"run_id"`
	Kind    EventKind      `json:"kind"`
	Stage   pipeline.Stage `json:"stage,omitempty"`
	Message string         `json:"message,omitempty"`
	Payload string         `json:"payload,omitempty"`
}

// EventBroker manages per-run event channels. Publishing never blocks the
// worker: when a consumer falls behind, events are dropped with a log line.
type EventBroker struct {
	mu     sync.RWMutex
	events map[string]chan Event
}

func NewEventBroker() *EventBroker {
	return &EventBroker{events: make(map[string]chan Event)}
}

// Allocate creates and registers a new event channel for a run.
func (b *EventBroker) Allocate(runID string, size int) chan Event {
	if size <= 0 {
		size = 1
	}
	ch := make(chan Event, size)
	b.mu.Lock()
	b.events[strings.TrimSpace(runID)] = ch
	b.mu.Unlock()
	return ch
}

// Get returns the event channel for a run.
func (b *EventBroker) Get(runID string) (chan Event, bool) {
	b.mu.RLock()
	ch, ok := b.events[strings.TrimSpace(runID)]
	b.mu.RUnlock()
	return ch, ok
}

// Publish sends an event to the run's channel without blocking.
func (b *EventBroker) Publish(ev Event) {
	ch, ok := b.Get(ev.RunID)
	if !ok {
		return
	}
	select {
	case ch <- ev:
	default:
		log.Printf("run %s: dropping %s event, consumer is behind", ev.RunID, ev.Kind)
	}
}

// Release removes a run's event channel.
func (b *EventBroker) Release(runID string) {
	b.mu.Lock()
	delete(b.events, strings.TrimSpace(runID))
	b.mu.Unlock()
}
