package transfer

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stablebridge/bridge_service/internal/domain/entities"
)

const subscriberBuffer = 64

// EventBus owns each transfer's ordered, append-only progress stream. Callers
// subscribe; nothing in the stage pipeline takes callbacks.
type EventBus struct {
	mu      sync.Mutex
	history map[uuid.UUID][]entities.ProgressEvent
	subs    map[uuid.UUID]map[int]chan entities.ProgressEvent
	nextSub int
}

// NewEventBus creates an empty event bus
func NewEventBus() *EventBus {
	return &EventBus{
		history: make(map[uuid.UUID][]entities.ProgressEvent),
		subs:    make(map[uuid.UUID]map[int]chan entities.ProgressEvent),
	}
}

// Publish appends the event to the transfer's history and fans it out to
// subscribers. Slow subscribers miss live events rather than blocking the
// driver; the full ordered history stays available via History.
func (b *EventBus) Publish(event entities.ProgressEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.history[event.TransferID] = append(b.history[event.TransferID], event)
	for _, ch := range b.subs[event.TransferID] {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe replays the transfer's history into a fresh channel and then
// streams live events. The returned cancel function releases the
// subscription and closes the channel.
func (b *EventBus) Subscribe(transferID uuid.UUID) (<-chan entities.ProgressEvent, func()) {
	b.mu.Lock()

	ch := make(chan entities.ProgressEvent, subscriberBuffer+len(b.history[transferID]))
	for _, event := range b.history[transferID] {
		ch <- event
	}

	if b.subs[transferID] == nil {
		b.subs[transferID] = make(map[int]chan entities.ProgressEvent)
	}
	id := b.nextSub
	b.nextSub++
	b.subs[transferID][id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[transferID][id]; ok {
			delete(b.subs[transferID], id)
			close(sub)
		}
	}
	return ch, cancel
}

// History returns a copy of the transfer's ordered event history
func (b *EventBus) History(transferID uuid.UUID) []entities.ProgressEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	events := b.history[transferID]
	out := make([]entities.ProgressEvent, len(events))
	copy(out, events)
	return out
}
