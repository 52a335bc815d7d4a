package service

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventType labels engine lifecycle events.
type EventType string

const (
	EventCreated    EventType = "memory.created"
	EventReinforced EventType = "memory.reinforced"
	EventPenalized  EventType = "memory.penalized"
	EventPruned     EventType = "memory.pruned"
	EventAbstracted EventType = "memory.abstracted"
)

// Event is a lifecycle notification emitted by the services.
type Event struct {
	Type     EventType `json:"type"`
	MemoryID uuid.UUID `json:"memory_id"`
	At       time.Time `json:"at"`
}

// Bus fans engine events out to one consumer over a bounded channel.
// Publishing never blocks: when the consumer falls behind, events are
// dropped and counted rather than stalling a write path.
type Bus struct {
	ch     chan Event
	logger *zap.Logger

	mu      sync.Mutex
	dropped int64
}

func NewBus(capacity int, logger *zap.Logger) *Bus {
	if capacity <= 0 {
		capacity = 256
	}
	return &Bus{ch: make(chan Event, capacity), logger: logger}
}

func (b *Bus) Publish(t EventType, memoryID uuid.UUID) {
	ev := Event{Type: t, MemoryID: memoryID, At: time.Now().UTC()}
	select {
	case b.ch <- ev:
	default:
		b.mu.Lock()
		b.dropped++
		n := b.dropped
		b.mu.Unlock()
		b.logger.Warn("event dropped, consumer falling behind",
			zap.String("type", string(t)),
			zap.Int64("total_dropped", n))
	}
}

// Events returns the consumer side of the bus.
func (b *Bus) Events() <-chan Event {
	return b.ch
}

// Dropped reports how many events were discarded.
func (b *Bus) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
