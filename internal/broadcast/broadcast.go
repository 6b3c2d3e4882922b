package broadcast

import (
	"context"
	"sync"

	"github.com/shrimpsizemoose/narvaro/internal/metrics"
	"github.com/shrimpsizemoose/narvaro/internal/models"
)

// Broadcaster forwards check-in events to connected observers. Delivery is
// best-effort and at-most-once; there is no replay buffer, so an observer
// joining after an event never sees it.
type Broadcaster interface {
	Publish(ctx context.Context, event models.CheckinEvent) error
	Subscribe(ctx context.Context) (<-chan models.CheckinEvent, func())
	Close() error
}

// Hub is the in-process fan-out. Every subscriber gets a buffered channel;
// a full buffer means the event is dropped for that subscriber, so a slow
// observer never blocks the publisher.
type Hub struct {
	mu     sync.Mutex
	subs   map[int]chan models.CheckinEvent
	nextID int
	buffer int
	closed bool
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		subs:   make(map[int]chan models.CheckinEvent),
		buffer: buffer,
	}
}

func (h *Hub) Publish(_ context.Context, event models.CheckinEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.subs {
		select {
		case ch <- event:
		default:
			metrics.EventsDropped.Inc()
		}
	}
	return nil
}

func (h *Hub) Subscribe(ctx context.Context) (<-chan models.CheckinEvent, func()) {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	ch := make(chan models.CheckinEvent, h.buffer)
	if !h.closed {
		h.subs[id] = ch
	} else {
		close(ch)
	}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if sub, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(sub)
		}
		h.mu.Unlock()
	}

	if ctx != nil && ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}

	return ch, cancel
}

func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
	return nil
}
