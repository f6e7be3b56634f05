// Package events fans snapshot lifecycle notifications out to connected
// dashboards.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/protocol-recon/backend/pkg/logger"
)

const (
	TypeSnapshotCreated = "snapshot_created"
	TypeSnapshotsPurged = "snapshots_purged"
)

type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Source     string    `json:"source"`
	SnapshotID int64     `json:"snapshot_id,omitempty"`
	Rows       int       `json:"rows,omitempty"`
	Deleted    int       `json:"deleted,omitempty"`
	At         time.Time `json:"at"`
}

// New stamps an event with an id and the current time.
func New(eventType, source string) Event {
	return Event{ID: uuid.NewString(), Type: eventType, Source: source, At: time.Now().UTC()}
}

// Hub delivers every published event to every subscriber. A subscriber that
// falls behind loses events rather than blocking publishers.
type Hub struct {
	buffer int

	mu      sync.RWMutex
	clients map[string]chan Event
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{buffer: buffer, clients: map[string]chan Event{}}
}

// Subscribe registers a client. Call cancel exactly once when done; the
// channel is closed by it.
func (h *Hub) Subscribe() (string, <-chan Event, func()) {
	id := uuid.NewString()
	ch := make(chan Event, h.buffer)

	h.mu.Lock()
	h.clients[id] = ch
	h.mu.Unlock()

	logger.Debug("Event subscriber registered", zap.String("client_id", id))

	var once sync.Once
	return id, ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.clients, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *Hub) Publish(e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, ch := range h.clients {
		select {
		case ch <- e:
		default:
			logger.Warn("Dropping event for slow subscriber",
				zap.String("client_id", id),
				zap.String("type", e.Type),
			)
		}
	}
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
