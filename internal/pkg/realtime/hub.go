// Package realtime fans payment state changes out to connected dashboard
// clients. The connection registry is process-local: in a horizontally
// scaled deployment a client connected to one instance does not see events
// produced by webhook traffic landing on another instance unless the Redis
// fan-out bridge is enabled.
package realtime

import (
	"sync"

	"github.com/google/uuid"
)

const (
	EventConnected             = "connected"
	EventContributionSucceeded = "contribution.succeeded"
	EventContributionFailed    = "contribution.failed"
	EventContributionRefunded  = "contribution.refunded"
)

// Event is a single dashboard notification derived from a state transition.
type Event struct {
	Name           string `json:"event"`
	ContributionID string `json:"contributionId"`
	ProjectID      uint   `json:"projectId"`
	OwnerID        uint   `json:"ownerId"`
	ContributorID  uint   `json:"contributorId"`
	AmountCents    int64  `json:"amountCents"`
	Status         string `json:"status"`
}

// connBuffer is the per-connection event backlog. Delivery is best-effort:
// a consumer that falls further behind silently misses events and must
// reconcile by re-fetching aggregate state on reconnect.
const connBuffer = 16

// Connection is one live dashboard stream with its subscription filters.
type Connection struct {
	ID      string
	UserID  uint
	OwnerID uint
	C       chan Event
}

func (c *Connection) matches(evt Event) bool {
	if c.UserID != 0 && c.UserID != evt.ContributorID {
		return false
	}
	if c.OwnerID != 0 && c.OwnerID != evt.OwnerID {
		return false
	}
	return true
}

// Hub is the in-process connection registry.
type Hub struct {
	mu      sync.RWMutex
	conns   map[string]*Connection
	publish func(Event) bool
}

var (
	globalHub *Hub
	hubOnce   sync.Once
)

// GetHub returns the global hub (singleton).
func GetHub() *Hub {
	hubOnce.Do(func() {
		globalHub = NewHub()
	})
	return globalHub
}

// NewHub creates an empty hub. Tests use this to avoid the singleton.
func NewHub() *Hub {
	return &Hub{conns: make(map[string]*Connection)}
}

// Register adds a connection scoped to the given filters. A zero value means
// "no filter" for that dimension.
func (h *Hub) Register(userID, ownerID uint) *Connection {
	conn := &Connection{
		ID:      uuid.New().String(),
		UserID:  userID,
		OwnerID: ownerID,
		C:       make(chan Event, connBuffer),
	}
	h.mu.Lock()
	h.conns[conn.ID] = conn
	h.mu.Unlock()
	return conn
}

// Unregister removes a connection and closes its channel. Safe to call more
// than once; Broadcast holds the read lock while sending, so no send can race
// the close.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conn, ok := h.conns[id]; ok {
		delete(h.conns, id)
		close(conn.C)
	}
}

// Broadcast delivers an event to every matching connection. With the Redis
// bridge enabled the event takes the pub/sub round trip instead, so every
// instance (including this one) fans it out to its local registry.
func (h *Hub) Broadcast(evt Event) {
	if h.publish != nil && h.publish(evt) {
		return
	}
	h.fanout(evt)
}

func (h *Hub) fanout(evt Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, conn := range h.conns {
		if !conn.matches(evt) {
			continue
		}
		select {
		case conn.C <- evt:
		default:
			// Slow consumer, drop the event for this connection.
		}
	}
}

// Len returns the number of registered connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}
