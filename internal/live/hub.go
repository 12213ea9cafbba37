package live

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Hub routes live events to the websocket clients registered in this process.
// Membership changes only on connection open/close. A project with no local
// subscribers costs nothing beyond a map lookup per published event.
type Hub struct {
	mu      sync.Mutex
	clients map[int64]map[*Client]bool
	log     *zap.Logger
}

// NewHub creates a new Hub
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[int64]map[*Client]bool),
		log:     log,
	}
}

// Run subscribes to every project live channel and forwards payloads to local
// clients until the context is canceled. On exit all clients are closed.
func (h *Hub) Run(ctx context.Context, rdb *redis.Client) {
	pubsub := rdb.PSubscribe(ctx, channelPrefix+"*")
	defer func() {
		if err := pubsub.Close(); err != nil {
			h.log.Warn("Failed to close pub/sub subscription", zap.Error(err))
		}
		h.closeAll()
	}()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			h.log.Info("Live hub shutting down")
			return
		case msg, ok := <-ch:
			if !ok {
				h.log.Warn("Live hub subscription closed")
				return
			}
			projectID, ok := projectFromChannel(msg.Channel)
			if !ok {
				continue
			}
			h.Broadcast(projectID, []byte(msg.Payload))
		}
	}
}

// Register adds a client to its project's channel
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.projectID] == nil {
		h.clients[c.projectID] = make(map[*Client]bool)
	}
	h.clients[c.projectID][c] = true
	h.log.Info("Live subscriber connected",
		zap.Int64("project_id", c.projectID),
		zap.Int("subscribers", len(h.clients[c.projectID])))
}

// Unregister removes a client and closes its send channel. Safe to call more
// than once per client; every connection exit path funnels through here.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subscribers, ok := h.clients[c.projectID]
	if !ok || !subscribers[c] {
		return
	}
	delete(subscribers, c)
	if len(subscribers) == 0 {
		delete(h.clients, c.projectID)
	}
	close(c.send)
	h.log.Info("Live subscriber disconnected",
		zap.Int64("project_id", c.projectID),
		zap.Int("subscribers", len(subscribers)))
}

// Broadcast delivers a payload to every subscriber of a project. Each client
// has a bounded buffer; when one is full the oldest buffered payload is
// dropped, never the newest, and the publisher is never blocked.
func (h *Hub) Broadcast(projectID int64, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients[projectID] {
		c.enqueue(payload)
	}
}

// SubscriberCount returns the number of clients on a project's channel
func (h *Hub) SubscriberCount(projectID int64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[projectID])
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	closed := 0
	for projectID, subscribers := range h.clients {
		for c := range subscribers {
			close(c.send)
			closed++
		}
		delete(h.clients, projectID)
	}
	if closed > 0 {
		h.log.Info("Closed all live subscribers", zap.Int("count", closed))
	}
}
