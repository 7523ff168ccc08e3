package stream

import (
	"context"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Hub fans spot events (validations, stage changes, photos) out to websocket
// subscribers, locally and across instances via Redis pub/sub.
type Hub struct {
	redis   *redis.Client
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex
}

type Client struct {
	SpotID string
	Send   chan []byte
}

func NewHub(redisClient *redis.Client) *Hub {
	h := &Hub{
		redis:   redisClient,
		clients: map[string]map[*Client]struct{}{},
	}

	if redisClient != nil {
		go h.subscribeRedis()
	}
	return h
}

func (h *Hub) Register(spotID string) *Client {
	client := &Client{
		SpotID: spotID,
		Send:   make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[spotID] == nil {
		h.clients[spotID] = map[*Client]struct{}{}
	}
	h.clients[spotID][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if spotClients, ok := h.clients[client.SpotID]; ok {
		delete(spotClients, client)
		if len(spotClients) == 0 {
			delete(h.clients, client.SpotID)
		}
	}
	close(client.Send)
}

func (h *Hub) Broadcast(spotID string, payload []byte) {
	h.mu.RLock()
	clients := h.clients[spotID]
	h.mu.RUnlock()

	for client := range clients {
		select {
		case client.Send <- payload:
		default:
		}
	}

	if h.redis != nil {
		err := h.redis.Publish(context.Background(), redisChannel(spotID), payload).Err()
		if err != nil {
			log.Printf("redis publish error: %v", err)
		}
	}
}

func (h *Hub) subscribeRedis() {
	ctx := context.Background()
	pubsub := h.redis.PSubscribe(ctx, "spots:*:events")
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		spotID := spotIDFromChannel(msg.Channel)
		h.mu.RLock()
		clients := h.clients[spotID]
		h.mu.RUnlock()
		for client := range clients {
			select {
			case client.Send <- []byte(msg.Payload):
			default:
			}
		}
	}
}

func redisChannel(spotID string) string {
	return "spots:" + spotID + ":events"
}

func spotIDFromChannel(ch string) string {
	// spots:{spot}:events
	const prefix = "spots:"
	const suffix = ":events"
	if len(ch) <= len(prefix)+len(suffix) {
		return ""
	}
	return ch[len(prefix) : len(ch)-len(suffix)]
}
