package api

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/lutron-gateway/internal/bridges/lutron"
	"github.com/nerrad567/lutron-gateway/internal/infrastructure/config"
	"github.com/nerrad567/lutron-gateway/internal/infrastructure/logging"
)

// Channels a client can subscribe to, besides a bare event type such as
// "OneZoneStatus" or "ButtonAction".
const (
	// ChannelAll receives every event from every bridge.
	ChannelAll = "all"

	channelBridgePrefix = "bridge:"
)

// BridgeChannel returns the channel carrying every event of one bridge.
func BridgeChannel(bridgeID string) string {
	return channelBridgePrefix + bridgeID
}

// eventChannels lists the channels an envelope is delivered on.
func eventChannels(env lutron.Envelope) []string {
	return []string{env.Header.MessageBodyType, BridgeChannel(env.Header.Bridge), ChannelAll}
}

// Hub fans bridge events out to subscribed WebSocket clients.
// It implements gateway.Broadcaster.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*WSClient]struct{}
}

// NewHub returns an empty hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{
		cfg:     cfg,
		logger:  logger.With("component", "websocket"),
		clients: make(map[*WSClient]struct{}),
	}
}

// Run waits for ctx and then drops every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*WSClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.closeSend()
		if c.conn != nil {
			c.conn.Close()
		}
	}
}

// Register adds a client.
func (h *Hub) Register(c *WSClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "subject", c.subject, "clients", n)
}

// Unregister removes a client and closes its outbound queue. Calling it
// twice is harmless.
func (h *Hub) Unregister(c *WSClient) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	c.closeSend()
	h.logger.Debug("websocket client disconnected", "subject", c.subject, "clients", n)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues env for every client following its event type, its
// bridge channel or ChannelAll. A client gets each event once; a client
// whose queue is full misses it.
func (h *Hub) Broadcast(env lutron.Envelope) {
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: env.Header.MessageBodyType,
		Bridge:    env.Header.Bridge,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   env,
	})
	if err != nil {
		h.logger.Error("encoding websocket event", "error", err)
		return
	}
	channels := eventChannels(env)

	h.mu.RLock()
	targets := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		if c.follows(channels) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	dropped := 0
	for _, c := range targets {
		if !c.trySend(data) {
			dropped++
		}
	}
	if len(targets) > 0 {
		h.logger.Debug("websocket event sent",
			"event_type", env.Header.MessageBodyType,
			"bridge", env.Header.Bridge,
			"recipients", len(targets)-dropped,
			"dropped", dropped,
		)
	}
}
