package websocket

import (
	"context"
	"sync"

	"todo-system/internal/metrics"
	"todo-system/pkg/logger"

	"go.uber.org/zap"
)

// Channels every authenticated client joins on connect.
const (
	ChannelTodos         = "todos"
	ChannelExternalTodos = "external-todos"
	ChannelUserPrefix    = "user:"
)

// subscriptionRequest represents a channel subscription/unsubscription request
type subscriptionRequest struct {
	client    *Client
	channel   string
	subscribe bool
}

// Hub manages WebSocket client connections and channel subscriptions
type Hub struct {
	mu sync.RWMutex

	// clients maps client ID to client (for cleanup)
	clients map[string]*Client

	// channels maps channel name to set of clients subscribed to it
	channels map[string]map[*Client]struct{}

	register     chan *Client
	unregister   chan *Client
	subscription chan subscriptionRequest
	// done is closed once Run has returned.
	done chan struct{}

	metrics *metrics.Metrics
	logger  *logger.Logger
}

func NewHub(m *metrics.Metrics, l *logger.Logger) *Hub {
	if l == nil {
		l = logger.GetGlobalLogger()
	}
	return &Hub{
		clients:      make(map[string]*Client),
		channels:     make(map[string]map[*Client]struct{}),
		register:     make(chan *Client, 256),
		unregister:   make(chan *Client, 256),
		subscription: make(chan subscriptionRequest, 512),
		done:         make(chan struct{}),
		metrics:      m,
		logger:       l,
	}
}

// Run processes registrations until ctx is done, then drops every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.closeAll()
			h.drainPending()
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case req := <-h.subscription:
			if req.subscribe {
				h.subscribeToChannel(req.client, req.channel)
			} else {
				h.unsubscribeFromChannel(req.client, req.channel)
			}
		}
	}
}

// Register adds a client. Channels the client subscribed to before
// registering are joined in the same step. Once the hub has stopped the
// client's send queue is closed instead, so its write loop ends.
func (h *Hub) Register(client *Client) {
	if h.stopped() {
		client.closeSend()
		return
	}
	select {
	case h.register <- client:
	case <-h.done:
		client.closeSend()
	}
}

func (h *Hub) Unregister(client *Client) {
	if h.stopped() {
		client.closeSend()
		return
	}
	select {
	case h.unregister <- client:
	case <-h.done:
		client.closeSend()
	}
}

func (h *Hub) Subscribe(client *Client, channel string) {
	h.request(subscriptionRequest{client: client, channel: channel, subscribe: true})
}

func (h *Hub) Unsubscribe(client *Client, channel string) {
	h.request(subscriptionRequest{client: client, channel: channel, subscribe: false})
}

func (h *Hub) request(req subscriptionRequest) {
	if h.stopped() {
		return
	}
	select {
	case h.subscription <- req:
	case <-h.done:
	}
}

func (h *Hub) stopped() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Broadcast sends a message to all clients subscribed to a channel
func (h *Hub) Broadcast(channel string, payload []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for c := range h.channels[channel] {
		if c.SendMessage(payload) {
			sent++
		} else {
			h.logger.Warn(context.Background(), "client send buffer full",
				zap.String("client_id", c.ID),
				zap.String("channel", channel),
			)
		}
	}
	return sent
}

func (h *Hub) BroadcastToUser(userID string, payload []byte) {
	h.Broadcast(ChannelUserPrefix+userID, payload)
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) GetChannelSubscriberCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client
	for _, channel := range client.GetChannels() {
		h.join(client, channel)
	}
	h.metrics.ClientConnected()
	h.logger.Info(context.Background(), "websocket client connected",
		zap.String("client_id", client.ID),
		zap.String("user_id", client.UserID),
	)
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	for _, channel := range client.GetChannels() {
		h.leave(client, channel)
	}
	delete(h.clients, client.ID)
	client.closeSend()

	h.metrics.ClientDisconnected()
	h.logger.Info(context.Background(), "websocket client disconnected",
		zap.String("client_id", client.ID),
		zap.String("user_id", client.UserID),
	)
}

func (h *Hub) subscribeToChannel(client *Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// requests can arrive after the client left
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	h.join(client, channel)
	client.Subscribe(channel)
}

func (h *Hub) unsubscribeFromChannel(client *Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.leave(client, channel)
	client.Unsubscribe(channel)
}

func (h *Hub) join(client *Client, channel string) {
	if _, ok := h.channels[channel]; !ok {
		h.channels[channel] = make(map[*Client]struct{})
	}
	h.channels[channel][client] = struct{}{}
}

func (h *Hub) leave(client *Client, channel string) {
	if subscribers, ok := h.channels[channel]; ok {
		delete(subscribers, client)
		if len(subscribers) == 0 {
			delete(h.channels, channel)
		}
	}
}

// drainPending closes clients whose registration was queued but never
// handled before Run stopped.
func (h *Hub) drainPending() {
	for {
		select {
		case client := <-h.register:
			client.closeSend()
		case client := <-h.unregister:
			client.closeSend()
		default:
			return
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		client.closeSend()
		h.metrics.ClientDisconnected()
	}
	h.clients = make(map[string]*Client)
	h.channels = make(map[string]map[*Client]struct{})
}
