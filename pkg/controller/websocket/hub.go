package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/secmon-lab/agentrun/pkg/domain/interfaces"
	"github.com/secmon-lab/agentrun/pkg/domain/model/session"
	wsmodel "github.com/secmon-lab/agentrun/pkg/domain/model/websocket"
	"github.com/secmon-lab/agentrun/pkg/domain/types"
	"github.com/secmon-lab/agentrun/pkg/utils/async"
	"github.com/secmon-lab/agentrun/pkg/utils/logging"
)

// Hub maintains history subscribers grouped by scope and fans catalog
// change notifications out to them
type Hub struct {
	history interfaces.HistoryUsecases

	// Registered clients grouped by scope
	scopes map[types.Scope]*scopeClients

	// Register requests from the clients
	register chan *registration

	// Unregister requests from clients
	unregister chan *Client

	// Broadcast message to clients of a specific scope
	broadcast chan *BroadcastMessage

	// Mutex to protect concurrent access to scopes
	mu sync.RWMutex

	// Context for graceful shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

type scopeClients struct {
	clients map[*Client]bool
	// cancel stops the change subscription of the scope
	cancel context.CancelFunc
}

// Client is a middleman between the websocket connection and the hub
type Client struct {
	hub *Hub

	// The websocket connection
	conn *websocket.Conn

	// Buffered channel of outbound messages
	send chan []byte

	scope    types.Scope
	clientID string

	// Context for this client
	ctx    context.Context
	cancel context.CancelFunc

	// Mutex to protect send channel
	mu sync.Mutex
}

type registration struct {
	client   *Client
	accepted chan bool
}

// BroadcastMessage is a message to all clients of a scope
type BroadcastMessage struct {
	Scope   types.Scope
	Message []byte
}

const (
	// Maximum number of clients per scope
	maxClientsPerScope = 32

	// Buffer size for client send channel
	clientSendBufferSize = 64
)

func NewHub(ctx context.Context, history interfaces.HistoryUsecases) *Hub {
	ctx, cancel := context.WithCancel(ctx)
	return &Hub{
		history:    history,
		scopes:     make(map[types.Scope]*scopeClients),
		register:   make(chan *registration),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	logger := logging.From(h.ctx)
	logger.Info("history hub started")

	defer func() {
		logger.Info("history hub stopped")
		h.cancel()
	}()

	for {
		select {
		case <-h.ctx.Done():
			return

		case reg := <-h.register:
			reg.accepted <- h.registerClient(reg.client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastToScope(message)
		}
	}
}

// registerClient adds client to its scope group. A rejected client is
// cancelled and reported false.
func (h *Hub) registerClient(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	logger := logging.From(h.ctx)

	group, exists := h.scopes[client.scope]
	if !exists {
		ctx, cancel := context.WithCancel(h.ctx)
		changes, err := h.history.SubscribeHistory(ctx, client.scope)
		if err != nil {
			cancel()
			logger.Error("failed to subscribe history changes", "error", err, "scope", client.scope)
			client.cancel()
			return false
		}

		group = &scopeClients{clients: make(map[*Client]bool), cancel: cancel}
		h.scopes[client.scope] = group
		go h.relay(client.scope, changes)
	}

	if len(group.clients) >= maxClientsPerScope {
		logger.Warn("maximum clients reached for scope",
			"scope", client.scope,
			"max_clients", maxClientsPerScope)
		client.cancel()
		return false
	}

	group.clients[client] = true
	logger.Debug("history client registered",
		"scope", client.scope,
		"client_id", client.clientID,
		"total_clients", len(group.clients))
	return true
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if group, exists := h.scopes[client.scope]; exists {
		if _, exists := group.clients[client]; exists {
			delete(group.clients, client)
			client.closeSend()

			if len(group.clients) == 0 {
				group.cancel()
				delete(h.scopes, client.scope)
			}
		}
	}

	client.cancel()
}

// relay turns catalog changes of scope into history_changed frames
func (h *Hub) relay(scope types.Scope, changes <-chan session.CatalogChange) {
	for change := range changes {
		data, err := wsmodel.NewHistoryEvent(change.Scope, change.Origin).ToBytes()
		if err != nil {
			logging.From(h.ctx).Error("failed to marshal history event", "error", err)
			continue
		}
		h.BroadcastToScope(scope, data)
	}
}

func (h *Hub) broadcastToScope(message *BroadcastMessage) {
	h.mu.RLock()
	group, exists := h.scopes[message.Scope]
	var clients []*Client
	if exists {
		for client := range group.clients {
			clients = append(clients, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range clients {
		if !client.trySend(message.Message) {
			// slow client, drop it
			async.Dispatch(h.ctx, func(context.Context) error {
				h.Unregister(client)
				return nil
			})
		}
	}
}

// BroadcastToScope sends a message to all clients of scope
func (h *Hub) BroadcastToScope(scope types.Scope, message []byte) {
	select {
	case h.broadcast <- &BroadcastMessage{Scope: scope, Message: message}:
	case <-h.ctx.Done():
	}
}

// ClientCount returns the number of clients of scope
func (h *Hub) ClientCount(scope types.Scope) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if group, exists := h.scopes[scope]; exists {
		return len(group.clients)
	}
	return 0
}

func (h *Hub) NewClient(conn *websocket.Conn, scope types.Scope) *Client {
	ctx, cancel := context.WithCancel(h.ctx)
	return &Client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, clientSendBufferSize),
		scope:    scope,
		clientID: uuid.New().String(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Register adds client to the hub and reports whether it was accepted. The
// caller closes the connection of a rejected client.
func (h *Hub) Register(client *Client) bool {
	reg := &registration{client: client, accepted: make(chan bool, 1)}
	select {
	case h.register <- reg:
	case <-h.ctx.Done():
		client.cancel()
		return false
	}

	select {
	case ok := <-reg.accepted:
		return ok
	case <-h.ctx.Done():
		client.cancel()
		return false
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// Close gracefully shuts down the hub
func (h *Hub) Close() error {
	h.cancel()

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, group := range h.scopes {
		group.cancel()
		for client := range group.clients {
			client.cancel()
			client.closeSend()
		}
	}
	h.scopes = make(map[types.Scope]*scopeClients)
	return nil
}

func (c *Client) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.send == nil {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.send != nil {
		close(c.send)
		c.send = nil
	}
}

// readPump only serves control frames; history clients do not send data
func (h *Hub) readPump(client *Client) {
	defer func() {
		h.Unregister(client)
		_ = client.conn.Close()
	}()

	client.conn.SetReadLimit(maxMessageSize)
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(client *Client) {
	logger := logging.From(client.ctx)
	ticker := time.NewTicker(pingPeriod)

	client.mu.Lock()
	send := client.send
	client.mu.Unlock()

	defer func() {
		ticker.Stop()
		_ = client.conn.Close()
	}()

	for {
		select {
		case <-client.ctx.Done():
			return

		case message, ok := <-send:
			if err := client.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Debug("failed to write history event", "error", err)
				return
			}

		case <-ticker.C:
			if err := client.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
