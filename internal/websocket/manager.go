// Package websocket pushes document change events to connected UI clients.
package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"blogdraft-server/internal/config"
	"blogdraft-server/internal/events"
	"blogdraft-server/internal/logger"
	"blogdraft-server/internal/metrics"
)

type ClientMessage struct {
	Client  *Client
	Message []byte
}

type Manager struct {
	clients        map[string]*Client
	userIndex      map[string]map[string]bool
	clientsMutex   sync.RWMutex
	register       chan *Client
	unregister     chan *Client
	handleMessage  chan *ClientMessage
	broadcast      chan *events.Event
	done           chan struct{}
	maxConnPerUser int
	maxMessageSize int64
	writeWait      time.Duration
	pongWait       time.Duration
	pingPeriod     time.Duration
	log            *logger.Logger
	metrics        *metrics.Metrics
}

func NewManager(cfg config.WebSocketConfig, log *logger.Logger, m *metrics.Metrics) *Manager {
	return &Manager{
		clients:        make(map[string]*Client),
		userIndex:      make(map[string]map[string]bool),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		handleMessage:  make(chan *ClientMessage),
		broadcast:      make(chan *events.Event, 256),
		done:           make(chan struct{}),
		maxConnPerUser: cfg.MaxConnPerUser,
		maxMessageSize: cfg.MaxMessageSize,
		writeWait:      cfg.WriteWait,
		pongWait:       cfg.PongWait,
		pingPeriod:     cfg.PingPeriod,
		log:            log.With("component", "WebSocketManager"),
		metrics:        m,
	}
}

// Run owns all client bookkeeping until ctx ends, then disconnects every
// client. It must be called at most once.
func (m *Manager) Run(ctx context.Context) {
	defer close(m.done)
	for {
		select {
		case <-ctx.Done():
			m.closeAll()
			return

		case client := <-m.register:
			m.registerClient(client)

		case client := <-m.unregister:
			m.unregisterClient(client)

		case clientMsg := <-m.handleMessage:
			m.processMessage(clientMsg)

		case e := <-m.broadcast:
			m.broadcastEvent(e)
		}
	}
}

// Register hands client to the manager. It returns false once the manager
// has stopped; the caller then owns the connection.
func (m *Manager) Register(client *Client) bool {
	select {
	case m.register <- client:
		return true
	case <-m.done:
		return false
	}
}

// Unregister drops client. After shutdown every client is already gone.
func (m *Manager) Unregister(client *Client) {
	select {
	case m.unregister <- client:
	case <-m.done:
	}
}

func (m *Manager) handle(msg *ClientMessage) bool {
	select {
	case m.handleMessage <- msg:
		return true
	case <-m.done:
		return false
	}
}

// Done is closed when Run has returned.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Deliver queues e for every interested client. It never blocks the caller.
func (m *Manager) Deliver(e *events.Event) {
	select {
	case m.broadcast <- e:
	default:
		m.log.Warn("broadcast queue full, dropping event", "type", e.Type, "document_id", e.DocumentID)
	}
}

func (m *Manager) registerClient(client *Client) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	if m.userIndex[client.Username] == nil {
		m.userIndex[client.Username] = make(map[string]bool)
	}

	if m.maxConnPerUser > 0 && len(m.userIndex[client.Username]) >= m.maxConnPerUser {
		m.log.Warn("max connections reached", "user", client.Username)
		close(client.Send)
		return
	}

	m.clients[client.ID] = client
	m.userIndex[client.Username][client.ID] = true
	m.metrics.SetWebSocketClients(len(m.clients))

	m.log.Info("client registered", "client", client.ID, "user", client.Username)
}

func (m *Manager) unregisterClient(client *Client) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()
	m.removeLocked(client)
}

func (m *Manager) removeLocked(client *Client) {
	if _, ok := m.clients[client.ID]; !ok {
		return
	}
	delete(m.clients, client.ID)
	delete(m.userIndex[client.Username], client.ID)
	if len(m.userIndex[client.Username]) == 0 {
		delete(m.userIndex, client.Username)
	}
	close(client.Send)
	m.metrics.SetWebSocketClients(len(m.clients))

	m.log.Info("client unregistered", "client", client.ID)
}

func (m *Manager) closeAll() {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()
	for _, c := range m.clients {
		m.removeLocked(c)
	}
}

func (m *Manager) processMessage(clientMsg *ClientMessage) {
	client := clientMsg.Client

	var msg Message
	if err := json.Unmarshal(clientMsg.Message, &msg); err != nil {
		m.reply(client, TypeError, &ErrorPayload{Error: "malformed message"})
		return
	}

	switch msg.Type {
	case TypePing:
		m.reply(client, TypePong, nil)

	case TypeSubscribe, TypeUnsubscribe:
		var payload SubscribePayload
		if err := msg.UnmarshalPayload(&payload); err != nil {
			m.reply(client, TypeError, &ErrorPayload{Error: "malformed subscription"})
			return
		}
		m.reply(client, TypeAck, &AckPayload{Type: msg.Type, Subscriptions: m.updateSubscriptions(client, msg.Type, payload.DocumentIDs)})

	default:
		m.reply(client, TypeError, &ErrorPayload{Error: "unknown message type " + string(msg.Type)})
	}
}

func (m *Manager) updateSubscriptions(client *Client, op MessageType, ids []string) []string {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	for _, id := range ids {
		if op == TypeSubscribe {
			client.documents[id] = true
		} else {
			delete(client.documents, id)
		}
	}

	out := make([]string, 0, len(client.documents))
	for id := range client.documents {
		out = append(out, id)
	}
	return out
}

func (m *Manager) reply(client *Client, t MessageType, payload interface{}) {
	msg, err := NewMessage(t, payload)
	if err != nil {
		m.log.Error("failed to build reply", "error", err)
		return
	}
	raw, _ := json.Marshal(msg)

	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()
	if _, ok := m.clients[client.ID]; !ok {
		return
	}
	select {
	case client.Send <- raw:
	default:
		m.log.Warn("client send buffer full", "client", client.ID)
	}
}

func (m *Manager) broadcastEvent(e *events.Event) {
	msg, err := NewMessage(TypeEvent, e)
	if err != nil {
		m.log.Error("failed to encode event", "error", err)
		return
	}
	raw, _ := json.Marshal(msg)

	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	for id, client := range m.clients {
		if !client.wants(e.DocumentID) {
			continue
		}
		select {
		case client.Send <- raw:
		default:
			m.log.Warn("client send buffer full, closing connection", "client", id)
			m.removeLocked(client)
		}
	}
}

func (m *Manager) ClientCount() int {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()
	return len(m.clients)
}

func (m *Manager) GetUserConnections(username string) int {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()
	return len(m.userIndex[username])
}
