package websocket

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/adi-253/Talkie/chatsync/internal/events"
	"github.com/adi-253/Talkie/chatsync/internal/metrics"
)

// Hub maintains the set of active clients and the chat rooms they joined.
// All membership changes and deliveries happen on the Run goroutine.
type Hub struct {
	// clients is every registered connection
	clients map[*Client]bool

	// rooms maps chatID to the clients that joined it
	rooms map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	join       chan membership
	leave      chan membership
	broadcast  chan *BroadcastMessage

	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	// mu lets readers outside Run inspect rooms
	mu sync.RWMutex

	metrics *metrics.Metrics
}

type membership struct {
	client *Client
	chatID string

	// done is closed by Run once the change is applied
	done chan struct{}
}

// BroadcastMessage is one encoded frame on its way to a room or a single client.
type BroadcastMessage struct {
	RoomID  string
	Type    events.Type
	Message []byte

	// Sender is excluded from the room broadcast when set
	Sender *Client

	// Target, when set, receives the frame alone
	Target *Client
}

// NewHub creates a new Hub instance.
func NewHub(m *metrics.Metrics) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		join:       make(chan membership),
		leave:      make(chan membership),
		broadcast:  make(chan *BroadcastMessage),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		metrics:    m,
	}
}

// Run starts the hub's main event loop. It returns after Stop.
func (h *Hub) Run() {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.removeClient(client)

		case m := <-h.join:
			h.joinRoom(m.client, m.chatID)
			close(m.done)

		case m := <-h.leave:
			h.leaveRoom(m.client, m.chatID)
			close(m.done)

		case msg := <-h.broadcast:
			h.deliver(msg)

		case <-h.quit:
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for c := range h.clients {
				clients = append(clients, c)
			}
			h.mu.RUnlock()
			for _, c := range clients {
				h.removeClient(c)
			}
			return
		}
	}
}

// Stop disconnects every client and waits for Run to return.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.quit) })
	<-h.done
}

// Publish sends an event to every client in the room, the author's own
// connections included.
func (h *Hub) Publish(chatID string, e events.Event) {
	h.publish(chatID, e, nil)
}

func (h *Hub) publish(chatID string, e events.Event, sender *Client) {
	data, err := events.Encode(e)
	if err != nil {
		log.Error().Err(err).Str("type", string(e.Type())).Msg("Failed to encode event")
		return
	}
	h.submit(&BroadcastMessage{RoomID: chatID, Type: e.Type(), Message: data, Sender: sender})
}

// sendTo queues an event for one client.
func (h *Hub) sendTo(c *Client, e events.Event) {
	data, err := events.Encode(e)
	if err != nil {
		log.Error().Err(err).Str("type", string(e.Type())).Msg("Failed to encode event")
		return
	}
	h.submit(&BroadcastMessage{Type: e.Type(), Message: data, Target: c})
}

func (h *Hub) submit(msg *BroadcastMessage) {
	select {
	case h.broadcast <- msg:
	case <-h.quit:
	}
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.quit:
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.quit:
	}
}

// Join adds c to the chatID room and returns once the membership is visible
// to InRoom and to later broadcasts.
func (h *Hub) Join(c *Client, chatID string) {
	h.changeMembership(h.join, c, chatID)
}

// Leave removes c from the chatID room and waits like Join.
func (h *Hub) Leave(c *Client, chatID string) {
	h.changeMembership(h.leave, c, chatID)
}

func (h *Hub) changeMembership(ch chan membership, c *Client, chatID string) {
	m := membership{client: c, chatID: chatID, done: make(chan struct{})}
	select {
	case ch <- m:
	case <-h.quit:
		return
	}
	select {
	case <-m.done:
	case <-h.quit:
	}
}

func (h *Hub) registerClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c] = true
	h.metrics.ClientConnected()
	log.Info().Str("user_id", c.User.ID).Int("total", len(h.clients)).Msg("Client connected")
}

// removeClient drops c from every room and closes its send channel.
func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.clients[c] {
		return
	}
	delete(h.clients, c)
	for chatID, members := range h.rooms {
		if members[c] {
			delete(members, c)
			if len(members) == 0 {
				delete(h.rooms, chatID)
			}
		}
	}
	close(c.send)
	h.metrics.ClientDisconnected()
	log.Info().Str("user_id", c.User.ID).Int("remaining", len(h.clients)).Msg("Client disconnected")
}

func (h *Hub) joinRoom(c *Client, chatID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.clients[c] {
		return
	}
	if h.rooms[chatID] == nil {
		h.rooms[chatID] = make(map[*Client]bool)
	}
	h.rooms[chatID][c] = true
	log.Debug().Str("user_id", c.User.ID).Str("chat_id", chatID).Int("total", len(h.rooms[chatID])).Msg("Client joined chat")
}

func (h *Hub) leaveRoom(c *Client, chatID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[chatID]
	if !ok || !members[c] {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, chatID)
	}
	log.Debug().Str("user_id", c.User.ID).Str("chat_id", chatID).Msg("Client left chat")
}

// deliver hands the frame to its recipients. A client whose buffer is full
// is disconnected rather than allowed to stall the room.
func (h *Hub) deliver(msg *BroadcastMessage) {
	var recipients []*Client

	h.mu.RLock()
	switch {
	case msg.Target != nil:
		if h.clients[msg.Target] {
			recipients = []*Client{msg.Target}
		}
	default:
		for c := range h.rooms[msg.RoomID] {
			if c != msg.Sender {
				recipients = append(recipients, c)
			}
		}
	}
	h.mu.RUnlock()

	if msg.Target == nil {
		h.metrics.Broadcast(string(msg.Type))
	}

	for _, c := range recipients {
		select {
		case c.send <- msg.Message:
		default:
			log.Warn().Str("user_id", c.User.ID).Msg("Send buffer full, dropping client")
			h.removeClient(c)
		}
	}
}

// InRoom reports whether c has joined chatID.
func (h *Hub) InRoom(c *Client, chatID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rooms[chatID][c]
}

// RoomClientCount returns the number of connections in a chat room.
func (h *Hub) RoomClientCount(chatID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[chatID])
}

// ClientCount returns the number of registered connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
