package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/cameroncuttingedge/tictactoe_arena/events"
	"github.com/cameroncuttingedge/tictactoe_arena/game"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 256

	missingMoveContent = "no move in JSON"
)

// Inbound action types.
const (
	ActionJoin      = "game.join"
	ActionLeave     = "game.leave"
	ActionMove      = "game.move"
	ActionSubscribe = "subscribe"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true }, // Allow connections from any origin
}

// Dispatcher is the game side of the hub.
type Dispatcher interface {
	Join(player string) (*game.Game, error)
	Leave(player string) (*game.Game, bool)
	Move(player, gameID string, cell int) (game.Snapshot, error)
	Disconnect(gameID, player string) (game.Snapshot, bool)
	Reject(gameID, content string)
}

// Action is a frame sent by a client.
type Action struct {
	Type   string `json:"type"`
	Player string `json:"player,omitempty"`
	GameID string `json:"gameId,omitempty"`
	Move   *int   `json:"move,omitempty"`
	Topic  string `json:"topic,omitempty"`
}

// Hub tracks websocket connections and the topics they listen on.
type Hub struct {
	dispatcher Dispatcher

	lock   sync.RWMutex
	topics map[string]map[*Client]bool
	closed bool
	pumps  sync.WaitGroup
}

func NewHub(dispatcher Dispatcher) *Hub {
	return &Hub{
		dispatcher: dispatcher,
		topics:     make(map[string]map[*Client]bool),
	}
}

// Client is one websocket connection. After a successful join it remembers
// which game and player it speaks for, so a dropped connection can be
// reported as a disconnect.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	topics map[string]bool
	gameID string
	player string
	closed bool
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade error")
		return
	}

	client := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		topics: make(map[string]bool),
	}
	if !h.register(client) {
		log.Warn().Str("remote", conn.RemoteAddr().String()).Msg("Hub closed, rejecting WebSocket connection")
		conn.Close()
		return
	}
	log.Info().Str("remote", conn.RemoteAddr().String()).Msg("WebSocket connection established and registered")

	go client.writePump()
	go client.readPump()
}

// Broadcast delivers e to every client subscribed to its topic. Clients that
// cannot keep up are dropped.
func (h *Hub) Broadcast(e events.GameEvent) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal game event data to JSON")
		return
	}

	h.lock.RLock()
	clients := make([]*Client, 0, len(h.topics[e.Topic]))
	for c := range h.topics[e.Topic] {
		clients = append(clients, c)
	}
	h.lock.RUnlock()

	if len(clients) == 0 {
		log.Debug().Str("topic", e.Topic).Msg("No connections to broadcast")
		return
	}

	for _, c := range clients {
		if !c.enqueue(data) {
			log.Warn().Str("topic", e.Topic).Str("remote", c.conn.RemoteAddr().String()).Msg("Client too slow, closing connection")
			c.conn.Close()
		}
	}
}

// Subscribers returns the number of clients listening on topic.
func (h *Hub) Subscribers(topic string) int {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return len(h.topics[topic])
}

// Close closes every client connection and refuses new ones. It returns once
// every read pump has unregistered its client and reported the disconnect.
func (h *Hub) Close() {
	h.lock.Lock()
	h.closed = true
	clients := make(map[*Client]bool)
	for _, subs := range h.topics {
		for c := range subs {
			clients[c] = true
		}
	}
	h.lock.Unlock()

	for c := range clients {
		c.conn.Close()
	}
	h.pumps.Wait()
	log.Info().Int("clients", len(clients)).Msg("WebSocket hub closed")
}

func (h *Hub) register(c *Client) bool {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.closed {
		return false
	}
	h.subscribeLocked(c, events.StateTopic)
	h.pumps.Add(1)
	return true
}

func (h *Hub) subscribe(c *Client, topic string) {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.subscribeLocked(c, topic)
}

func (h *Hub) subscribeLocked(c *Client, topic string) {
	if h.topics[topic] == nil {
		h.topics[topic] = make(map[*Client]bool)
	}
	h.topics[topic][c] = true

	c.mu.Lock()
	c.topics[topic] = true
	c.mu.Unlock()
}

func (h *Hub) unsubscribe(c *Client, topic string) {
	h.lock.Lock()
	defer h.lock.Unlock()
	delete(h.topics[topic], c)
	if len(h.topics[topic]) == 0 {
		delete(h.topics, topic)
	}

	c.mu.Lock()
	delete(c.topics, topic)
	c.mu.Unlock()
}

func (h *Hub) unregister(c *Client) {
	c.mu.Lock()
	topics := make([]string, 0, len(c.topics))
	for topic := range c.topics {
		topics = append(topics, topic)
	}
	c.mu.Unlock()

	for _, topic := range topics {
		h.unsubscribe(c, topic)
	}
	log.Info().Str("remote", c.conn.RemoteAddr().String()).Msg("WebSocket connection deregistered")
}

func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) session() (string, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gameID, c.player
}

func (c *Client) setSession(gameID, player string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gameID = gameID
	c.player = player
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)

		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()

		if gameID, player := c.session(); gameID != "" && player != "" {
			c.hub.dispatcher.Disconnect(gameID, player)
		}
		c.conn.Close()
		c.hub.pumps.Done()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var action Action
		if err := c.conn.ReadJSON(&action); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().Err(err).Msg("WebSocket closed unexpectedly")
			}
			return
		}
		c.handle(action)
	}
}

func (c *Client) handle(action Action) {
	switch action.Type {
	case ActionJoin:
		g, err := c.hub.dispatcher.Join(action.Player)
		if err != nil {
			return
		}
		if oldID, _ := c.session(); oldID != "" && oldID != g.ID {
			c.hub.unsubscribe(c, events.GameTopic(oldID))
		}
		c.setSession(g.ID, action.Player)
		c.hub.subscribe(c, events.GameTopic(g.ID))

	case ActionLeave:
		player := action.Player
		gameID, seated := c.session()
		if player == "" {
			player = seated
		}
		c.hub.dispatcher.Leave(player)
		if player == seated {
			c.setSession("", "")
			if gameID != "" {
				c.hub.unsubscribe(c, events.GameTopic(gameID))
			}
		}

	case ActionMove:
		gameID, player := c.session()
		if action.GameID != "" {
			gameID = action.GameID
		}
		if action.Player != "" {
			player = action.Player
		}
		if action.Move == nil {
			c.hub.dispatcher.Reject(gameID, missingMoveContent)
			return
		}
		c.hub.dispatcher.Move(player, gameID, *action.Move)

	case ActionSubscribe:
		if action.Topic != "" {
			c.hub.subscribe(c, action.Topic)
		}

	default:
		log.Warn().Str("type", action.Type).Msg("Unknown action")
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Msg("Failed to write game state")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
