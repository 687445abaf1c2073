package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/dailycards/cardshell/internal/logging"
	"github.com/dailycards/cardshell/internal/routes"
	"github.com/dailycards/cardshell/internal/store"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings to peer with this period.
	pingPeriod = 30 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 4096

	sendBuffer = 64
)

// Message types exchanged with the browser.
const (
	MessageConnected = "connected"
	MessageReload    = "reload"
	MessageStore     = "store"
	MessageNavigate  = "navigate"
	MessageNavigated = "navigated"
	MessageError     = "error"
)

// Message is the JSON frame sent over the live channel.
type Message struct {
	Type      string            `json:"type"`
	Path      string            `json:"path,omitempty"`
	Page      string            `json:"page,omitempty"`
	Params    map[string]string `json:"params,omitempty"`
	Files     []string          `json:"files,omitempty"`
	Error     string            `json:"error,omitempty"`
	Store     *store.Event      `json:"store,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// MessageHandler answers a message sent by c. A zero reply is not sent.
// Handlers for one client may run concurrently and must not block past
// ctx, which is cancelled when the client disconnects.
type MessageHandler func(ctx context.Context, c *Client, msg Message) Message

// Hub tracks live-reload clients and fans messages out to them.
type Hub struct {
	logger  logging.Logger
	origins []string
	anyOrig bool
	handler MessageHandler

	ctx    context.Context
	cancel context.CancelFunc

	mutex   sync.RWMutex
	clients map[*Client]struct{}
	closed  bool
	wg      sync.WaitGroup
}

// Client is one connected browser.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	ctx    context.Context
	cancel context.CancelFunc

	// handlers tracks in-flight message handlers.
	handlers sync.WaitGroup

	navOnce   sync.Once
	navigator *routes.Navigator
}

// Navigator returns the client's navigator, creating it with newNav on
// first use. Each browser navigates on its own, so a newer navigation in
// one tab never supersedes a pending one in another.
func (c *Client) Navigator(newNav func() *routes.Navigator) *routes.Navigator {
	c.navOnce.Do(func() {
		c.navigator = newNav()
	})
	return c.navigator
}

// NewHub creates a hub accepting connections from origins. A "*" entry
// accepts any origin.
func NewHub(origins []string, handler MessageHandler, logger logging.Logger) *Hub {
	if logger == nil {
		logger = logging.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		logger:  logger.WithComponent("websocket"),
		handler: handler,
		ctx:     ctx,
		cancel:  cancel,
		clients: make(map[*Client]struct{}),
	}
	for _, o := range origins {
		if o == "*" {
			h.anyOrig = true
			continue
		}
		h.origins = append(h.origins, o)
	}
	return h
}

// Run blocks until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-h.ctx.Done():
	}
	h.Close()
}

// Close disconnects all clients and waits for their goroutines. Safe to call
// more than once.
func (h *Hub) Close() {
	h.mutex.Lock()
	if h.closed {
		h.mutex.Unlock()
		h.wg.Wait()
		return
	}
	h.closed = true
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mutex.Unlock()

	h.cancel()
	for _, c := range clients {
		c.cancel()
	}
	h.wg.Wait()
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Broadcast sends msg to every client. Clients whose queue is full are dropped.
func (h *Hub) Broadcast(msg Message) {
	data, err := encode(msg)
	if err != nil {
		h.logger.Error(h.ctx, err, "Failed to encode broadcast", "type", msg.Type)
		return
	}

	h.mutex.RLock()
	var slow []*Client
	for c := range h.clients {
		if !c.enqueue(data) {
			slow = append(slow, c)
		}
	}
	h.mutex.RUnlock()

	for _, c := range slow {
		h.logger.Warn(h.ctx, nil, "Dropping slow websocket client")
		c.cancel()
	}
}

// ServeHTTP upgrades the request and serves the client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mutex.RLock()
	closed := h.closed
	h.mutex.RUnlock()
	if closed {
		http.Error(w, "live reload is shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     h.origins,
		InsecureSkipVerify: h.anyOrig,
	})
	if err != nil {
		h.logger.Warn(r.Context(), err, "WebSocket upgrade failed", "origin", r.Header.Get("Origin"))
		return
	}
	conn.SetReadLimit(maxMessageSize)

	client := h.register(conn)
	if client == nil {
		conn.Close(websocket.StatusGoingAway, "shutting down")
		return
	}
	defer h.wg.Done()

	go func() {
		defer h.wg.Done()
		client.writePump()
	}()

	hello, _ := encode(Message{Type: MessageConnected})
	client.enqueue(hello)

	client.readPump()
}

func (h *Hub) register(conn *websocket.Conn) *Client {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.closed {
		return nil
	}

	ctx, cancel := context.WithCancel(h.ctx)
	c := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		ctx:    ctx,
		cancel: cancel,
	}
	h.clients[c] = struct{}{}
	// One for the read pump running in ServeHTTP, one for the write pump.
	h.wg.Add(2)
	h.logger.Debug(ctx, "Client connected", "total", len(h.clients))
	return c
}

func (h *Hub) unregister(c *Client) {
	h.mutex.Lock()
	delete(h.clients, c)
	total := len(h.clients)
	h.mutex.Unlock()
	h.logger.Debug(h.ctx, "Client disconnected", "total", total)
}

func (c *Client) enqueue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// readPump reads client frames until the connection fails or the client is
// cancelled. Reads carry no deadline; liveness is checked by the pings.
// Messages are handled off the read loop so pongs keep flowing while a
// handler waits on a slow page.
func (c *Client) readPump() {
	defer func() {
		c.cancel()
		c.handlers.Wait()
		c.hub.unregister(c)
	}()

	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				c.hub.logger.Debug(c.ctx, "WebSocket read ended", "error", err.Error())
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.reply(Message{Type: MessageError, Error: "invalid message"})
			continue
		}
		if c.hub.handler == nil {
			continue
		}
		c.handlers.Add(1)
		go func(msg Message) {
			defer c.handlers.Done()
			if reply := c.hub.handler(c.ctx, c, msg); reply.Type != "" {
				c.reply(reply)
			}
		}(msg)
	}
}

func (c *Client) reply(msg Message) {
	data, err := encode(msg)
	if err != nil {
		return
	}
	c.enqueue(data)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusGoingAway, "")
	}()

	for {
		select {
		case <-c.ctx.Done():
			return
		case data := <-c.send:
			ctx, cancel := context.WithTimeout(c.ctx, writeWait)
			err := c.conn.Write(ctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				c.cancel()
				return
			}
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(c.ctx, writeWait)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				c.cancel()
				return
			}
		}
	}
}

func encode(msg Message) ([]byte, error) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	return json.Marshal(msg)
}
