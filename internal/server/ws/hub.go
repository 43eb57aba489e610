// Package ws bridges signal-bus channels to WebSocket clients.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/swapbot/internal/domain"
	"github.com/alanyoungcy/swapbot/internal/progress"
	"github.com/gorilla/websocket"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 4096

	// sendBufferSize is the channel buffer for outgoing messages per client.
	sendBufferSize = 256
)

// DefaultChannels are delivered to clients that do not scope themselves to
// a trace.
var DefaultChannels = []string{"swaps", "limit_orders"}

var errNotRunning = errors.New("ws: hub is not running")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// client represents a single WebSocket connection.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	subs map[string]bool // owned by the hub loop
}

// subscribeMsg is the JSON message a client sends to change its channels.
// Trace ids are accepted in place of full progress channel names.
type subscribeMsg struct {
	Action   string   `json:"action"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
	Traces   []string `json:"traces"`
}

type subChange struct {
	c      *client
	add    []string
	remove []string
}

// topic is one live bus subscription shared by every interested client.
type topic struct {
	refs   int
	cancel context.CancelFunc
}

// Hub manages connected WebSocket clients and forwards signal-bus messages
// to the clients subscribed to each channel. Bus subscriptions are opened
// when the first client needs a channel and closed when the last one leaves.
type Hub struct {
	clients    map[*client]bool
	topics     map[string]*topic
	broadcast  chan broadcastMsg
	register   chan *client
	unregister chan *client
	changes    chan subChange
	done       chan struct{}
	bus        domain.SignalBus
	logger     *slog.Logger
	startedAt  time.Time

	mu      sync.RWMutex
	running bool
	count   int
}

// broadcastMsg carries a message along with its source channel so the hub
// can route it only to clients subscribed to that channel.
type broadcastMsg struct {
	channel string
	data    []byte
}

// NewHub creates a hub reading from bus.
func NewHub(bus domain.SignalBus, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[*client]bool),
		topics:     make(map[string]*topic),
		broadcast:  make(chan broadcastMsg, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		changes:    make(chan subChange),
		done:       make(chan struct{}),
		bus:        bus,
		logger:     logger.With(slog.String("component", "ws_hub")),
		startedAt:  time.Now().UTC(),
	}
}

// Run starts the hub's event loop and blocks until ctx is cancelled. A hub
// runs once.
func (h *Hub) Run(ctx context.Context) error {
	h.mu.Lock()
	h.running = true
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		h.running = false
		h.mu.Unlock()
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return ctx.Err()

		case c := <-h.register:
			h.clients[c] = true
			for ch := range c.subs {
				h.retain(ctx, ch)
			}
			h.setCount(len(h.clients))
			h.logger.Info("client connected", slog.Int("total_clients", len(h.clients)))

		case c := <-h.unregister:
			if h.clients[c] {
				h.drop(c)
				h.setCount(len(h.clients))
				h.logger.Info("client disconnected", slog.Int("total_clients", len(h.clients)))
			}

		case sc := <-h.changes:
			if !h.clients[sc.c] {
				continue
			}
			for _, ch := range sc.add {
				if !sc.c.subs[ch] {
					sc.c.subs[ch] = true
					h.retain(ctx, ch)
				}
			}
			for _, ch := range sc.remove {
				if sc.c.subs[ch] {
					delete(sc.c.subs, ch)
					h.release(ch)
				}
			}

		case msg := <-h.broadcast:
			for c := range h.clients {
				if !c.subs[msg.channel] {
					continue
				}
				select {
				case c.send <- msg.data:
				default:
					h.logger.Warn("dropping message for slow client", slog.String("channel", msg.channel))
				}
			}
		}
	}
}

func (h *Hub) drop(c *client) {
	delete(h.clients, c)
	for ch := range c.subs {
		h.release(ch)
	}
	close(c.send)
}

func (h *Hub) retain(ctx context.Context, channel string) {
	if t, ok := h.topics[channel]; ok {
		t.refs++
		return
	}
	tctx, cancel := context.WithCancel(ctx)
	h.topics[channel] = &topic{refs: 1, cancel: cancel}
	go h.subscribeToChannel(tctx, channel)
}

func (h *Hub) release(channel string) {
	t, ok := h.topics[channel]
	if !ok {
		return
	}
	t.refs--
	if t.refs <= 0 {
		t.cancel()
		delete(h.topics, channel)
	}
}

// subscribeToChannel forwards one bus channel into the broadcast loop until
// ctx is cancelled.
func (h *Hub) subscribeToChannel(ctx context.Context, channel string) {
	msgCh, err := h.bus.Subscribe(ctx, channel)
	if err != nil {
		h.logger.Error("failed to subscribe to channel",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgCh:
			if !ok {
				return
			}
			select {
			case h.broadcast <- broadcastMsg{channel: channel, data: data}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// HandleWS upgrades an HTTP request to a WebSocket connection and registers
// the client with the hub. With ?trace=<id> the client receives only that
// request's progress events.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	if !h.isRunning() {
		http.Error(w, errNotRunning.Error(), http.StatusServiceUnavailable)
		return
	}

	subs := make(map[string]bool)
	if trace := strings.TrimSpace(r.URL.Query().Get("trace")); trace != "" {
		subs[progress.Channel(trace)] = true
	} else {
		for _, ch := range DefaultChannels {
			subs[ch] = true
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		subs: subs,
	}
	c.sendHello(subs)

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

func (h *Hub) setCount(n int) {
	h.mu.Lock()
	h.count = n
	h.mu.Unlock()
}

func (h *Hub) isRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// readPump reads subscription changes from the connection until it closes.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("unexpected close error", slog.String("error", err.Error()))
			}
			return
		}

		var sub subscribeMsg
		if err := json.Unmarshal(message, &sub); err != nil {
			continue
		}
		channels := append([]string(nil), sub.Channels...)
		for _, t := range sub.Traces {
			channels = append(channels, progress.Channel(t))
		}
		var change subChange
		switch sub.Action {
		case "subscribe":
			change = subChange{c: c, add: channels}
		case "unsubscribe":
			change = subChange{c: c, remove: channels}
		default:
			continue
		}
		select {
		case c.hub.changes <- change:
		case <-c.hub.done:
			return
		}
	}
}

// sendHello tells the client which channels it is receiving.
func (c *client) sendHello(subs map[string]bool) {
	channels := make([]string, 0, len(subs))
	for ch := range subs {
		channels = append(channels, ch)
	}
	msg, err := json.Marshal(map[string]any{
		"type": "hello",
		"payload": map[string]any{
			"channels":       channels,
			"uptime_seconds": int64(time.Since(c.hub.startedAt).Seconds()),
		},
	})
	if err != nil {
		return
	}
	c.send <- msg
}

// writePump pumps messages from the hub to the WebSocket connection as text
// frames and sends periodic pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
