// Package feed pushes navigation events to connected websocket clients.
//
// The router decides where the user is; a UI connected to /ws learns about
// it from here. The one navigation a UI cannot discover on its own is the
// forced one: when the session expires or is signed out elsewhere, the
// session store sends the router to the login page and every client gets
// that event.
//
// HUB MODEL:
// A single goroutine (Run) owns the set of clients. Registration,
// unregistration and broadcasts all arrive on channels, so the map needs
// no lock. Each client has a buffered send channel drained by its own write
// goroutine; a client that falls behind is dropped rather than slowing the
// others down.
package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sakif/time-estimator/internal/router"
)

// Event is the JSON message sent for every completed navigation.
type Event struct {
	Type       string    `json:"type"` // always "navigation"
	From       string    `json:"from"`
	Requested  string    `json:"requested"`
	To         string    `json:"to"`
	Path       string    `json:"path"`
	Redirected bool      `json:"redirected"`
	At         time.Time `json:"at"`
}

// EventFromNavigation renders nav as a feed Event.
func EventFromNavigation(nav router.Navigation) Event {
	return Event{
		Type:       "navigation",
		From:       string(nav.From.Name),
		Requested:  string(nav.Requested.Name),
		To:         string(nav.To.Name),
		Path:       nav.To.Path(),
		Redirected: nav.Redirected,
		At:         nav.At,
	}
}

type Hub struct {
	logger  *slog.Logger
	onCount func(int)

	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}
}

// NewHub creates a hub. onCount, if not nil, is called from the hub
// goroutine with the number of connected clients whenever it changes.
func NewHub(logger *slog.Logger, onCount func(int)) *Hub {
	if onCount == nil {
		onCount = func(int) {}
	}
	return &Hub{
		logger:     logger,
		onCount:    onCount,
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 64),
		done:       make(chan struct{}),
	}
}

// Run processes the hub's channels until ctx is cancelled, then
// disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		for c := range h.clients {
			h.drop(c)
		}
		h.onCount(0)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.logger.Debug("feed client connected", slog.Int("clients", len(h.clients)))
			h.onCount(len(h.clients))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
				h.logger.Debug("feed client disconnected", slog.Int("clients", len(h.clients)))
				h.onCount(len(h.clients))
			}

		case msg := <-h.broadcast:
			before := len(h.clients)
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					h.logger.Warn("dropping slow feed client")
					h.drop(c)
				}
			}
			if len(h.clients) != before {
				h.onCount(len(h.clients))
			}
		}
	}
}

// PublishNavigation has the router.Router OnNavigate signature.
// It returns immediately once the hub has stopped.
func (h *Hub) PublishNavigation(nav router.Navigation) {
	msg, err := json.Marshal(EventFromNavigation(nav))
	if err != nil {
		h.logger.Error("encoding feed event", slog.String("error", err.Error()))
		return
	}
	select {
	case h.broadcast <- msg:
	case <-h.done:
	}
}

// Attach starts serving an upgraded connection. It returns at once; the
// connection is closed when the client goes away or the hub stops.
func (h *Hub) Attach(conn *websocket.Conn) {
	c := newClient(h, conn)
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) drop(c *Client) {
	delete(h.clients, c)
	close(c.send)
}
