// Package websocket pushes live queue snapshots to doctor-facing clients.
// It is a hub-and-spoke fanout: clients subscribe to doctor ids and receive
// every snapshot broadcast for those doctors. Delivery is best-effort; a
// slow client is skipped, never waited on.
package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Event is one outbound frame.
type Event struct {
	Type      string          `json:"type"`
	DoctorID  uuid.UUID       `json:"doctor_id"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// EventQueueSnapshot carries a full ordered queue in Data.
const EventQueueSnapshot = "queue.snapshot"

// ClientMessage is an inbound frame from a client: desk dashboards use it
// to watch additional doctors over one connection.
type ClientMessage struct {
	Action  string      `json:"action"` // "subscribe" or "unsubscribe"
	Doctors []uuid.UUID `json:"doctors"`
}

// Client is one websocket connection with its doctor subscriptions.
type Client struct {
	ID      string
	Doctors []uuid.UUID
	Send    chan []byte
}

// Hub tracks clients and their doctor subscriptions. All operations are
// safe for concurrent use.
type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]map[*Client]struct{} // doctor -> subscribers
	all     map[*Client]struct{}
	logger  zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[uuid.UUID]map[*Client]struct{}),
		all:     make(map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a client and subscribes it to its initial doctors.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.all[client] = struct{}{}
	for _, doctorID := range client.Doctors {
		if h.clients[doctorID] == nil {
			h.clients[doctorID] = make(map[*Client]struct{})
		}
		h.clients[doctorID][client] = struct{}{}
	}
}

// Unregister removes a client from every subscription and closes its Send
// channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}

	for _, doctorID := range client.Doctors {
		if subs, ok := h.clients[doctorID]; ok {
			delete(subs, client)
			if len(subs) == 0 {
				delete(h.clients, doctorID)
			}
		}
	}

	delete(h.all, client)
	close(client.Send)
}

// Subscribe adds doctors to an already-registered client.
func (h *Hub) Subscribe(client *Client, doctors []uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, doctorID := range doctors {
		if h.clients[doctorID] == nil {
			h.clients[doctorID] = make(map[*Client]struct{})
		}
		h.clients[doctorID][client] = struct{}{}
	}
	client.Doctors = append(client.Doctors, doctors...)
}

// Unsubscribe removes doctors from an already-registered client.
func (h *Hub) Unsubscribe(client *Client, doctors []uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	removeSet := make(map[uuid.UUID]struct{}, len(doctors))
	for _, d := range doctors {
		removeSet[d] = struct{}{}
	}

	for _, doctorID := range doctors {
		if subs, ok := h.clients[doctorID]; ok {
			delete(subs, client)
			if len(subs) == 0 {
				delete(h.clients, doctorID)
			}
		}
	}

	remaining := make([]uuid.UUID, 0, len(client.Doctors))
	for _, d := range client.Doctors {
		if _, rm := removeSet[d]; !rm {
			remaining = append(remaining, d)
		}
	}
	client.Doctors = remaining
}

// ProcessMessage dispatches an inbound client frame.
func (h *Hub) ProcessMessage(client *Client, msg ClientMessage) {
	switch msg.Action {
	case "subscribe":
		h.Subscribe(client, msg.Doctors)
	case "unsubscribe":
		h.Unsubscribe(client, msg.Doctors)
	}
}

// Broadcast sends an event to every client subscribed to the doctor. A
// client whose buffer is full is skipped so one stalled connection cannot
// block queue maintenance.
func (h *Hub) Broadcast(doctorID uuid.UUID, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Msg("websocket event marshal failed")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[doctorID] {
		select {
		case client.Send <- data:
		default:
		}
	}
}

// ClientCount returns the total number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

// SubscriberCount returns how many clients watch the given doctor.
func (h *Hub) SubscriberCount(doctorID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[doctorID])
}

var upgrader = gorillawebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // tighten in production
	},
}

// Handler upgrades HTTP connections and pumps messages for the hub.
type Handler struct {
	hub *Hub
}

func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// RegisterRoutes mounts the subscription endpoint on the given group.
func (wh *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/ws/doctors/:id", wh.HandleConnect)
}

// HandleConnect upgrades the connection and subscribes the client to the
// doctor named in the path.
func (wh *Handler) HandleConnect(c echo.Context) error {
	doctorID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor id")
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := &Client{
		ID:      uuid.New().String(),
		Doctors: []uuid.UUID{doctorID},
		Send:    make(chan []byte, 256),
	}

	wh.hub.Register(client)

	go wh.writePump(client, ws)
	go wh.readPump(client, ws)

	return nil
}

func (wh *Handler) readPump(client *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		wh.hub.Unregister(client)
		ws.Close()
	}()

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue // ignore malformed frames
		}

		wh.hub.ProcessMessage(client, msg)
	}
}

func (wh *Handler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	defer ws.Close()

	for message := range client.Send {
		if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
			break
		}
	}
}
