// Package realtime streams scoring decisions over WebSocket.
//
// Fraud dashboards subscribe instead of polling the review queue. Feeds
// can be filtered to specific customers, recommendations, or a minimum
// amount.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AuraquanTech/paytrust/internal/fraud"
	"github.com/AuraquanTech/paytrust/internal/metrics"
)

// normalCloseCodes are WebSocket close codes that indicate an expected disconnect.
var normalCloseCodes = []int{
	websocket.CloseNormalClosure,
	websocket.CloseGoingAway,
	websocket.CloseNoStatusReceived,
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // Allow non-browser clients
		}
		host := r.Host
		return origin == "http://"+host || origin == "https://"+host
	},
}

// EventType for feed events
type EventType string

const (
	EventDecision        EventType = "decision"
	EventWebhookVerified EventType = "webhook_verified"
	EventReviewResolved  EventType = "review_resolved"
	EventCustomerReset   EventType = "customer_reset"
)

// Event is one feed message.
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// Subscription filters for a client. Sent as a JSON message over the
// socket to replace the default all-events subscription.
type Subscription struct {
	AllEvents       bool        `json:"allEvents"`
	EventTypes      []EventType `json:"eventTypes"`
	Customers       []string    `json:"customers"`       // Watch specific customer identities
	Recommendations []string    `json:"recommendations"` // e.g. only "block" and "review"
	MinAmountCents  int64       `json:"minAmountCents"`  // Only decisions at or above this
}

// Client represents a WebSocket connection
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	mu   sync.RWMutex
	sub  Subscription
}

// MaxClients is the maximum number of concurrent WebSocket connections.
const MaxClients = 10000

// Hub manages all WebSocket connections
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan *Event
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	logger     *slog.Logger
	done       chan struct{} // closed when Run exits; prevents upgrade race
	maxClients int

	// Stats
	totalEvents  atomic.Int64
	totalClients atomic.Int64
	peakClients  atomic.Int64
}

// NewHub creates a new decision feed hub
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan *Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
		done:       make(chan struct{}),
		maxClients: MaxClients,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("decision feed hub started")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("decision feed shutting down, closing client connections")
			h.mu.Lock()
			for client := range h.clients {
				close(client.send) // writePump sends CloseMessage on closed channel
				delete(h.clients, client)
			}
			h.mu.Unlock()
			metrics.ActiveWebSocketClients.Set(0)
			h.logger.Info("decision feed stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.totalClients.Add(1)
			if current := int64(len(h.clients)); current > h.peakClients.Load() {
				h.peakClients.Store(current)
			}
			n := len(h.clients)
			h.mu.Unlock()
			metrics.ActiveWebSocketClients.Set(float64(n))
			h.logger.Info("feed client connected", "total", n)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			metrics.ActiveWebSocketClients.Set(float64(n))
			h.logger.Info("feed client disconnected", "total", n)

		case event := <-h.broadcast:
			h.totalEvents.Add(1)
			h.mu.RLock()
			var slow []*Client
			for client := range h.clients {
				if h.shouldSend(client, event) {
					select {
					case client.send <- h.serialize(event):
					default:
						slow = append(slow, client)
					}
				}
			}
			h.mu.RUnlock()
			// Remove slow clients under write lock
			if len(slow) > 0 {
				h.mu.Lock()
				for _, client := range slow {
					if _, ok := h.clients[client]; ok {
						close(client.send)
						delete(h.clients, client)
					}
				}
				h.mu.Unlock()
			}
		}
	}
}

// shouldSend checks if event matches client's subscription
func (h *Hub) shouldSend(client *Client, event *Event) bool {
	client.mu.RLock()
	sub := client.sub
	client.mu.RUnlock()

	if sub.AllEvents {
		return true
	}

	if len(sub.EventTypes) > 0 {
		matched := false
		for _, t := range sub.EventTypes {
			if t == event.Type {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	decision, isDecision := event.Data.(*DecisionEvent)

	if len(sub.Customers) > 0 {
		customer, ok := eventCustomer(event)
		if !ok {
			return false
		}
		matched := false
		for _, c := range sub.Customers {
			if c == customer {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if len(sub.Recommendations) > 0 {
		if !isDecision {
			return false
		}
		matched := false
		for _, rec := range sub.Recommendations {
			if rec == string(decision.Recommendation) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if sub.MinAmountCents > 0 && isDecision && decision.AmountCents < sub.MinAmountCents {
		return false
	}

	return true
}

// eventCustomer extracts the customer identity an event concerns, for
// customer-scoped subscriptions. Events without one never match.
func eventCustomer(event *Event) (string, bool) {
	switch data := event.Data.(type) {
	case *DecisionEvent:
		return data.Customer, true
	case *CustomerResetEvent:
		return data.Customer, true
	default:
		return "", false
	}
}

func (h *Hub) serialize(event *Event) []byte {
	data, _ := json.Marshal(event)
	return data
}

// Broadcast sends an event to all matching clients
func (h *Hub) Broadcast(event *Event) {
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("broadcast channel full, dropping event")
	}
}

// DecisionEvent is the feed payload for a scored checkout attempt.
type DecisionEvent struct {
	AssessmentID   string               `json:"assessmentId"`
	Customer       string               `json:"customer"`
	AmountCents    int64                `json:"amountCents"`
	Score          float64              `json:"score"`
	Recommendation fraud.Recommendation `json:"recommendation"`
	Reasons        []string             `json:"reasons,omitempty"`
	Proceeded      bool                 `json:"proceeded"`
	ChargeID       string               `json:"chargeId,omitempty"`
}

// PublishDecision broadcasts a scored checkout attempt.
func (h *Hub) PublishDecision(a *fraud.Assessment, proceeded bool, chargeID string) {
	h.Broadcast(&Event{
		Type:      EventDecision,
		Timestamp: time.Now(),
		Data: &DecisionEvent{
			AssessmentID:   a.ID,
			Customer:       a.Customer,
			AmountCents:    a.AmountCents,
			Score:          a.Score,
			Recommendation: a.Recommendation,
			Reasons:        a.Reasons,
			Proceeded:      proceeded,
			ChargeID:       chargeID,
		},
	})
}

// PublishWebhookVerified broadcasts a verified gateway event.
func (h *Hub) PublishWebhookVerified(eventID, eventType string) {
	h.Broadcast(&Event{
		Type:      EventWebhookVerified,
		Timestamp: time.Now(),
		Data:      map[string]string{"eventId": eventID, "eventType": eventType},
	})
}

// CustomerResetEvent is the feed payload for a cleared window history.
type CustomerResetEvent struct {
	Customer string `json:"customer"`
}

// PublishCustomerReset broadcasts that a customer's window history was
// cleared by support.
func (h *Hub) PublishCustomerReset(customer string) {
	h.Broadcast(&Event{
		Type:      EventCustomerReset,
		Timestamp: time.Now(),
		Data:      &CustomerResetEvent{Customer: customer},
	})
}

// PublishReviewResolved broadcasts a manual review outcome.
func (h *Hub) PublishReviewResolved(itemID, resolution string) {
	h.Broadcast(&Event{
		Type:      EventReviewResolved,
		Timestamp: time.Now(),
		Data:      map[string]string{"itemId": itemID, "resolution": resolution},
	})
}

// Stats returns hub statistics
func (h *Hub) Stats() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return map[string]interface{}{
		"connectedClients": len(h.clients),
		"totalEvents":      h.totalEvents.Load(),
		"totalClients":     h.totalClients.Load(),
		"peakClients":      h.peakClients.Load(),
	}
}

// HandleWebSocket upgrades HTTP to WebSocket
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Reject upgrades after the hub has stopped to prevent orphaned connections.
	select {
	case <-h.done:
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	h.mu.RLock()
	n := len(h.clients)
	h.mu.RUnlock()
	if n >= h.maxClients {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, 256),
		sub:  Subscription{AllEvents: true}, // Default: all events
	}

	h.register <- client

	go client.writePump()
	go client.readPump()
}

// readPump reads messages from WebSocket (subscription updates, pings)
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(512 * 1024)
	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, normalCloseCodes...) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			break
		}

		var sub Subscription
		if err := json.Unmarshal(message, &sub); err == nil {
			c.mu.Lock()
			c.sub = sub
			c.mu.Unlock()
		}
	}
}

// writePump writes messages to WebSocket
func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.logger.Warn("websocket write error", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.logger.Debug("websocket ping failed", "error", err)
				return
			}
		}
	}
}
