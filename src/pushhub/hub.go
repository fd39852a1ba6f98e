package pushhub

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/kataras/go-events"
	log "github.com/sirupsen/logrus"

	"github.com/jiaming2012/market-sentinel/src/eventmodels"
	"github.com/jiaming2012/market-sentinel/src/eventpubsub"
)

const (
	MessageTypeEvent         = "event"
	MessageTypeAlert         = "alert_triggered"
	MessageTypeAlertResolved = "alert_resolved"
)

// Message is the envelope pushed to live clients.
type Message struct {
	Type      string      `json:"type"`
	Key       string      `json:"key,omitempty"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// Client is one live consumer. Accept must not block; a returned error
// removes the client from the hub.
type Client interface {
	ID() string
	Accept(msg Message) error
}

// Hub fans messages out to every registered client.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]Client
	emitter events.EventEmmiter
	now     func() time.Time
}

// NewHub reports websocket activity on emitter. A nil emitter gets a private one.
func NewHub(emitter events.EventEmmiter) *Hub {
	if emitter == nil {
		emitter = events.New()
	}

	return &Hub{
		clients: make(map[string]Client),
		emitter: emitter,
		now:     time.Now,
	}
}

func (h *Hub) Emitter() events.EventEmmiter {
	return h.emitter
}

func (h *Hub) Register(c Client) {
	h.mu.Lock()
	h.clients[c.ID()] = c
	h.mu.Unlock()

	h.emitter.Emit(eventmodels.WebsocketConnected, c.ID())
	log.WithField("client", c.ID()).Info("push client registered")
}

func (h *Hub) Unregister(id string) bool {
	h.mu.Lock()
	c, found := h.clients[id]
	delete(h.clients, id)
	h.mu.Unlock()

	if !found {
		return false
	}

	if closer, ok := c.(io.Closer); ok {
		closer.Close()
	}

	log.WithField("client", id).Info("push client unregistered")
	return true
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

// Broadcast offers msg to every client and returns how many accepted it.
// Clients that fail are dropped.
func (h *Hub) Broadcast(msg Message) int {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = h.now()
	}

	h.mu.RLock()
	clients := make([]Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range clients {
		if err := h.accept(c, msg); err != nil {
			log.WithField("client", c.ID()).Warnf("dropping push client: %v", err)
			h.emitter.Emit(eventmodels.WebsocketError, c.ID())
			h.Unregister(c.ID())
			continue
		}

		h.emitter.Emit(eventmodels.WebsocketMessageSent, c.ID())
		delivered++
	}

	return delivered
}

func (h *Hub) accept(c Client, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("client panicked: %v", r)
		}
	}()

	return c.Accept(msg)
}

// HandleEvent forwards ingested events. It has the shape of a coordinator subscriber.
func (h *Hub) HandleEvent(_ context.Context, ev eventmodels.Event) error {
	h.Broadcast(Message{Type: MessageTypeEvent, Key: ev.Key, Payload: ev, Timestamp: ev.Timestamp})
	return nil
}

func (h *Hub) OnAlertTriggered(alert eventmodels.Alert) {
	h.Broadcast(Message{Type: MessageTypeAlert, Payload: alert})
}

func (h *Hub) OnAlertResolved(alert eventmodels.Alert) {
	h.Broadcast(Message{Type: MessageTypeAlertResolved, Payload: alert})
}

// Attach forwards alert lifecycle events from bus.
func (h *Hub) Attach(bus *eventpubsub.Bus) error {
	if err := bus.Subscribe(eventpubsub.AlertTriggeredEvent, h.OnAlertTriggered); err != nil {
		return fmt.Errorf("Hub.Attach: %w", err)
	}

	if err := bus.Subscribe(eventpubsub.AlertResolvedEvent, h.OnAlertResolved); err != nil {
		return fmt.Errorf("Hub.Attach: %w", err)
	}

	return nil
}

// Close drops every client.
func (h *Hub) Close() {
	h.mu.RLock()
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	for _, id := range ids {
		h.Unregister(id)
	}
}
