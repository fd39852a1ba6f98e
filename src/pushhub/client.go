package pushhub

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/jiaming2012/market-sentinel/src/eventmodels"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 256
)

var (
	ErrClientClosed = errors.New("client closed")
	ErrBufferFull   = errors.New("client send buffer full")
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// command is what clients send to narrow their event stream.
// {"action":"subscribe","keys":["BTC/USDT"]} or {"action":"unsubscribe","keys":[...]}
type command struct {
	Action string   `json:"action"`
	Keys   []string `json:"keys"`
}

// WSClient is a websocket-backed Client. Alerts always pass; events pass
// when the client has no key filter or the event key is in it.
type WSClient struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
	keys   map[string]struct{}
}

func newWSClient(hub *Hub, conn *websocket.Conn) *WSClient {
	return &WSClient{
		id:   uuid.NewString(),
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		keys: make(map[string]struct{}),
	}
}

func (c *WSClient) ID() string {
	return c.id
}

func (c *WSClient) wants(msg Message) bool {
	if msg.Type != MessageTypeEvent || len(c.keys) == 0 {
		return true
	}

	_, found := c.keys[strings.ToUpper(msg.Key)]
	return found
}

func (c *WSClient) Accept(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}

	if !c.wants(msg) {
		return nil
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("WSClient.Accept: failed to marshal message: %w", err)
	}

	select {
	case c.send <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

func (c *WSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}

	return nil
}

func (c *WSClient) apply(cmd command) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch cmd.Action {
	case "subscribe":
		for _, k := range cmd.Keys {
			c.keys[strings.ToUpper(k)] = struct{}{}
		}
	case "unsubscribe":
		for _, k := range cmd.Keys {
			delete(c.keys, strings.ToUpper(k))
		}
	default:
		log.WithField("client", c.id).Warnf("unknown push command: %s", cmd.Action)
	}
}

func (c *WSClient) readPump() {
	defer func() {
		c.hub.Unregister(c.id)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.WithField("client", c.id).Errorf("websocket read error: %v", err)
				c.hub.emitter.Emit(eventmodels.WebsocketError, c.id)
			}
			return
		}

		c.hub.emitter.Emit(eventmodels.WebsocketMessageReceived, c.id)

		var cmd command
		if err := json.Unmarshal(data, &cmd); err != nil {
			log.WithField("client", c.id).Warnf("ignoring malformed push command: %v", err)
			continue
		}

		c.apply(cmd)
	}
}

func (c *WSClient) writePump() {
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
				log.WithField("client", c.id).Errorf("websocket write error: %v", err)
				c.hub.emitter.Emit(eventmodels.WebsocketError, c.id)
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

// ServeHTTP upgrades the request and registers the connection as a client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf("websocket upgrade error: %v", err)
		h.emitter.Emit(eventmodels.WebsocketError, r.RemoteAddr)
		return
	}

	client := newWSClient(h, conn)
	h.Register(client)

	go client.writePump()
	go client.readPump()
}
