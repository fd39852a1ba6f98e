package pushhub

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kataras/go-events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiaming2012/market-sentinel/src/eventmodels"
	"github.com/jiaming2012/market-sentinel/src/eventpubsub"
)

type recordingClient struct {
	id  string
	err error

	mu       sync.Mutex
	messages []Message
	closed   bool
}

func (c *recordingClient) ID() string { return c.id }

func (c *recordingClient) Accept(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.messages = append(c.messages, msg)
	return c.err
}

func (c *recordingClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	return nil
}

func (c *recordingClient) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]Message(nil), c.messages...)
}

func countEmits(emitter events.EventEmmiter) func(events.EventName) int {
	var mu sync.Mutex
	counts := map[events.EventName]int{}

	for _, name := range eventmodels.AllWebsocketEvents {
		name := name
		emitter.On(name, func(...interface{}) {
			mu.Lock()
			counts[name]++
			mu.Unlock()
		})
	}

	return func(name events.EventName) int {
		mu.Lock()
		defer mu.Unlock()
		return counts[name]
	}
}

func TestHubBroadcast(t *testing.T) {
	t.Run("failing clients are dropped and the rest still receive", func(t *testing.T) {
		// arrange
		emitter := events.New()
		count := countEmits(emitter)
		hub := NewHub(emitter)
		good := &recordingClient{id: "good"}
		bad := &recordingClient{id: "bad", err: errors.New("gone")}
		hub.Register(good)
		hub.Register(bad)

		// act
		delivered := hub.Broadcast(Message{Type: MessageTypeEvent, Payload: "x"})

		// assert
		assert.Equal(t, 1, delivered)
		assert.Equal(t, 1, hub.Clients())
		assert.Len(t, good.Messages(), 1)
		assert.True(t, bad.closed)
		assert.Equal(t, 2, count(eventmodels.WebsocketConnected))
		assert.Equal(t, 1, count(eventmodels.WebsocketMessageSent))
		assert.Equal(t, 1, count(eventmodels.WebsocketError))
	})

	t.Run("events are forwarded with their key", func(t *testing.T) {
		hub := NewHub(nil)
		c := &recordingClient{id: "c"}
		hub.Register(c)
		ts := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
		ev := eventmodels.NewEvent("okx", eventmodels.CategoryMarket, "BTC/USDT", ts, map[string]interface{}{"close": 1.0})

		require.NoError(t, hub.HandleEvent(context.Background(), ev))

		got := c.Messages()
		require.Len(t, got, 1)
		assert.Equal(t, MessageTypeEvent, got[0].Type)
		assert.Equal(t, "BTC/USDT", got[0].Key)
		assert.Equal(t, ts, got[0].Timestamp)
	})

	t.Run("alert lifecycle events arrive through the bus", func(t *testing.T) {
		hub := NewHub(nil)
		c := &recordingClient{id: "c"}
		hub.Register(c)
		bus := eventpubsub.New()
		require.NoError(t, hub.Attach(bus))

		bus.Publish(eventpubsub.AlertTriggeredEvent, eventmodels.Alert{Title: "Alert: cpu"})
		bus.Publish(eventpubsub.AlertResolvedEvent, eventmodels.Alert{Title: "Alert: cpu"})
		bus.Wait()

		types := []string{}
		for _, m := range c.Messages() {
			types = append(types, m.Type)
		}
		assert.ElementsMatch(t, []string{MessageTypeAlert, MessageTypeAlertResolved}, types)
	})

	t.Run("close drops everyone", func(t *testing.T) {
		hub := NewHub(nil)
		hub.Register(&recordingClient{id: "a"})
		hub.Register(&recordingClient{id: "b"})

		hub.Close()

		assert.Equal(t, 0, hub.Clients())
		assert.False(t, hub.Unregister("a"))
	})
}

func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestWSClient(t *testing.T) {
	t.Run("websocket clients receive broadcasts", func(t *testing.T) {
		hub := NewHub(nil)
		conn := dialHub(t, hub)

		hub.OnAlertTriggered(eventmodels.Alert{Title: "Alert: memory"})

		msg := readMessage(t, conn)
		assert.Equal(t, MessageTypeAlert, msg.Type)
		assert.Equal(t, "Alert: memory", msg.Payload.(map[string]interface{})["title"])
	})

	t.Run("key subscriptions filter events but not alerts", func(t *testing.T) {
		emitter := events.New()
		count := countEmits(emitter)
		hub := NewHub(emitter)
		conn := dialHub(t, hub)
		require.NoError(t, conn.WriteJSON(map[string]interface{}{"action": "subscribe", "keys": []string{"eth/usdt"}}))
		require.Eventually(t, func() bool { return count(eventmodels.WebsocketMessageReceived) == 1 }, time.Second, 5*time.Millisecond)

		hub.Broadcast(Message{Type: MessageTypeEvent, Key: "BTC/USDT"})
		hub.Broadcast(Message{Type: MessageTypeEvent, Key: "ETH/USDT"})
		hub.OnAlertResolved(eventmodels.Alert{})

		assert.Equal(t, "ETH/USDT", readMessage(t, conn).Key)
		assert.Equal(t, MessageTypeAlertResolved, readMessage(t, conn).Type)
	})

	t.Run("disconnecting unregisters the client", func(t *testing.T) {
		hub := NewHub(nil)
		conn := dialHub(t, hub)

		conn.Close()

		assert.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 5*time.Millisecond)
	})

	t.Run("closed clients refuse messages", func(t *testing.T) {
		c := newWSClient(NewHub(nil), nil)
		require.NoError(t, c.Close())

		assert.ErrorIs(t, c.Accept(Message{Type: MessageTypeAlert}), ErrClientClosed)
	})

	t.Run("a full buffer is an error", func(t *testing.T) {
		c := newWSClient(NewHub(nil), nil)
		for i := 0; i < sendBuffer; i++ {
			require.NoError(t, c.Accept(Message{Type: MessageTypeAlert}))
		}

		assert.ErrorIs(t, c.Accept(Message{Type: MessageTypeAlert}), ErrBufferFull)
	})
}
