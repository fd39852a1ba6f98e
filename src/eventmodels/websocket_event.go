package eventmodels

import "github.com/kataras/go-events"

// Websocket activity emitted by the push hub.
const (
	WebsocketConnected       events.EventName = "websocket.connections"
	WebsocketMessageSent     events.EventName = "websocket.messages_sent"
	WebsocketMessageReceived events.EventName = "websocket.messages_received"
	WebsocketError           events.EventName = "websocket.errors"
)

var AllWebsocketEvents = []events.EventName{
	WebsocketConnected,
	WebsocketMessageSent,
	WebsocketMessageReceived,
	WebsocketError,
}
