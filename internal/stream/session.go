package stream

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

type clientMessage struct {
	Action     string   `json:"action"`
	EventTypes []string `json:"event_types"`
}

// Serve runs the read loop for one observer until the peer goes away.
// The protocol is small: "ping" gets a pong, "subscribe" narrows the
// connection's kind filter, anything else gets an error reply. The
// connection is removed from the hub before returning.
func (h *Hub) Serve(ws *websocket.Conn, clientType string) {
	c := h.Connect(ws, clientType, ws.RemoteAddr().String())
	defer h.Disconnect(c)

	h.SendTo(c, map[string]any{
		"type":      "connected",
		"message":   "WebSocket connected to event stream",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.SendTo(c, map[string]any{
				"type":    "error",
				"message": "Invalid JSON message",
			})
			continue
		}

		switch msg.Action {
		case "ping":
			h.SendTo(c, map[string]any{
				"type":      "pong",
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
		case "subscribe":
			c.SetSubscriptions(msg.EventTypes)
			h.SendTo(c, map[string]any{
				"type":        "subscribed",
				"event_types": msg.EventTypes,
			})
		default:
			h.SendTo(c, map[string]any{
				"type":    "error",
				"message": "Unknown action: " + msg.Action,
			})
		}
	}
}
