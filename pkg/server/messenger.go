package server

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// MessengerHub serves the global event bus. Accepted frames are fanned
// out verbatim to every other connection; server-side producers publish
// through Publish, which reaches everyone.
type MessengerHub struct {
	log      zerolog.Logger
	reg      *registry
	upgrader websocket.Upgrader
}

func NewMessengerHub(log zerolog.Logger) *MessengerHub {
	return &MessengerHub{
		log:      log,
		reg:      newRegistry(),
		upgrader: newUpgrader(),
	}
}

func (h *MessengerHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("messenger upgrade failed")
		return
	}
	defer conn.Close()

	cl := h.reg.add(conn, uuid.NewString())
	defer h.reg.remove(cl)

	_ = cl.sendJSON(map[string]any{"name": "welcome", "userId": cl.user})

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if string(payload) == "ping" {
			_ = cl.sendText("pong")
			continue
		}

		var frame struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(payload, &frame); err != nil || frame.Name == "" {
			continue
		}
		if frame.Name == "authenticate" {
			_ = cl.sendJSON(map[string]any{"name": "welcome", "userId": cl.user})
			continue
		}
		h.reg.broadcast(payload, func(peer *client) bool { return peer != cl })
	}
}

// Publish emits a server-side event to every connected client. The
// payload rides under the data key; editors read {name, data: {...}}.
func (h *MessengerHub) Publish(name string, data map[string]any) {
	payload, err := json.Marshal(map[string]any{"name": name, "data": data})
	if err != nil {
		h.log.Error().Err(err).Str("event", name).Msg("event marshal failed")
		return
	}
	h.reg.broadcast(payload, nil)
}
