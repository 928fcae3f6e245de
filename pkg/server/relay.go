package server

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// RelayHandler serves the presence relay: ephemeral named rooms
// carrying cursor and selection traffic. Room membership has its own
// identity space, unrelated to document sync sessions.
type RelayHandler struct {
	log      zerolog.Logger
	reg      *registry
	upgrader websocket.Upgrader

	mu    sync.Mutex
	rooms map[string]map[*client]struct{}
}

func NewRelayHandler(log zerolog.Logger) *RelayHandler {
	return &RelayHandler{
		log:      log,
		reg:      newRegistry(),
		upgrader: newUpgrader(),
		rooms:    make(map[string]map[*client]struct{}),
	}
}

type relayFrame struct {
	T    string `json:"t"`
	Name string `json:"name"`
	To   string `json:"to"`
}

func (h *RelayHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("relay upgrade failed")
		return
	}
	defer conn.Close()

	cl := h.reg.add(conn, uuid.NewString())
	defer h.reg.remove(cl)
	defer h.leaveAll(cl)

	_ = cl.sendJSON(map[string]any{"t": "welcome", "userId": cl.user})

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if string(payload) == "ping" {
			_ = cl.sendText("pong")
			continue
		}

		var frame relayFrame
		if err := json.Unmarshal(payload, &frame); err != nil || frame.Name == "" {
			continue
		}
		switch frame.T {
		case "room:join":
			h.join(cl, frame.Name)
		case "room:leave":
			h.leave(cl, frame.Name)
		case "room:msg":
			h.message(cl, frame, payload)
		}
	}
}

// join adds the client to a room, announces it to existing members and
// returns the member list to the joiner.
func (h *RelayHandler) join(cl *client, room string) {
	h.mu.Lock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*client]struct{})
		h.rooms[room] = members
	}
	notify := make([]*client, 0, len(members))
	users := make([]string, 0, len(members)+1)
	for member := range members {
		notify = append(notify, member)
		users = append(users, member.user)
	}
	members[cl] = struct{}{}
	users = append(users, cl.user)
	h.mu.Unlock()

	for _, member := range notify {
		_ = member.sendJSON(map[string]any{"t": "room:join", "name": room, "userId": cl.user})
	}
	_ = cl.sendJSON(map[string]any{"t": "room:join", "name": room, "users": users})
}

// leave drops the client from a room, announces the departure and
// removes the room once empty.
func (h *RelayHandler) leave(cl *client, room string) {
	h.mu.Lock()
	members, ok := h.rooms[room]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, joined := members[cl]; !joined {
		h.mu.Unlock()
		return
	}
	delete(members, cl)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
	notify := make([]*client, 0, len(members))
	for member := range members {
		notify = append(notify, member)
	}
	h.mu.Unlock()

	for _, member := range notify {
		_ = member.sendJSON(map[string]any{"t": "room:leave", "name": room, "userId": cl.user})
	}
}

// message fans a room frame out verbatim; senders embed their own
// identity in the frame body. A "to" target is looked up across all
// relay connections, not just the room, and dropped when absent.
func (h *RelayHandler) message(cl *client, frame relayFrame, payload []byte) {
	if frame.To != "" {
		if target := h.reg.findUser(frame.To); target != nil {
			_ = target.send(payload)
		}
		return
	}

	h.mu.Lock()
	members := h.rooms[frame.Name]
	notify := make([]*client, 0, len(members))
	for member := range members {
		if member != cl {
			notify = append(notify, member)
		}
	}
	h.mu.Unlock()

	for _, member := range notify {
		_ = member.send(payload)
	}
}

func (h *RelayHandler) leaveAll(cl *client) {
	h.mu.Lock()
	joined := make([]string, 0)
	for room, members := range h.rooms {
		if _, ok := members[cl]; ok {
			joined = append(joined, room)
		}
	}
	h.mu.Unlock()

	for _, room := range joined {
		h.leave(cl, room)
	}
}
