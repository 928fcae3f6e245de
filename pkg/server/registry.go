// Package server exposes the three websocket endpoints: document sync,
// presence relay and the event messenger. All three share one broadcast
// primitive, a registry of connections filtered by predicate.
package server

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
)

// client wraps one websocket connection. Gorilla connections do not
// allow concurrent writers, so every outbound frame goes through the
// client's write mutex.
type client struct {
	id   int64
	user string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *client) sendText(payload string) error {
	return c.send([]byte(payload))
}

func (c *client) sendJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.send(payload)
}

// registry is the set of live connections on one endpoint.
type registry struct {
	mu      sync.Mutex
	nextID  int64
	clients map[int64]*client
}

func newRegistry() *registry {
	return &registry{clients: make(map[int64]*client)}
}

func (r *registry) add(conn *websocket.Conn, user string) *client {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	c := &client{id: r.nextID, user: user, conn: conn}
	r.clients[c.id] = c
	return c
}

func (r *registry) remove(c *client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, c.id)
}

// snapshot returns the current clients so sends happen outside the
// registry lock; a slow socket must not stall the whole endpoint.
func (r *registry) snapshot() []*client {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}

// broadcast sends payload to every connection matching the predicate.
// Write errors are ignored; a dying connection is reaped by its own
// read loop.
func (r *registry) broadcast(payload []byte, include func(*client) bool) {
	for _, c := range r.snapshot() {
		if include == nil || include(c) {
			_ = c.send(payload)
		}
	}
}

// findUser locates a connection by user id, or nil.
func (r *registry) findUser(user string) *client {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.clients {
		if c.user == user {
			return c
		}
	}
	return nil
}
