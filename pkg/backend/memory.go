package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryBackend is the in-process document engine bundled with the
// service. It keeps every document under one mutex, resolves create
// races fetch-before-create, applies field-path replace operations and
// fans resulting ops out to every subscribed stream.
type MemoryBackend struct {
	mu         sync.Mutex
	docs       map[string]*memDoc
	nextConnID int64
}

type memDoc struct {
	collection string
	id         string
	exists     bool
	version    int64
	data       any
	subs       map[*memStream]struct{}
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{docs: make(map[string]*memDoc)}
}

var _ Backend = (*MemoryBackend)(nil)

func docKey(collection, id string) string {
	return collection + "/" + id
}

func (b *MemoryBackend) doc(collection, id string) *memDoc {
	key := docKey(collection, id)
	d, ok := b.docs[key]
	if !ok {
		d = &memDoc{
			collection: collection,
			id:         id,
			subs:       make(map[*memStream]struct{}),
		}
		b.docs[key] = d
	}
	return d
}

func (b *MemoryBackend) Connect() Connection {
	return &memConnection{backend: b}
}

func (b *MemoryBackend) Listen() Stream {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextConnID++
	return &memStream{
		backend: b,
		connID:  b.nextConnID,
		out:     make(chan []byte, 256),
		subs:    make(map[*memDoc]struct{}),
	}
}

type memConnection struct {
	backend *MemoryBackend
}

func (c *memConnection) Get(collection, id string) Document {
	return &memDocHandle{backend: c.backend, collection: collection, id: id}
}

type memDocHandle struct {
	backend    *MemoryBackend
	collection string
	id         string
	fetched    bool
	exists     bool
	snapshot   any
}

func (h *memDocHandle) Fetch(ctx context.Context) error {
	h.backend.mu.Lock()
	defer h.backend.mu.Unlock()
	d := h.backend.doc(h.collection, h.id)
	h.fetched = true
	h.exists = d.exists
	h.snapshot = deepCopy(d.data)
	return nil
}

func (h *memDocHandle) Exists() bool { return h.exists }

func (h *memDocHandle) Data() any { return h.snapshot }

func (h *memDocHandle) Create(ctx context.Context, data any) error {
	h.backend.mu.Lock()
	defer h.backend.mu.Unlock()
	d := h.backend.doc(h.collection, h.id)
	if d.exists {
		// lost a creation race; the document is available either way
		h.exists = true
		h.snapshot = deepCopy(d.data)
		return nil
	}
	d.data = deepCopy(data)
	d.exists = true
	d.version = 1
	h.exists = true
	h.snapshot = deepCopy(d.data)
	d.notifySnapshotLocked()
	return nil
}

func (h *memDocHandle) SubmitReplace(ctx context.Context, path []string, value any) error {
	h.backend.mu.Lock()
	defer h.backend.mu.Unlock()
	d := h.backend.doc(h.collection, h.id)
	if !d.exists {
		return fmt.Errorf("submit to missing document %s/%s", h.collection, h.id)
	}
	changed, od := d.replaceLocked(path, value)
	if !changed {
		return nil
	}
	h.snapshot = deepCopy(d.data)
	d.broadcastOpLocked(nil, []opComponent{{Path: anyPath(path), OldValue: od, NewValue: deepCopy(value)}})
	return nil
}

// replaceLocked swaps the value at path, creating intermediate objects
// as needed. Returns whether anything changed plus the prior value.
func (d *memDoc) replaceLocked(path []string, value any) (bool, any) {
	norm := deepCopy(value)
	if len(path) == 0 {
		if jsonEqual(d.data, norm) {
			return false, nil
		}
		od := d.data
		d.data = norm
		d.version++
		return true, od
	}

	root, ok := d.data.(map[string]any)
	if !ok {
		root = map[string]any{}
		d.data = root
	}
	parent := root
	for _, key := range path[:len(path)-1] {
		child, ok := parent[key].(map[string]any)
		if !ok {
			child = map[string]any{}
			parent[key] = child
		}
		parent = child
	}
	last := path[len(path)-1]
	if jsonEqual(parent[last], norm) {
		return false, nil
	}
	od := parent[last]
	parent[last] = norm
	d.version++
	return true, od
}

type opComponent struct {
	Path     []any `json:"p"`
	OldValue any   `json:"od,omitempty"`
	NewValue any   `json:"oi,omitempty"`
}

type envelope struct {
	Action     string          `json:"a"`
	Collection string          `json:"c,omitempty"`
	Doc        string          `json:"d,omitempty"`
	Version    *int64          `json:"v,omitempty"`
	Ops        []opComponent   `json:"op,omitempty"`
	Data       *snapshotData   `json:"data,omitempty"`
	Protocol   int             `json:"protocol,omitempty"`
	ID         json.RawMessage `json:"id,omitempty"`
	Type       string          `json:"type,omitempty"`
	Seq        int64           `json:"seq,omitempty"`
	Src        string          `json:"src,omitempty"`
	Create     json.RawMessage `json:"create,omitempty"`
}

type snapshotData struct {
	Version int64 `json:"v"`
	Data    any   `json:"data"`
}

func (d *memDoc) snapshotEnvelope(action string) envelope {
	return envelope{
		Action:     action,
		Collection: d.collection,
		Doc:        d.id,
		Data:       &snapshotData{Version: d.version, Data: deepCopy(d.data)},
	}
}

// notifySnapshotLocked pushes a fresh snapshot to every subscriber,
// used after an out-of-band create so late joiners converge.
func (d *memDoc) notifySnapshotLocked() {
	if len(d.subs) == 0 {
		return
	}
	msg, err := json.Marshal(d.snapshotEnvelope("s"))
	if err != nil {
		return
	}
	for s := range d.subs {
		s.sendLocked(msg)
	}
}

// broadcastOpLocked fans an applied operation out to all subscribers
// except the originating stream.
func (d *memDoc) broadcastOpLocked(from *memStream, ops []opComponent) {
	if len(d.subs) == 0 {
		return
	}
	v := d.version
	msg, err := json.Marshal(envelope{
		Action:     "op",
		Collection: d.collection,
		Doc:        d.id,
		Version:    &v,
		Ops:        ops,
	})
	if err != nil {
		return
	}
	for s := range d.subs {
		if s != from {
			s.sendLocked(msg)
		}
	}
}

type memStream struct {
	backend *MemoryBackend
	connID  int64
	out     chan []byte
	closed  bool
	seq     int64
	subs    map[*memDoc]struct{}
}

func (s *memStream) Recv() <-chan []byte { return s.out }

// sendLocked enqueues a message for the client; the backend mutex must
// be held. A slow consumer's backlog is dropped rather than blocking
// the engine.
func (s *memStream) sendLocked(msg []byte) {
	if s.closed {
		return
	}
	select {
	case s.out <- msg:
	default:
	}
}

func (s *memStream) Close() {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for d := range s.subs {
		delete(d.subs, s)
	}
	s.subs = nil
	close(s.out)
}

// Push handles one client envelope. Unknown actions are acknowledged
// with an echo so well-behaved clients don't stall; garbage is dropped.
func (s *memStream) Push(msg []byte) {
	var env envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return
	}

	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	if s.closed {
		return
	}

	switch env.Action {
	case "hs":
		s.reply(envelope{Action: "hs", Protocol: 1, ID: env.ID, Type: "json0"})
	case "s":
		d := s.backend.doc(env.Collection, env.Doc)
		d.subs[s] = struct{}{}
		s.subs[d] = struct{}{}
		s.reply(d.snapshotEnvelope("s"))
	case "u":
		d := s.backend.doc(env.Collection, env.Doc)
		delete(d.subs, s)
		delete(s.subs, d)
		s.reply(envelope{Action: "u", Collection: env.Collection, Doc: env.Doc})
	case "f":
		d := s.backend.doc(env.Collection, env.Doc)
		s.reply(d.snapshotEnvelope("f"))
	case "op":
		s.handleOp(env)
	default:
		// queries, presence and bulk actions are acknowledged untouched
		s.reply(envelope{Action: env.Action, Collection: env.Collection, Doc: env.Doc, ID: env.ID})
	}
}

func (s *memStream) handleOp(env envelope) {
	d := s.backend.doc(env.Collection, env.Doc)

	if len(env.Create) > 0 && !d.exists {
		var payload struct {
			Data any `json:"data"`
		}
		if err := json.Unmarshal(env.Create, &payload); err == nil {
			d.data = deepCopy(payload.Data)
			d.exists = true
			d.version = 1
		}
	}

	if !d.exists {
		return
	}

	applied := make([]opComponent, 0, len(env.Ops))
	for _, op := range env.Ops {
		path := stringPath(op.Path)
		changed, od := d.replaceLocked(path, op.NewValue)
		if changed {
			applied = append(applied, opComponent{Path: op.Path, OldValue: od, NewValue: deepCopy(op.NewValue)})
		}
	}

	// ack to the sender, then fan out to the other subscribers
	s.seq++
	v := d.version
	ack, err := json.Marshal(envelope{
		Action:     "op",
		Collection: env.Collection,
		Doc:        env.Doc,
		Version:    &v,
		Seq:        s.seq,
		Src:        fmt.Sprintf("c%d", s.connID),
	})
	if err == nil {
		s.sendLocked(ack)
	}
	if len(applied) > 0 {
		d.broadcastOpLocked(s, applied)
	}
}

func (s *memStream) reply(env envelope) {
	msg, err := json.Marshal(env)
	if err != nil {
		return
	}
	s.sendLocked(msg)
}

func stringPath(path []any) []string {
	out := make([]string, 0, len(path))
	for _, p := range path {
		out = append(out, fmt.Sprintf("%v", p))
	}
	return out
}

func anyPath(path []string) []any {
	out := make([]any, 0, len(path))
	for _, p := range path {
		out = append(out, p)
	}
	return out
}

// deepCopy detaches a JSON-like value through a marshal round trip, the
// same normalization the wire applies.
func deepCopy(v any) any {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

func jsonEqual(a, b any) bool {
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(ab) == string(bb)
}
