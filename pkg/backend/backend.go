// Package backend is the boundary to the JSON-operation convergence
// engine that owns live document state. The sync service never merges
// concurrent operations itself; it seeds documents, forwards client
// envelopes into a per-connection stream and authors corrective patches
// through a service-side connection.
package backend

import "context"

// Backend exposes the engine primitives the service consumes.
type Backend interface {
	// Connect returns a service-side connection for seeding and patching
	// documents.
	Connect() Connection
	// Listen attaches a new client duplex stream to the engine. The
	// caller pushes raw client envelopes in and forwards engine messages
	// from Recv to the socket until Close.
	Listen() Stream
}

// Connection issues document operations on behalf of the service.
type Connection interface {
	// Get returns a handle for the named document. The handle holds no
	// state until Fetch is called.
	Get(collection, id string) Document
}

// Document is a fetched snapshot handle. The engine owns the
// authoritative state; Data returns a detached copy.
type Document interface {
	// Fetch loads the current snapshot into the handle.
	Fetch(ctx context.Context) error
	// Exists reports whether the document has been created. Valid after
	// Fetch.
	Exists() bool
	// Data returns the snapshot loaded by Fetch.
	Data() any
	// Create creates the document with the given initial payload. A
	// concurrent create that loses the race is a no-op, not an error.
	Create(ctx context.Context, data any) error
	// SubmitReplace replaces the value at a field path (empty path means
	// the document root). Writing a value equal to the current one is a
	// no-op, which keeps corrective patches idempotent under retries.
	SubmitReplace(ctx context.Context, path []string, value any) error
}

// Stream is the duplex message channel between one client connection
// and the engine.
type Stream interface {
	// Push hands a raw client envelope to the engine.
	Push(msg []byte)
	// Recv yields engine messages destined for the client. The channel
	// closes when the stream is closed.
	Recv() <-chan []byte
	// Close tears the stream down and releases its subscriptions.
	Close()
}
