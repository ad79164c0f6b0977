// Package transport defines the capability interface the Message Handler
// consumes (spec §6) and the registry variants are looked up through, per
// the "dynamic dispatch over... transports" design note (spec §9):
// concrete backends register under a symbolic id, same shape as the
// runner registry.
package transport

import (
	"context"

	"github.com/p0s/takopi/internal/model"
)

// Options is the untyped option bag Send takes: the handler sets "silent"
// for the initial progress message, and each backend interprets only the
// keys it understands. Parse mode travels in RenderedMessage instead.
type Options map[string]any

// Transport is the send/edit/delete/poll capability interface. All methods
// must be safe for concurrent use; the handler and the edits worker call
// Edit from different goroutines against the same MessageRef.
type Transport interface {
	ID() string
	Send(ctx context.Context, threadID string, rendered model.RenderedMessage, opts Options) (model.MessageRef, error)
	Edit(ctx context.Context, ref model.MessageRef, rendered model.RenderedMessage) error
	Delete(ctx context.Context, ref model.MessageRef) error
	// Poll yields incoming messages until ctx is done or the backend's
	// connection is exhausted. Implementations own their own long-poll or
	// webhook loop internally; Poll just exposes the resulting sequence as
	// a channel, closed when polling stops.
	Poll(ctx context.Context) <-chan model.IncomingMessage
}

// Registry is the process-wide keyed registry of transports, mirroring
// runner.Registry's shape per spec §9.
type Registry struct {
	transports map[string]Transport
}

// NewRegistry builds an empty transport registry.
func NewRegistry() *Registry {
	return &Registry{transports: map[string]Transport{}}
}

// Register adds t under its ID.
func (r *Registry) Register(t Transport) {
	r.transports[t.ID()] = t
}

// Get looks up a transport by id.
func (r *Registry) Get(id string) (Transport, bool) {
	t, ok := r.transports[id]
	return t, ok
}
