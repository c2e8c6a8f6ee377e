// Package registry holds the process-wide table of business event handlers.
// Registration is last-writer-wins: UI components mount and unmount far more
// often than the connection opens and closes, so each event kind carries at
// most one current callback and re-registering simply replaces it.
package registry

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"
	"github.com/taskhive/realtime/src/types"
)

// Registry maps event kinds to their single current handler.
type Registry struct {
	mu       sync.RWMutex
	handlers map[types.Kind]types.Handler
	logger   zerolog.Logger
}

// New creates an empty registry.
func New(logger zerolog.Logger) *Registry {
	return &Registry{
		handlers: make(map[types.Kind]types.Handler),
		logger:   logger.With().Str("component", "registry").Logger(),
	}
}

// Register stores handler as the sole callback for kind, replacing any
// prior one. A nil handler clears the slot.
func (r *Registry) Register(kind types.Kind, handler types.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if handler == nil {
		delete(r.handlers, kind)
		return
	}
	r.handlers[kind] = handler
}

// Unregister removes the handler for kind, if any.
func (r *Registry) Unregister(kind types.Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, kind)
}

// Dispatch invokes the current handler for kind with the event payload.
// Events with no registered handler are silently dropped. A panicking
// handler is contained here so it cannot break delivery of later events.
func (r *Registry) Dispatch(kind types.Kind, data json.RawMessage) {
	r.mu.RLock()
	handler, ok := r.handlers[kind]
	r.mu.RUnlock()

	if !ok {
		r.logger.Debug().Str("kind", string(kind)).Msg("no handler")
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().
				Str("kind", string(kind)).
				Interface("panic", rec).
				Msg("handler panicked")
		}
	}()
	handler(data)
}

// Reset drops all registered handlers. Called when the authenticated
// session ends.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = make(map[types.Kind]types.Handler)
}
