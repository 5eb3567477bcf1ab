// Package controller tracks the cancellation handles of in-flight exchanges
// so they can be stopped by a caller that did not start them.
package controller

import (
	"sync"
)

// Handle stops an in-flight backend call.
type Handle interface {
	Abort()
}

// AbortFunc adapts a plain function to Handle.
type AbortFunc func()

func (f AbortFunc) Abort() { f() }

// Key identifies one exchange: the session it belongs to and the assistant
// message it is producing.
type Key struct {
	SessionID string
	MessageID string
}

func (k Key) String() string {
	return k.SessionID + "," + k.MessageID
}

// Registry maps exchange keys to active cancellation handles.
// Thread-safe for concurrent access.
type Registry struct {
	mu      sync.RWMutex
	handles map[Key]Handle
}

// Default is the process-wide registry.
var Default = NewRegistry()

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		handles: make(map[Key]Handle),
	}
}

// Add registers h for the exchange, replacing any existing handle.
func (r *Registry) Add(sessionID, messageID string, h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handles[Key{SessionID: sessionID, MessageID: messageID}] = h
}

// Get returns the handle registered for the exchange.
func (r *Registry) Get(sessionID, messageID string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, exists := r.handles[Key{SessionID: sessionID, MessageID: messageID}]
	return h, exists
}

// Remove drops the handle for the exchange. Missing keys are ignored.
func (r *Registry) Remove(sessionID, messageID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.handles, Key{SessionID: sessionID, MessageID: messageID})
}

// Stop aborts and removes the handle for the exchange. Reports whether a
// handle was found; a miss is a no-op.
func (r *Registry) Stop(sessionID, messageID string) bool {
	key := Key{SessionID: sessionID, MessageID: messageID}

	r.mu.Lock()
	h, exists := r.handles[key]
	delete(r.handles, key)
	r.mu.Unlock()

	if !exists {
		return false
	}
	h.Abort()
	return true
}

// StopAll aborts and removes every handle belonging to the session.
// Returns the number of exchanges stopped.
func (r *Registry) StopAll(sessionID string) int {
	r.mu.Lock()
	var stopped []Handle
	for key, h := range r.handles {
		if key.SessionID == sessionID {
			stopped = append(stopped, h)
			delete(r.handles, key)
		}
	}
	r.mu.Unlock()

	// Abort outside the lock; handles may call back into the registry.
	for _, h := range stopped {
		h.Abort()
	}
	return len(stopped)
}

// HasPending reports whether any exchange is still registered.
func (r *Registry) HasPending() bool {
	return r.Len() > 0
}

// Len returns the number of registered handles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}

// Keys returns the keys of every registered handle.
func (r *Registry) Keys() []Key {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]Key, 0, len(r.handles))
	for key := range r.handles {
		keys = append(keys, key)
	}
	return keys
}
