package buffer

import (
	"sort"
	"strings"
	"sync"

	"reelstream/internal/metrics"
)

// Registry owns the per-session controllers. Sessions are keyed by source
// path plus track selection, created lazily, and disposed explicitly by
// their owner; there is no automatic expiry.
type Registry struct {
	mu          sync.Mutex
	thresholds  Thresholds
	controllers map[string]*Controller
}

// NewRegistry returns an empty registry whose controllers share the given
// tunables.
func NewRegistry(thresholds Thresholds) *Registry {
	return &Registry{
		thresholds:  thresholds.normalized(),
		controllers: make(map[string]*Controller),
	}
}

// SessionKey builds a registry key from a source path and track selection.
func SessionKey(sourcePath, trackSelection string) string {
	path := strings.TrimSpace(sourcePath)
	track := strings.TrimSpace(trackSelection)
	if track == "" {
		return path
	}
	return path + "|" + track
}

// Acquire returns the controller for a session key, creating it on first
// use.
func (r *Registry) Acquire(key string) *Controller {
	r.mu.Lock()
	defer r.mu.Unlock()
	controller, ok := r.controllers[key]
	if !ok {
		controller = NewController(r.thresholds)
		r.controllers[key] = controller
		metrics.BufferSessions.Set(float64(len(r.controllers)))
	}
	return controller
}

// Lookup returns the controller for a session key without creating one.
func (r *Registry) Lookup(key string) (*Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	controller, ok := r.controllers[key]
	return controller, ok
}

// Dispose removes a session's controller. Returns false when the key is
// unknown.
func (r *Registry) Dispose(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.controllers[key]; !ok {
		return false
	}
	delete(r.controllers, key)
	metrics.BufferSessions.Set(float64(len(r.controllers)))
	return true
}

// Keys returns the active session keys in sorted order.
func (r *Registry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.controllers))
	for key := range r.controllers {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of active sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.controllers)
}
