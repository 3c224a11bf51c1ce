package asyncio

import "sync"

// Registry maps opaque external handles to the EventSet they identify. It
// exists for wrapper layers (CLI commands, RPC surfaces) that must hand
// callers a stable, copyable value instead of a *EventSet pointer; the core
// package itself never consults a Registry.
type Registry struct {
	mu     sync.Mutex
	sets   map[int64]*EventSet
	nextID int64
}

// NewRegistry returns an empty handle registry.
func NewRegistry() *Registry {
	return &Registry{sets: make(map[int64]*EventSet)}
}

// Register allocates a fresh handle for es and returns it. es must not be
// nil.
func (r *Registry) Register(es *EventSet) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	handle := r.nextID
	r.sets[handle] = es

	return handle
}

// Lookup resolves handle to its EventSet. ok is false if handle was never
// issued or has since been deregistered.
func (r *Registry) Lookup(handle int64) (es *EventSet, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	es, ok = r.sets[handle]

	return es, ok
}

// Deregister removes handle from the registry. It is a no-op if handle is
// not present. Callers are responsible for calling Close on the associated
// EventSet first; Deregister does not do it for them.
func (r *Registry) Deregister(handle int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sets, handle)
}
