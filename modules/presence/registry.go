package presence

import "sync"

// Registry is the process-wide mapping of user to open connections. A user is
// online iff their connection set is non-empty; the set is removed as soon as
// it drains.
//
// The add/remove/size-check sequence runs under one lock so that two devices
// closing at the same time produce exactly one offline transition.
type Registry struct {
	mu    sync.Mutex
	users map[string]map[string]struct{}
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		users: make(map[string]map[string]struct{}),
	}
}

// Register adds connID to the user's connection set. It reports whether this
// is the user's first open connection.
func (r *Registry) Register(userID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.users[userID]
	if !ok {
		conns = make(map[string]struct{})
		r.users[userID] = conns
	}
	first := len(conns) == 0
	conns[connID] = struct{}{}
	return first
}

// Unregister removes connID from the user's connection set. It reports
// whether this closed the user's last connection. Removing an unknown
// connection is a no-op and never reports a transition.
func (r *Registry) Unregister(userID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.users[userID]
	if !ok {
		return false
	}
	if _, ok := conns[connID]; !ok {
		return false
	}
	delete(conns, connID)
	if len(conns) > 0 {
		return false
	}
	delete(r.users, userID)
	return true
}

// Connections returns the user's open connection IDs.
func (r *Registry) Connections(userID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns := r.users[userID]
	if len(conns) == 0 {
		return nil
	}
	ids := make([]string, 0, len(conns))
	for id := range conns {
		ids = append(ids, id)
	}
	return ids
}

// Online reports whether the user has at least one open connection.
func (r *Registry) Online(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users[userID]) > 0
}

// OnlineCount returns the number of online users.
func (r *Registry) OnlineCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}
