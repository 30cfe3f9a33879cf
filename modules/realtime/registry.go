package realtime

import "sync"

// Registry tracks live, authenticated connections per user.
type Registry struct {
	mu     sync.RWMutex
	byUser map[string]map[string]*Conn // userID -> connID -> conn
	byConn map[string]*Conn            // connID -> conn
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[string]map[string]*Conn),
		byConn: make(map[string]*Conn),
	}
}

// Register adds c under userID. It reports true when this is the user's first
// live connection. Registering the same connection twice is a no-op.
func (r *Registry) Register(userID string, c *Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byConn[c.ID()]; ok {
		return false
	}
	conns, ok := r.byUser[userID]
	if !ok {
		conns = make(map[string]*Conn)
		r.byUser[userID] = conns
	}
	conns[c.ID()] = c
	r.byConn[c.ID()] = c
	return len(conns) == 1
}

// Unregister removes c. It reports true when c was the user's last live
// connection. Unknown connections are ignored.
func (r *Registry) Unregister(c *Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byConn[c.ID()]; !ok {
		return false
	}
	delete(r.byConn, c.ID())

	userID := c.UserID()
	conns := r.byUser[userID]
	delete(conns, c.ID())
	if len(conns) == 0 {
		delete(r.byUser, userID)
		return true
	}
	return false
}

// ConnectionsFor returns a snapshot of the user's live connections.
func (r *Registry) ConnectionsFor(userID string) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.byUser[userID]
	out := make([]*Conn, 0, len(conns))
	for _, c := range conns {
		out = append(out, c)
	}
	return out
}

// IsOnline reports whether the user has at least one live connection.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// Get looks up a registered connection by ID.
func (r *Registry) Get(connID string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byConn[connID]
	return c, ok
}

// OnlineUsers returns the IDs of every user with a live connection.
func (r *Registry) OnlineUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.byUser))
	for userID := range r.byUser {
		out = append(out, userID)
	}
	return out
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}

// UserCount returns the number of online users.
func (r *Registry) UserCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

// All returns every registered connection.
func (r *Registry) All() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Conn, 0, len(r.byConn))
	for _, c := range r.byConn {
		out = append(out, c)
	}
	return out
}
