package chat

import "sync"

// Binding is the (room, displayName) association a connection holds after a
// successful join.
type Binding struct {
	Room     string
	Username string
}

// ConnTable is the connection registry: connection id to current binding.
// A connection holds at most one binding; a new join overwrites the previous
// one (last join wins, there is no explicit leave event).
type ConnTable struct {
	mu       sync.RWMutex
	bindings map[string]Binding
}

// NewConnTable returns an empty connection registry.
func NewConnTable() *ConnTable {
	return &ConnTable{bindings: make(map[string]Binding)}
}

// Bind records or overwrites the binding for a connection.
func (t *ConnTable) Bind(connID, room, username string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bindings[connID] = Binding{Room: room, Username: username}
}

// Unbind removes and returns the prior binding. The second return is false
// when the connection never joined, which tells the disconnect path to skip
// the leave notice.
func (t *ConnTable) Unbind(connID string) (Binding, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.bindings[connID]
	if ok {
		delete(t.bindings, connID)
	}
	return b, ok
}

// Lookup returns the current binding without removing it.
func (t *ConnTable) Lookup(connID string) (Binding, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	b, ok := t.bindings[connID]
	return b, ok
}
