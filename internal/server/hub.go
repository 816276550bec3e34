package server

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/yunjin-lab/archive-chat/internal/chat"
)

// roomGroup is one room's broadcast group. sendMu serializes fan-out for the
// room so every member observes events in the order the server processed
// them, without gating traffic in other rooms; mu guards only the membership
// map and is never held across a send.
type roomGroup struct {
	mu      sync.Mutex
	sendMu  sync.Mutex
	members map[string]*Client
}

// snapshot copies the current membership, minus the excluded connection.
func (g *roomGroup) snapshot(exceptConnID string) []*Client {
	g.mu.Lock()
	defer g.mu.Unlock()
	members := make([]*Client, 0, len(g.members))
	for id, client := range g.members {
		if id == exceptConnID {
			continue
		}
		members = append(members, client)
	}
	return members
}

// Hub tracks all live WebSocket clients by connection id and their room
// broadcast groups, and implements chat.Dispatcher on top of them. Sends are
// non-blocking: a client whose buffer is full is dropped rather than allowed
// to stall delivery for the rest of the room.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*Client
	rooms    map[string]*roomGroup
	memberOf map[string]string
	closed   bool
	wg       sync.WaitGroup
	log      zerolog.Logger
}

var _ chat.Dispatcher = (*Hub)(nil)

// NewHub creates an empty hub ready to manage connections.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients:  make(map[string]*Client),
		rooms:    make(map[string]*roomGroup),
		memberOf: make(map[string]string),
		log:      log,
	}
}

// Add registers a client and launches its read and write pumps. A client
// added to a hub that is already shutting down is closed immediately.
func (h *Hub) Add(client *Client) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		client.closeConn()
		return
	}
	h.clients[client.id] = client
	count := len(h.clients)
	h.mu.Unlock()

	h.log.Info().Str("conn", client.id).Str("addr", client.addr).Int("clients", count).Msg("client registered")

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

// Remove unregisters a client, drops it from its room group, and closes its
// send channel. Safe to call more than once for the same client.
func (h *Hub) Remove(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client.id)
	h.dropMembershipLocked(client.id)
	client.closed = true
	count := len(h.clients)
	h.mu.Unlock()

	// Close the channel after releasing the lock.
	close(client.send)
	h.log.Info().Str("conn", client.id).Str("addr", client.addr).Int("clients", count).Msg("client unregistered")
}

// dropMembershipLocked removes the connection from its current room group and
// deletes the group when it empties. Caller holds h.mu.
func (h *Hub) dropMembershipLocked(connID string) {
	room, ok := h.memberOf[connID]
	if !ok {
		return
	}
	delete(h.memberOf, connID)
	group := h.rooms[room]
	if group == nil {
		return
	}
	group.mu.Lock()
	delete(group.members, connID)
	empty := len(group.members) == 0
	group.mu.Unlock()
	if empty {
		delete(h.rooms, room)
	}
}

// Subscribe moves the connection into the named room's broadcast group,
// leaving any group it was in before. A connection is in at most one group at
// a time; rejoining simply rebinds.
func (h *Hub) Subscribe(connID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[connID]
	if !ok {
		return
	}

	h.dropMembershipLocked(connID)

	group := h.rooms[room]
	if group == nil {
		group = &roomGroup{members: make(map[string]*Client)}
		h.rooms[room] = group
	}
	group.mu.Lock()
	group.members[connID] = client
	group.mu.Unlock()
	h.memberOf[connID] = room
}

// ToRoom delivers an event to every member of the room except the connection
// named by exceptConnID. Unknown rooms are a no-op: delivery is best effort
// and a room with no members has no one to tell.
func (h *Hub) ToRoom(room, event string, payload any, exceptConnID string) {
	message, err := encodeEvent(event, payload)
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Msg("failed to encode event")
		return
	}

	h.mu.RLock()
	group := h.rooms[room]
	h.mu.RUnlock()
	if group == nil {
		return
	}

	var failed []*Client
	group.sendMu.Lock()
	for _, client := range group.snapshot(exceptConnID) {
		if !h.trySend(client, message) {
			failed = append(failed, client)
		}
	}
	group.sendMu.Unlock()

	h.removeFailed(failed)
}

// ToConn delivers an event to a single connection, if it is still registered.
func (h *Hub) ToConn(connID, event string, payload any) {
	message, err := encodeEvent(event, payload)
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Msg("failed to encode event")
		return
	}

	h.mu.RLock()
	client := h.clients[connID]
	h.mu.RUnlock()
	if client == nil {
		return
	}

	if !h.trySend(client, message) {
		h.removeFailed([]*Client{client})
	}
}

// trySend queues a message on the client's buffered send channel without
// blocking. It reports false when the client is gone or its buffer is full.
func (h *Hub) trySend(client *Client, message []byte) (ok bool) {
	defer func() {
		// The send channel closes on unregister; losing that race is
		// equivalent to a failed send.
		if r := recover(); r != nil {
			ok = false
		}
	}()

	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, exists := h.clients[client.id]; !exists || client.closed {
		return false
	}

	select {
	case client.send <- message:
		return true
	default:
		return false
	}
}

// removeFailed unregisters clients whose send buffers were full and closes
// their connections so their pumps wind down.
func (h *Hub) removeFailed(clients []*Client) {
	for _, client := range clients {
		h.log.Warn().Str("conn", client.id).Str("addr", client.addr).Msg("client removed due to full send buffer")
		h.Remove(client)
		client.closeConn()
	}
}

// Members reports the current size of a room's broadcast group.
func (h *Hub) Members(room string) int {
	h.mu.RLock()
	group := h.rooms[room]
	h.mu.RUnlock()
	if group == nil {
		return 0
	}
	group.mu.Lock()
	defer group.mu.Unlock()
	return len(group.members)
}

// Shutdown closes every client connection and waits for the pump goroutines
// to finish, up to the timeout.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.mu.Lock()
	h.closed = true
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	h.log.Info().Int("clients", len(clients)).Msg("shutting down client connections")
	for _, client := range clients {
		client.closeConn()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info().Msg("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.log.Warn().Msg("hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
