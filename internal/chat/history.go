package chat

import "sync"

// MaxHistoryPerRoom caps how many messages a room retains. Appends beyond the
// cap evict the oldest entries first, keeping the most recent ones.
const MaxHistoryPerRoom = 200

// roomHistory guards one room's ordered message log. Each room carries its
// own lock so traffic in unrelated rooms never serializes.
type roomHistory struct {
	mu       sync.Mutex
	messages []Message
}

func (h *roomHistory) append(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.messages = append(h.messages, msg)
	if n := len(h.messages); n > MaxHistoryPerRoom {
		trimmed := make([]Message, MaxHistoryPerRoom)
		copy(trimmed, h.messages[n-MaxHistoryPerRoom:])
		h.messages = trimmed
	}
}

func (h *roomHistory) snapshot() []Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// RoomStore is the room registry: a lazy mapping from room name to its
// bounded history. Room names are opaque lookup keys; rooms are created on
// first join or first message and live for the process lifetime.
type RoomStore struct {
	mu    sync.RWMutex
	rooms map[string]*roomHistory
}

// NewRoomStore returns an empty room registry.
func NewRoomStore() *RoomStore {
	return &RoomStore{rooms: make(map[string]*roomHistory)}
}

// room returns the named room's history, creating it if absent.
func (s *RoomStore) room(name string) *roomHistory {
	s.mu.RLock()
	h, ok := s.rooms[name]
	s.mu.RUnlock()
	if ok {
		return h
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok = s.rooms[name]; ok {
		return h
	}
	h = &roomHistory{}
	s.rooms[name] = h
	return h
}

// Touch ensures the named room exists. Joins call it so that rooms with no
// messages yet still show up in exports.
func (s *RoomStore) Touch(name string) {
	s.room(name)
}

// Append adds a message to the named room's history, evicting the oldest
// entries when the cap is exceeded.
func (s *RoomStore) Append(name string, msg Message) {
	s.room(name).append(msg)
}

// Snapshot returns a copy of the named room's history, oldest first, creating
// the room if absent. The copy is safe to hand to a client while writers
// continue.
func (s *RoomStore) Snapshot(name string) []Message {
	return s.room(name).snapshot()
}

// SnapshotAll returns a point-in-time copy of every room's history, keyed by
// room name. Rooms with empty histories are included. The result shares no
// memory with the live registry, so the export engine can serialize it
// without holding any lock that gates message delivery.
func (s *RoomStore) SnapshotAll() map[string][]Message {
	s.mu.RLock()
	histories := make(map[string]*roomHistory, len(s.rooms))
	for name, h := range s.rooms {
		histories[name] = h
	}
	s.mu.RUnlock()

	out := make(map[string][]Message, len(histories))
	for name, h := range histories {
		out[name] = h.snapshot()
	}
	return out
}

// Len reports the current history length of the named room without creating
// it.
func (s *RoomStore) Len(name string) int {
	s.mu.RLock()
	h, ok := s.rooms[name]
	s.mu.RUnlock()
	if !ok {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}
