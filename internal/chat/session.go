package chat

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Dispatcher is the delivery surface the session manager drives. The hub
// implements it over the WebSocket transport; tests implement it with a
// recording fake.
type Dispatcher interface {
	// Subscribe adds the connection to the room's broadcast group,
	// removing it from any previous group (last join wins).
	Subscribe(connID, room string)
	// ToRoom delivers an event to every member of the room except the
	// connection named by exceptConnID (empty string excludes no one).
	ToRoom(room, event string, payload any, exceptConnID string)
	// ToConn delivers an event to a single connection.
	ToConn(connID, event string, payload any)
}

// ArchiveFunc builds the export archive bytes from a registry snapshot.
type ArchiveFunc func(map[string][]Message) ([]byte, error)

// AdminGate identifies the single privileged (room, sender) pair allowed to
// issue the in-band export command. This is a placeholder, not an
// authorization scheme: the sender string comes from the client and is
// trusted verbatim.
type AdminGate struct {
	Room    string
	User    string
	Command string
}

// DefaultAdminGate returns the gate the deployed relay ships with.
func DefaultAdminGate() AdminGate {
	return AdminGate{Room: "Dev", User: "aisakq", Command: "/save-all"}
}

// matches reports whether a post is the admin export command rather than a
// chat message.
func (g AdminGate) matches(req PostRequest) bool {
	return req.Room == g.Room && req.Sender == g.User &&
		strings.TrimSpace(req.Body) == g.Command
}

// Manager orchestrates join, message, and disconnect events against the room
// and connection registries and fans the results out through the dispatcher.
type Manager struct {
	rooms    *RoomStore
	conns    *ConnTable
	dispatch Dispatcher
	archive  ArchiveFunc
	gate     AdminGate
	now      func() time.Time
	validate *validator.Validate
	log      zerolog.Logger
}

// NewManager wires a session manager over the given registries, dispatcher,
// and archive builder.
func NewManager(rooms *RoomStore, conns *ConnTable, dispatch Dispatcher, archive ArchiveFunc, gate AdminGate, log zerolog.Logger) *Manager {
	return &Manager{
		rooms:    rooms,
		conns:    conns,
		dispatch: dispatch,
		archive:  archive,
		gate:     gate,
		now:      time.Now,
		validate: validator.New(),
		log:      log,
	}
}

// Join handles a join-room event. The connection is subscribed to the room's
// broadcast group, its binding is recorded, the other members are told, and
// the joiner alone receives the room's current history snapshot. A request
// missing the room or username is rejected with no observable effect.
func (m *Manager) Join(connID string, req JoinRequest) error {
	if err := m.validate.Struct(req); err != nil {
		return errors.Wrap(err, "invalid join request")
	}

	m.dispatch.Subscribe(connID, req.Room)
	m.conns.Bind(connID, req.Room, req.Username)
	m.rooms.Touch(req.Room)

	m.log.Info().
		Str("conn", connID).
		Str("room", req.Room).
		Str("username", req.Username).
		Msg("user joined room")

	m.dispatch.ToRoom(req.Room, EventUserJoined, fmt.Sprintf("%s joined", req.Username), connID)
	m.dispatch.ToConn(connID, EventHistory, m.rooms.Snapshot(req.Room))
	return nil
}

// Post handles a message event. The server assigns the timestamp, appends to
// the room's history with eviction, and relays the message to every other
// member of the room; the origin never receives its own message back. The
// admin export command is intercepted before any of that happens: it is never
// stored, never broadcast, and answered with a single export payload unicast
// to the sender.
func (m *Manager) Post(connID string, req PostRequest) error {
	if err := m.validate.Struct(req); err != nil {
		return errors.Wrap(err, "invalid message request")
	}

	if m.gate.matches(req) {
		m.exportTo(connID)
		return nil
	}

	msg := Message{
		Sender:    req.Sender,
		Body:      req.Body,
		Timestamp: m.now().UnixMilli(),
	}
	if req.Image != "" {
		if validImageDataURL(req.Image) {
			msg.Image = req.Image
		} else {
			m.log.Warn().
				Str("conn", connID).
				Str("room", req.Room).
				Msg("dropping attachment that does not decode as an image")
		}
	}

	m.rooms.Append(req.Room, msg)
	m.dispatch.ToRoom(req.Room, EventMessage, msg, connID)
	return nil
}

// Disconnect handles a connection close. It always clears the binding; the
// leave notice fires only when a binding existed, so a connection that never
// joined disappears silently.
func (m *Manager) Disconnect(connID string) {
	binding, ok := m.conns.Unbind(connID)
	if !ok {
		return
	}

	m.log.Info().
		Str("conn", connID).
		Str("room", binding.Room).
		Str("username", binding.Username).
		Msg("user left room")

	m.dispatch.ToRoom(binding.Room, EventUserLeft, fmt.Sprintf("%s left", binding.Username), connID)
}

// exportTo builds the archive from a point-in-time snapshot and unicasts it
// to the requesting connection. Construction runs on the caller's goroutine
// without holding any registry lock, so traffic in other rooms is not
// delayed. A build failure is delivered as a plain-text payload instead of
// crashing or going silent.
func (m *Manager) exportTo(connID string) {
	data, err := m.archive(m.rooms.SnapshotAll())
	if err != nil {
		m.log.Error().Err(err).Str("conn", connID).Msg("archive build failed")
		m.dispatch.ToConn(connID, EventExport, ExportPayload{
			Filename: "export_error.txt",
			MimeType: "text/plain",
			Content:  fmt.Sprintf("export failed: %v", err),
		})
		return
	}

	m.log.Info().Str("conn", connID).Int("bytes", len(data)).Msg("archive exported over socket")
	m.dispatch.ToConn(connID, EventExport, ExportPayload{
		Filename: ExportFilename,
		MimeType: ExportMimeType,
		Content:  base64.StdEncoding.EncodeToString(data),
		Encoding: "base64",
	})
}
