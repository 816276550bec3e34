package server

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/yunjin-lab/archive-chat/internal/chat"
)

// addTestClient registers a pump-less client directly with the hub so
// delivery can be observed on its send channel.
func addTestClient(t *testing.T, h *Hub, id string, buffer int) *Client {
	t.Helper()
	c := &Client{id: id, send: make(chan []byte, buffer), log: zerolog.Nop()}
	h.mu.Lock()
	h.clients[id] = c
	h.mu.Unlock()
	return c
}

func receiveEnvelope(t *testing.T, c *Client) Envelope {
	t.Helper()
	select {
	case raw, ok := <-c.send:
		require.True(t, ok, "send channel closed unexpectedly")
		var env Envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		return env
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for delivery to %s", c.id)
		return Envelope{}
	}
}

func expectNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case raw, ok := <-c.send:
		if ok {
			t.Fatalf("unexpected delivery to %s: %s", c.id, raw)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_ToRoomExcludesOrigin(t *testing.T) {
	req := require.New(t)
	h := NewHub(zerolog.Nop())
	alice := addTestClient(t, h, "alice", 8)
	bob := addTestClient(t, h, "bob", 8)
	h.Subscribe("alice", "general")
	h.Subscribe("bob", "general")

	h.ToRoom("general", chat.EventMessage, chat.Message{Sender: "alice", Body: "hi"}, "alice")

	env := receiveEnvelope(t, bob)
	req.Equal(chat.EventMessage, env.Event)
	var msg chat.Message
	req.NoError(json.Unmarshal(env.Data, &msg))
	req.Equal("hi", msg.Body)

	expectNothing(t, alice)
}

func TestHub_ToRoomUnknownRoomIsNoOp(t *testing.T) {
	h := NewHub(zerolog.Nop())
	c := addTestClient(t, h, "alice", 8)

	h.ToRoom("nowhere", chat.EventMessage, "x", "")

	expectNothing(t, c)
}

func TestHub_ToConnUnicasts(t *testing.T) {
	req := require.New(t)
	h := NewHub(zerolog.Nop())
	alice := addTestClient(t, h, "alice", 8)
	bob := addTestClient(t, h, "bob", 8)
	h.Subscribe("alice", "general")
	h.Subscribe("bob", "general")

	h.ToConn("bob", chat.EventHistory, []chat.Message{{Sender: "alice", Body: "hi"}})

	env := receiveEnvelope(t, bob)
	req.Equal(chat.EventHistory, env.Event)
	expectNothing(t, alice)
}

func TestHub_ToConnUnknownIDIsNoOp(t *testing.T) {
	h := NewHub(zerolog.Nop())
	h.ToConn("ghost", chat.EventHistory, nil)
}

func TestHub_SubscribeRebindMovesRooms(t *testing.T) {
	req := require.New(t)
	h := NewHub(zerolog.Nop())
	addTestClient(t, h, "alice", 8)

	h.Subscribe("alice", "general")
	req.Equal(1, h.Members("general"))

	// Last join wins; the old group is left and deleted once empty.
	h.Subscribe("alice", "random")
	req.Equal(0, h.Members("general"))
	req.Equal(1, h.Members("random"))
}

func TestHub_SubscribeUnknownConnIsNoOp(t *testing.T) {
	h := NewHub(zerolog.Nop())
	h.Subscribe("ghost", "general")
	require.Equal(t, 0, h.Members("general"))
}

func TestHub_RemoveDropsMembershipAndClosesSend(t *testing.T) {
	req := require.New(t)
	h := NewHub(zerolog.Nop())
	alice := addTestClient(t, h, "alice", 8)
	h.Subscribe("alice", "general")

	h.Remove(alice)

	req.Equal(0, h.Members("general"))
	_, open := <-alice.send
	req.False(open)

	// A second remove is harmless.
	h.Remove(alice)
}

func TestHub_FullBufferDropsClient(t *testing.T) {
	req := require.New(t)
	h := NewHub(zerolog.Nop())
	slow := addTestClient(t, h, "slow", 1)
	h.Subscribe("slow", "general")

	h.ToConn("slow", chat.EventMessage, chat.Message{Body: "one"})
	// The buffer is now full; the next delivery evicts the client.
	h.ToConn("slow", chat.EventMessage, chat.Message{Body: "two"})

	h.mu.RLock()
	_, registered := h.clients["slow"]
	h.mu.RUnlock()
	req.False(registered)
	req.Equal(0, h.Members("general"))
	req.True(slow.closed)
}

func TestHub_ShutdownRejectsNewClients(t *testing.T) {
	req := require.New(t)
	h := NewHub(zerolog.Nop())
	req.NoError(h.Shutdown(time.Second))

	late := &Client{id: "late", send: make(chan []byte, 1), log: zerolog.Nop()}
	h.Add(late)

	h.mu.RLock()
	defer h.mu.RUnlock()
	req.Empty(h.clients)
}
