package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KiritiVelivela/chess-multiplayer/internal/domain"
)

func newHomeClient(t *testing.T, userID string) *Client {
	t.Helper()
	return NewClient(domain.Player{ID: userID, Name: "user-" + userID}, 8)
}

func drain(c *Client) []any {
	var got []any
	for {
		select {
		case p := <-c.Outbound():
			got = append(got, p)
		default:
			return got
		}
	}
}

func TestRegisterFirstAndLast(t *testing.T) {
	r := New(nil)
	a1 := newHomeClient(t, "u1")
	a2 := newHomeClient(t, "u1")

	assert.True(t, r.Register(a1), "first connection marks the user online")
	assert.False(t, r.Register(a2), "second connection is not a presence transition")

	assert.False(t, r.Unregister(a2), "one connection remains")
	assert.True(t, r.Unregister(a1), "last connection marks the user offline")
}

func TestFanOutToChannels(t *testing.T) {
	r := New(nil)
	a := newHomeClient(t, "u1")
	b := newHomeClient(t, "u2")
	r.Register(a)
	r.Register(b)

	require.Equal(t, 2, r.Send(Lobby, "lobby-event"))
	assert.Equal(t, []any{"lobby-event"}, drain(a))
	assert.Equal(t, []any{"lobby-event"}, drain(b))

	require.Equal(t, 1, r.Send(UserChannel("u1"), "personal"))
	assert.Equal(t, []any{"personal"}, drain(a))
	assert.Empty(t, drain(b))
}

func TestSendToEmptyChannelIsNoOp(t *testing.T) {
	r := New(nil)
	assert.Equal(t, 0, r.Send(GameChannel("missing"), "ignored"))
}

func TestGameChannelMembership(t *testing.T) {
	r := New(nil)
	a := newHomeClient(t, "u1")
	b := newHomeClient(t, "u2")
	r.JoinGame(a, "g1")
	r.JoinGame(b, "g1")

	require.Equal(t, 2, r.Members(GameChannel("g1")))
	require.Equal(t, 2, r.Send(GameChannel("g1"), "move"))

	r.LeaveGame(a)
	assert.Equal(t, 1, r.Members(GameChannel("g1")))
	assert.Equal(t, 1, r.Send(GameChannel("g1"), "move"))
	assert.False(t, a.Enqueue("late"), "closed client refuses enqueue")
}

func TestUnregisterRemovesFromEveryChannel(t *testing.T) {
	r := New(nil)
	a := newHomeClient(t, "u1")
	r.Register(a)
	r.JoinGame(a, "g1")

	r.Unregister(a)
	assert.Equal(t, 0, r.Members(Lobby))
	assert.Equal(t, 0, r.Members(UserChannel("u1")))
	assert.Equal(t, 0, r.Members(GameChannel("g1")))
}

func TestFullQueueDropsWithoutBlocking(t *testing.T) {
	r := New(nil)
	c := NewClient(domain.Player{ID: "u1"}, 1)
	r.Register(c)

	assert.Equal(t, 1, r.Send(UserChannel("u1"), "first"))
	assert.Equal(t, 0, r.Send(UserChannel("u1"), "second"), "full queue drops the event")
	assert.Equal(t, []any{"first"}, drain(c))
}
