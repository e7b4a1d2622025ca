/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package games

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seednode/partyhost/room"
)

func member(id string) room.Member {
	return room.Member{ID: id, Role: room.RolePlayer, DisplayName: "name-" + id, State: room.Connected}
}

func requireCode(t *testing.T, err error, code string) *room.Rejection {
	t.Helper()
	rej, ok := room.AsRejection(err)
	require.True(t, ok, "expected a rejection, got %v", err)
	require.Equal(t, code, rej.Code)
	return rej
}

func TestCheckboxToggle(t *testing.T) {
	g := NewCheckbox()
	s := g.NewState().(*CheckboxState)
	a, b := member("a"), member("b")

	_, err := g.Apply(s, room.PhaseLobby, room.NewAction("set-size", setSize{Size: 4}), a)
	require.NoError(t, err)

	g.EnterPhase(s, room.PhaseLobby, PhaseRacing, []room.Member{a, b})
	require.Len(t, s.Boxes, 4)

	effect, err := g.Apply(s, PhaseRacing, room.NewAction("toggle", map[string]int{"box": 0}), a)
	require.NoError(t, err)
	assert.Equal(t, ToggleEffect{Box: 0, Owner: "a", Checked: true}, effect)
	assert.Equal(t, 1, s.Scores["a"])

	_, err = g.Apply(s, PhaseRacing, room.NewAction("toggle", map[string]int{"box": 0}), b)
	requireCode(t, err, CodeBoxTaken)
	assert.Equal(t, 0, s.Scores["b"])

	effect, err = g.Apply(s, PhaseRacing, room.NewAction("toggle", map[string]int{"box": 0}), a)
	require.NoError(t, err)
	assert.Equal(t, ToggleEffect{Box: 0}, effect)
	assert.Equal(t, 0, s.Scores["a"])

	_, err = g.Apply(s, PhaseRacing, room.NewAction("toggle", map[string]int{"box": 4}), a)
	requireCode(t, err, CodeInvalidBox)

	_, err = g.Apply(s, PhaseRacing, room.NewAction("toggle", map[string]any{}), a)
	requireCode(t, err, CodeInvalidBox)

	assert.False(t, g.PhaseComplete(s, PhaseRacing, nil))
	for box := range 4 {
		by := a
		if box%2 == 1 {
			by = b
		}
		_, err := g.Apply(s, PhaseRacing, room.NewAction("toggle", map[string]int{"box": box}), by)
		require.NoError(t, err)
	}
	assert.True(t, g.PhaseComplete(s, PhaseRacing, nil))

	view := g.Snapshot(s, room.PhaseFinished, a).(CheckboxView)
	assert.Equal(t, 2, view.Mine)
	assert.Equal(t, []Standing{
		{ID: "a", DisplayName: "name-a", Score: 2},
		{ID: "b", DisplayName: "name-b", Score: 2},
	}, view.Standings)
}

func TestCheckboxSetSize(t *testing.T) {
	g := NewCheckbox()
	s := g.NewState().(*CheckboxState)

	for _, size := range []int{0, MinBoxes - 1, MaxBoxes + 1} {
		_, err := g.Apply(s, room.PhaseLobby, room.NewAction("set-size", setSize{Size: size}), member("a"))
		requireCode(t, err, CodeInvalidSize)
	}
	assert.Equal(t, DefaultBoxes, s.Size)
}

func TestCheckboxRace(t *testing.T) {
	ctx := context.Background()

	m, err := room.NewManager(NewCheckbox(), room.Settings{Logger: zerolog.Nop()})
	require.NoError(t, err)
	t.Cleanup(m.Close)

	r, err := m.CreateIfAbsent("CHECKS")
	require.NoError(t, err)

	host := joinRoom(t, r, "Host")
	guest := joinRoom(t, r, "Guest")

	_, err = r.Submit(ctx, guest, room.NewAction("set-size", setSize{Size: 4}))
	requireCode(t, err, room.CodeNotHost)

	_, err = r.Submit(ctx, host, room.NewAction("set-size", setSize{Size: 4}))
	require.NoError(t, err)

	_, err = r.RequestTransition(ctx, host, "configure")
	require.NoError(t, err)
	_, err = r.RequestTransition(ctx, host, "start")
	require.NoError(t, err)

	for box := range 4 {
		by := host
		if box == 3 {
			by = guest
		}
		_, err := r.Submit(ctx, by, room.NewAction("toggle", map[string]int{"box": box}))
		require.NoError(t, err)
	}

	v, err := r.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, room.PhaseFinished, v.Phase)

	_, err = r.Submit(ctx, guest, room.NewAction("toggle", map[string]int{"box": 3}))
	requireCode(t, err, room.CodeRoomFinished)
}

// nopConn satisfies room.Conn for tests that only look at room state.
type nopConn struct{ id string }

func (c nopConn) ID() string               { return c.id }
func (c nopConn) Send(room.Outbound) error { return nil }
func (c nopConn) Close() error             { return nil }

func joinRoom(t *testing.T, r *room.Room, name string) string {
	t.Helper()

	c := nopConn{id: "conn-" + name}

	res, err := r.Handle(context.Background(), c, room.JoinRoom{DisplayName: name})
	require.NoError(t, err)

	return res.Participant
}
