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

func choice(n int) room.Action {
	return room.NewAction("vote", map[string]int{"choice": n})
}

func TestThisOrThatScoring(t *testing.T) {
	g := NewThisOrThat(nil)
	s := g.NewState().(*ThisOrThatState)
	a, b, c := member("a"), member("b"), member("c")
	roster := []room.Member{a, b, c}

	g.EnterPhase(s, room.PhaseLobby, PhaseVoting, roster)

	for _, v := range []struct {
		by     room.Member
		choice int
	}{{a, 0}, {b, 0}, {c, 1}} {
		_, err := g.Apply(s, PhaseVoting, choice(v.choice), v.by)
		require.NoError(t, err)
	}
	assert.True(t, g.PhaseComplete(s, PhaseVoting, roster))

	g.EnterPhase(s, PhaseVoting, PhaseReveal, roster)
	require.Len(t, s.Results, 1)
	assert.Equal(t, [2]int{2, 1}, s.Results[0].Counts)
	assert.Equal(t, 0, s.Results[0].Majority)
	assert.Equal(t, map[string]int{"a": 1, "b": 1, "c": 0}, s.Scores)

	view := g.Snapshot(s, PhaseReveal, c).(ThisOrThatView)
	require.NotNil(t, view.Result)
	assert.Equal(t, 1, view.Result.Votes["c"])

	t.Run("ties score nobody", func(t *testing.T) {
		require.NoError(t, g.CheckTransition(s, room.Transition{Name: "next"}, roster))
		g.EnterPhase(s, PhaseReveal, PhaseVoting, roster)
		assert.Equal(t, 1, s.Round)
		assert.Empty(t, s.Votes)

		_, err := g.Apply(s, PhaseVoting, choice(0), a)
		require.NoError(t, err)
		_, err = g.Apply(s, PhaseVoting, choice(1), b)
		require.NoError(t, err)

		assert.False(t, g.PhaseComplete(s, PhaseVoting, roster), "c has not voted")
		assert.True(t, g.PhaseComplete(s, PhaseVoting, roster[:2]), "only connected players count")

		g.EnterPhase(s, PhaseVoting, PhaseReveal, roster)
		assert.Equal(t, -1, s.Results[1].Majority)
		assert.Equal(t, map[string]int{"a": 1, "b": 1, "c": 0}, s.Scores)
	})
}

func TestThisOrThatRejects(t *testing.T) {
	g := NewThisOrThat([]Question{{Prompt: "Only one?", Options: [2]string{"Yes", "No"}}})
	s := g.NewState().(*ThisOrThatState)
	a := member("a")

	g.EnterPhase(s, room.PhaseLobby, PhaseVoting, []room.Member{a})

	_, err := g.Apply(s, PhaseVoting, choice(2), a)
	requireCode(t, err, CodeInvalidChoice)

	_, err = g.Apply(s, PhaseVoting, room.NewAction("vote", map[string]any{}), a)
	requireCode(t, err, CodeInvalidChoice)

	_, err = g.Apply(s, PhaseVoting, choice(1), a)
	require.NoError(t, err)

	_, err = g.Apply(s, PhaseVoting, choice(0), a)
	rej := requireCode(t, err, room.CodeDuplicateVote)
	assert.Equal(t, room.KindPhase, rej.Kind)
	assert.Equal(t, 1, s.Votes["a"], "the first vote stands")

	g.EnterPhase(s, PhaseVoting, PhaseReveal, []room.Member{a})
	err = g.CheckTransition(s, room.Transition{Name: "next"}, nil)
	requireCode(t, err, CodeNoMoreQuestions)
}

func TestThisOrThatRoom(t *testing.T) {
	ctx := context.Background()

	m, err := room.NewManager(NewThisOrThat(nil), room.Settings{Logger: zerolog.Nop()})
	require.NoError(t, err)
	t.Cleanup(m.Close)

	r, err := m.CreateIfAbsent("BURGER")
	require.NoError(t, err)

	host := joinRoom(t, r, "Host")
	guest := joinRoom(t, r, "Guest")

	_, err = r.RequestTransition(ctx, host, "start")
	require.NoError(t, err)

	_, err = r.Submit(ctx, host, choice(0))
	require.NoError(t, err)

	// Two votes from the same participant: the second one is a phase error,
	// never an overwrite.
	_, err = r.Submit(ctx, host, choice(1))
	rej := requireCode(t, err, room.CodeDuplicateVote)
	assert.Equal(t, PhaseVoting, rej.Phase)

	_, err = r.Submit(ctx, guest, choice(0))
	require.NoError(t, err)

	v, err := r.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, PhaseReveal, v.Phase, "the last vote reveals the results")

	_, err = r.Submit(ctx, guest, choice(1))
	requireCode(t, err, room.CodeInvalidPhase)

	_, err = r.RequestTransition(ctx, guest, "next")
	requireCode(t, err, room.CodeNotHost)

	_, err = r.RequestTransition(ctx, host, "next")
	require.NoError(t, err)

	_, err = r.Submit(ctx, guest, choice(1))
	require.NoError(t, err)
}
