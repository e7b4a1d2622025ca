/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package games holds the party games hosted on top of the room core. Each
// game owns its state and only ever sees it through the room.Game hooks, which
// the room calls from its actor, one at a time.
package games

import (
	"cmp"
	"slices"

	"github.com/Seednode/partyhost/room"
)

// Rejection codes specific to the hosted games.
const (
	CodeBoxTaken         = "box-taken"
	CodeInvalidBox       = "invalid-box"
	CodeInvalidSize      = "invalid-size"
	CodeInvalidChoice    = "invalid-choice"
	CodeNoMoreQuestions  = "no-more-questions"
	CodeCollision        = "collision"
	CodeNotEnoughEntries = "not-enough-entries"
	CodeNotYourTurn      = "not-your-turn"
	CodeNotPlaying       = "not-playing"
	CodeUnknownCelebrity = "unknown-celebrity"
)

// All returns one instance of every hosted game with default settings.
func All() []room.Game {
	return []room.Game{
		NewCheckbox(),
		NewThisOrThat(nil),
		NewCelebrity(),
	}
}

// Standing is one line of a final scoreboard.
type Standing struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Score       int    `json:"score"`
}

// standings sorts scores high to low, then by name. Participants who have
// left keep their line under the last name they used.
func standings(scores map[string]int, names map[string]string) []Standing {
	out := make([]Standing, 0, len(scores))
	for id, score := range scores {
		out = append(out, Standing{ID: id, DisplayName: names[id], Score: score})
	}

	slices.SortFunc(out, func(a, b Standing) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		if c := cmp.Compare(a.DisplayName, b.DisplayName); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	return out
}

func rememberNames(names map[string]string, roster []room.Member) {
	for _, m := range roster {
		if m.Role == room.RolePlayer {
			names[m.ID] = m.DisplayName
		}
	}
}
