/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package games

import (
	"slices"
	"time"

	"github.com/Seednode/partyhost/room"
)

const (
	PhaseRacing room.Phase = "racing"

	DefaultBoxes        = 25
	MinBoxes            = 4
	MaxBoxes            = 100
	DefaultRaceDuration = 3 * time.Minute
)

// Checkbox is a race to claim the most boxes of a shared grid. Checking an
// empty box claims it, unchecking your own box gives it back, and the race
// ends once every box is claimed or time runs out.
type Checkbox struct {
	RaceDuration time.Duration
}

func NewCheckbox() *Checkbox {
	return &Checkbox{RaceDuration: DefaultRaceDuration}
}

type CheckboxState struct {
	Size   int               `json:"size"`
	Boxes  []string          `json:"boxes"`
	Scores map[string]int    `json:"scores"`
	Names  map[string]string `json:"names"`
}

type CheckboxView struct {
	Size      int        `json:"size"`
	Boxes     []string   `json:"boxes"`
	Standings []Standing `json:"standings"`
	Mine      int        `json:"mine"`
}

type setSize struct {
	Size int `json:"size"`
}

type toggle struct {
	Box *int `json:"box"`
}

type ToggleEffect struct {
	Box     int    `json:"box"`
	Owner   string `json:"owner"`
	Checked bool   `json:"checked"`
}

func (g *Checkbox) Kind() string { return "checkbox" }

func (g *Checkbox) NewState() any {
	return &CheckboxState{
		Size:   DefaultBoxes,
		Scores: make(map[string]int),
		Names:  make(map[string]string),
	}
}

func (g *Checkbox) Actions() map[string]room.ActionRule {
	return map[string]room.ActionRule{
		"set-size": {Phases: []room.Phase{room.PhaseLobby, room.PhaseConfiguring}, HostOnly: true},
		"toggle":   {Phases: []room.Phase{PhaseRacing}, Role: room.RolePlayer},
	}
}

func (g *Checkbox) Transitions() []room.Transition {
	return []room.Transition{
		{Name: "configure", From: []room.Phase{room.PhaseLobby}, To: room.PhaseConfiguring},
		{Name: "start", From: []room.Phase{room.PhaseLobby, room.PhaseConfiguring}, To: PhaseRacing},
		{Name: "finish", From: []room.Phase{PhaseRacing}, To: room.PhaseFinished, Auto: true, Timeout: g.RaceDuration},
	}
}

func (g *Checkbox) Apply(state any, _ room.Phase, act room.Action, by room.Member) (any, error) {
	s := state.(*CheckboxState)

	switch act.Kind {
	case "set-size":
		var req setSize
		if err := act.Decode(&req); err != nil {
			return nil, err
		}
		if req.Size < MinBoxes || req.Size > MaxBoxes {
			return nil, room.Invalid(CodeInvalidSize, "the grid must have %d-%d boxes", MinBoxes, MaxBoxes)
		}
		s.Size = req.Size
		return setSize{Size: s.Size}, nil

	case "toggle":
		var req toggle
		if err := act.Decode(&req); err != nil {
			return nil, err
		}
		if req.Box == nil || *req.Box < 0 || *req.Box >= len(s.Boxes) {
			return nil, room.Invalid(CodeInvalidBox, "no such box")
		}
		box := *req.Box

		switch s.Boxes[box] {
		case "":
			s.Boxes[box] = by.ID
			s.Scores[by.ID]++
		case by.ID:
			s.Boxes[box] = ""
			s.Scores[by.ID]--
		default:
			return nil, room.Invalid(CodeBoxTaken, "box %d belongs to someone else", box)
		}
		s.Names[by.ID] = by.DisplayName

		return ToggleEffect{Box: box, Owner: s.Boxes[box], Checked: s.Boxes[box] != ""}, nil
	}

	return nil, room.Invalid(room.CodeUnknownAction, "unknown action %q", act.Kind)
}

func (g *Checkbox) EnterPhase(state any, _, to room.Phase, roster []room.Member) {
	s := state.(*CheckboxState)

	if to == PhaseRacing {
		s.Boxes = make([]string, s.Size)
		clear(s.Scores)
		for _, m := range roster {
			if m.Role == room.RolePlayer {
				s.Scores[m.ID] = 0
			}
		}
		rememberNames(s.Names, roster)
	}
}

// PhaseComplete ends the race once every box is claimed. Eligibility does not
// matter here: claims by players who have since left still count.
func (g *Checkbox) PhaseComplete(state any, phase room.Phase, _ []room.Member) bool {
	s := state.(*CheckboxState)

	if phase != PhaseRacing || len(s.Boxes) == 0 {
		return false
	}

	return !slices.Contains(s.Boxes, "")
}

func (g *Checkbox) Snapshot(state any, _ room.Phase, viewer room.Member) any {
	s := state.(*CheckboxState)

	return CheckboxView{
		Size:      s.Size,
		Boxes:     slices.Clone(s.Boxes),
		Standings: standings(s.Scores, s.Names),
		Mine:      s.Scores[viewer.ID],
	}
}
