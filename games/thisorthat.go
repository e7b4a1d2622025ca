/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package games

import (
	"maps"
	"slices"
	"time"

	"github.com/Seednode/partyhost/room"
)

const (
	PhaseVoting room.Phase = "voting"
	PhaseReveal room.Phase = "reveal"

	DefaultVoteDuration = 30 * time.Second
)

// Question is one this-or-that prompt with exactly two options.
type Question struct {
	Prompt  string    `json:"prompt"`
	Options [2]string `json:"options"`
}

var DefaultQuestions = []Question{
	{Prompt: "Dinner tonight?", Options: [2]string{"Pizza", "Burger"}},
	{Prompt: "Morning fuel?", Options: [2]string{"Coffee", "Tea"}},
	{Prompt: "Weekend plans?", Options: [2]string{"Mountains", "Beach"}},
	{Prompt: "Pets?", Options: [2]string{"Cats", "Dogs"}},
	{Prompt: "Movie night?", Options: [2]string{"Comedy", "Horror"}},
}

// ThisOrThat asks everyone the same two-option question. Once every connected
// player has voted, or time is up, the votes are revealed and everyone on the
// majority side scores a point. Ties score nobody.
type ThisOrThat struct {
	Questions    []Question
	VoteDuration time.Duration
}

func NewThisOrThat(questions []Question) *ThisOrThat {
	if len(questions) == 0 {
		questions = DefaultQuestions
	}
	return &ThisOrThat{Questions: questions, VoteDuration: DefaultVoteDuration}
}

type ThisOrThatState struct {
	Round   int               `json:"round"`
	Votes   map[string]int    `json:"votes"`
	Scores  map[string]int    `json:"scores"`
	Names   map[string]string `json:"names"`
	Results []RoundResult     `json:"results"`
}

// RoundResult is the outcome of one question. Majority is -1 on a tie.
type RoundResult struct {
	Question int            `json:"question"`
	Counts   [2]int         `json:"counts"`
	Majority int            `json:"majority"`
	Votes    map[string]int `json:"votes"`
}

type ThisOrThatView struct {
	Round     int          `json:"round"`
	Rounds    int          `json:"rounds"`
	Question  *Question    `json:"question,omitempty"`
	Voted     []string     `json:"voted"`
	MyVote    *int         `json:"myVote,omitempty"`
	Result    *RoundResult `json:"result,omitempty"`
	Standings []Standing   `json:"standings"`
}

type vote struct {
	Choice *int `json:"choice"`
}

type VoteEffect struct {
	Voted int `json:"voted"`
}

func (g *ThisOrThat) Kind() string { return "thisorthat" }

func (g *ThisOrThat) NewState() any {
	return &ThisOrThatState{
		Votes:  make(map[string]int),
		Scores: make(map[string]int),
		Names:  make(map[string]string),
	}
}

func (g *ThisOrThat) Actions() map[string]room.ActionRule {
	return map[string]room.ActionRule{
		"vote": {Phases: []room.Phase{PhaseVoting}, Role: room.RolePlayer},
	}
}

func (g *ThisOrThat) Transitions() []room.Transition {
	return []room.Transition{
		{Name: "start", From: []room.Phase{room.PhaseLobby}, To: PhaseVoting},
		{Name: "reveal", From: []room.Phase{PhaseVoting}, To: PhaseReveal, Auto: true, Timeout: g.VoteDuration},
		{Name: "next", From: []room.Phase{PhaseReveal}, To: PhaseVoting},
		{Name: "finish", From: []room.Phase{PhaseReveal}, To: room.PhaseFinished},
	}
}

func (g *ThisOrThat) Apply(state any, _ room.Phase, act room.Action, by room.Member) (any, error) {
	s := state.(*ThisOrThatState)

	if act.Kind != "vote" {
		return nil, room.Invalid(room.CodeUnknownAction, "unknown action %q", act.Kind)
	}

	var req vote
	if err := act.Decode(&req); err != nil {
		return nil, err
	}
	if req.Choice == nil || (*req.Choice != 0 && *req.Choice != 1) {
		return nil, room.Invalid(CodeInvalidChoice, "choose 0 or 1")
	}
	if _, ok := s.Votes[by.ID]; ok {
		return nil, room.WrongPhase(room.CodeDuplicateVote, "", "you already voted on this question")
	}

	s.Votes[by.ID] = *req.Choice
	s.Names[by.ID] = by.DisplayName

	return VoteEffect{Voted: len(s.Votes)}, nil
}

func (g *ThisOrThat) CheckTransition(state any, t room.Transition, _ []room.Member) error {
	s := state.(*ThisOrThatState)

	if t.Name == "next" && s.Round+1 >= len(g.Questions) {
		return room.Invalid(CodeNoMoreQuestions, "that was the last question")
	}

	return nil
}

func (g *ThisOrThat) EnterPhase(state any, from, to room.Phase, roster []room.Member) {
	s := state.(*ThisOrThatState)

	rememberNames(s.Names, roster)

	switch to {
	case PhaseVoting:
		if from == PhaseReveal {
			s.Round++
		}
		s.Votes = make(map[string]int)

	case PhaseReveal:
		s.Results = append(s.Results, g.tally(s))
	}
}

// tally scores the current question. The votes map is handed over to the
// result; EnterPhase replaces it before the next question.
func (g *ThisOrThat) tally(s *ThisOrThatState) RoundResult {
	res := RoundResult{Question: s.Round, Majority: -1, Votes: s.Votes}

	for _, choice := range s.Votes {
		res.Counts[choice]++
	}

	switch {
	case res.Counts[0] > res.Counts[1]:
		res.Majority = 0
	case res.Counts[1] > res.Counts[0]:
		res.Majority = 1
	}

	for id, choice := range s.Votes {
		if _, ok := s.Scores[id]; !ok {
			s.Scores[id] = 0
		}
		if choice == res.Majority {
			s.Scores[id]++
		}
	}

	return res
}

// PhaseComplete reports whether every connected player has voted.
func (g *ThisOrThat) PhaseComplete(state any, phase room.Phase, eligible []room.Member) bool {
	s := state.(*ThisOrThatState)

	if phase != PhaseVoting || len(eligible) == 0 {
		return false
	}

	for _, m := range eligible {
		if _, ok := s.Votes[m.ID]; !ok {
			return false
		}
	}

	return true
}

func (g *ThisOrThat) Snapshot(state any, phase room.Phase, viewer room.Member) any {
	s := state.(*ThisOrThatState)

	view := ThisOrThatView{
		Round:     s.Round,
		Rounds:    len(g.Questions),
		Voted:     make([]string, 0, len(s.Votes)),
		Standings: standings(s.Scores, s.Names),
	}

	if phase != room.PhaseLobby && s.Round < len(g.Questions) {
		q := g.Questions[s.Round]
		view.Question = &q
	}

	if phase == PhaseVoting {
		view.Voted = slices.AppendSeq(view.Voted, maps.Keys(s.Votes))
		slices.Sort(view.Voted)
		if choice, ok := s.Votes[viewer.ID]; ok {
			view.MyVote = &choice
		}
	}

	if (phase == PhaseReveal || phase == room.PhaseFinished) && len(s.Results) > 0 {
		last := s.Results[len(s.Results)-1]
		last.Votes = maps.Clone(last.Votes)
		view.Result = &last
	}

	return view
}
