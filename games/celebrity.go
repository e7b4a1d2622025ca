/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package games

import (
	"math/rand/v2"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Seednode/partyhost/room"
)

const (
	PhaseGuessing room.Phase = "guessing"

	DefaultGameDuration = 30 * time.Minute

	maxCelebrityRunes = 64
	minEntries        = 2
)

// Celebrity: every player secretly enters the name of a famous figure. Once
// the list is read out, players take turns guessing who entered which name.
// A correct guess knocks the owner out and onto the guesser's team, and the
// guesser goes again; a wrong guess passes the turn. The last team standing
// wins.
type Celebrity struct {
	GameDuration time.Duration

	// shuffle orders the turns; nil uses math/rand.
	shuffle func([]string)
}

func NewCelebrity() *Celebrity {
	return &Celebrity{GameDuration: DefaultGameDuration}
}

type Entry struct {
	Owner     string `json:"owner"`
	Celebrity string `json:"celebrity"`
}

type CelebrityState struct {
	Entries    []Entry           `json:"entries"`
	Names      map[string]string `json:"names"`
	TurnOrder  []string          `json:"turnOrder"`
	Turn       int               `json:"turn"`
	Eliminated map[string]bool   `json:"eliminated"`
	Teams      map[string]string `json:"teams"`
	Away       map[string]bool   `json:"away"`
}

type Team struct {
	Leader  string   `json:"leader"`
	Members []string `json:"members"`
}

type CelebrityView struct {
	Entries     int      `json:"entries"`
	Celebrities []string `json:"celebrities"`
	MyCelebrity string   `json:"myCelebrity,omitempty"`
	TurnOrder   []string `json:"turnOrder,omitempty"`
	CurrentTurn string   `json:"currentTurn,omitempty"`
	Eliminated  []string `json:"eliminated,omitempty"`
	Teams       []Team   `json:"teams,omitempty"`
	Winner      string   `json:"winner,omitempty"`
}

type enter struct {
	Celebrity string `json:"celebrity"`
}

type guess struct {
	Celebrity string `json:"celebrity"`
	Target    string `json:"target"`
}

type GuessResult struct {
	Guesser   string `json:"guesser"`
	Target    string `json:"target"`
	Celebrity string `json:"celebrity"`
	Correct   bool   `json:"correct"`
}

func (g *Celebrity) Kind() string { return "celebrity" }

func (g *Celebrity) NewState() any {
	return &CelebrityState{
		Names:      make(map[string]string),
		Eliminated: make(map[string]bool),
		Teams:      make(map[string]string),
		Away:       make(map[string]bool),
	}
}

func (g *Celebrity) Actions() map[string]room.ActionRule {
	return map[string]room.ActionRule{
		"enter": {Phases: []room.Phase{room.PhaseLobby, room.PhaseConfiguring}, Role: room.RolePlayer},
		"guess": {Phases: []room.Phase{PhaseGuessing}, Role: room.RolePlayer},
	}
}

func (g *Celebrity) Transitions() []room.Transition {
	return []room.Transition{
		{Name: "lock", From: []room.Phase{room.PhaseLobby}, To: room.PhaseConfiguring},
		{Name: "unlock", From: []room.Phase{room.PhaseConfiguring}, To: room.PhaseLobby},
		{Name: "start", From: []room.Phase{room.PhaseLobby, room.PhaseConfiguring}, To: PhaseGuessing},
		{Name: "finish", From: []room.Phase{PhaseGuessing}, To: room.PhaseFinished, Auto: true, Timeout: g.GameDuration},
	}
}

func (g *Celebrity) Apply(state any, _ room.Phase, act room.Action, by room.Member) (any, error) {
	s := state.(*CelebrityState)

	switch act.Kind {
	case "enter":
		var req enter
		if err := act.Decode(&req); err != nil {
			return nil, err
		}
		return g.enter(s, by, req)

	case "guess":
		var req guess
		if err := act.Decode(&req); err != nil {
			return nil, err
		}
		return g.guess(s, by, req)
	}

	return nil, room.Invalid(room.CodeUnknownAction, "unknown action %q", act.Kind)
}

func (g *Celebrity) enter(s *CelebrityState, by room.Member, req enter) (any, error) {
	name := strings.TrimSpace(req.Celebrity)
	if name == "" || utf8.RuneCountInString(name) > maxCelebrityRunes {
		return nil, room.Invalid(room.CodeBadMessage, "celebrity names must be 1-%d characters", maxCelebrityRunes)
	}

	for _, e := range s.Entries {
		if e.Owner != by.ID && strings.EqualFold(e.Celebrity, name) {
			return nil, room.Invalid(CodeCollision, "someone already entered %q", name)
		}
	}

	s.Names[by.ID] = by.DisplayName

	if i := s.entryOf(by.ID); i >= 0 {
		s.Entries[i].Celebrity = name
	} else {
		s.Entries = append(s.Entries, Entry{Owner: by.ID, Celebrity: name})
	}

	return map[string]int{"entries": len(s.Entries)}, nil
}

func (g *Celebrity) guess(s *CelebrityState, by room.Member, req guess) (any, error) {
	if s.entryOf(by.ID) < 0 {
		return nil, room.Forbidden(CodeNotPlaying, "you did not enter a celebrity")
	}
	if s.current() != by.ID {
		return nil, room.Forbidden(CodeNotYourTurn, "it is not your turn to guess")
	}

	i := slices.IndexFunc(s.Entries, func(e Entry) bool {
		return strings.EqualFold(e.Celebrity, strings.TrimSpace(req.Celebrity))
	})
	if i < 0 || s.Eliminated[s.Entries[i].Owner] {
		return nil, room.Invalid(CodeUnknownCelebrity, "that celebrity is not in the list")
	}
	if req.Target == by.ID || s.entryOf(req.Target) < 0 || s.Eliminated[req.Target] {
		return nil, room.Invalid(room.CodeInvalidTarget, "guess one of the players still in the game")
	}

	owner := s.Entries[i].Owner
	res := GuessResult{
		Guesser:   by.ID,
		Target:    req.Target,
		Celebrity: s.Entries[i].Celebrity,
		Correct:   owner == req.Target,
	}

	if res.Correct {
		s.Eliminated[owner] = true
		s.union(by.ID, owner)
	} else {
		s.advance()
	}

	return res, nil
}

func (g *Celebrity) CheckTransition(state any, t room.Transition, _ []room.Member) error {
	s := state.(*CelebrityState)

	if t.Name == "start" && len(s.Entries) < minEntries {
		return room.Invalid(CodeNotEnoughEntries, "at least %d celebrities are needed to start", minEntries)
	}

	return nil
}

// EnterPhase freezes and shuffles the turn order when guessing starts.
func (g *Celebrity) EnterPhase(state any, _, to room.Phase, roster []room.Member) {
	s := state.(*CelebrityState)

	if to != PhaseGuessing {
		return
	}

	rememberNames(s.Names, roster)

	s.TurnOrder = make([]string, 0, len(s.Entries))
	for _, e := range s.Entries {
		s.TurnOrder = append(s.TurnOrder, e.Owner)
		s.Teams[e.Owner] = e.Owner
	}

	if g.shuffle != nil {
		g.shuffle(s.TurnOrder)
	} else {
		rand.Shuffle(len(s.TurnOrder), func(i, j int) {
			s.TurnOrder[i], s.TurnOrder[j] = s.TurnOrder[j], s.TurnOrder[i]
		})
	}

	s.markAway(roster)
	s.Turn = 0
	if !s.canGuess(s.current()) {
		s.advance()
	}
}

// RosterChanged skips the turn of a guesser who dropped, so one missing
// player does not stall everyone else.
func (g *Celebrity) RosterChanged(state any, phase room.Phase, roster []room.Member) {
	s := state.(*CelebrityState)

	s.markAway(roster)

	if phase == PhaseGuessing && !s.canGuess(s.current()) {
		s.advance()
	}
}

// PhaseComplete ends the game once a single team remains.
func (g *Celebrity) PhaseComplete(state any, phase room.Phase, _ []room.Member) bool {
	s := state.(*CelebrityState)

	if phase != PhaseGuessing || len(s.TurnOrder) == 0 {
		return false
	}

	return s.active() <= 1
}

func (g *Celebrity) Snapshot(state any, phase room.Phase, viewer room.Member) any {
	s := state.(*CelebrityState)

	view := CelebrityView{
		Entries:     len(s.Entries),
		Celebrities: []string{},
	}
	if i := s.entryOf(viewer.ID); i >= 0 {
		view.MyCelebrity = s.Entries[i].Celebrity
	}

	started := phase == PhaseGuessing || phase == room.PhaseFinished

	// Nobody but the host learns the names before guessing starts, and the
	// list is sorted so it never reveals entry order.
	if started || viewer.IsHost {
		for _, e := range s.Entries {
			if !started || !s.Eliminated[e.Owner] {
				view.Celebrities = append(view.Celebrities, e.Celebrity)
			}
		}
		slices.Sort(view.Celebrities)
	}

	if !started {
		return view
	}

	view.TurnOrder = slices.Clone(s.TurnOrder)
	for _, id := range s.TurnOrder {
		if s.Eliminated[id] {
			view.Eliminated = append(view.Eliminated, id)
		}
	}
	view.Teams = s.teams()

	if phase == PhaseGuessing {
		view.CurrentTurn = s.current()
	}
	if phase == room.PhaseFinished && len(view.Teams) == 1 {
		view.Winner = view.Teams[0].Leader
	}

	return view
}

func (s *CelebrityState) entryOf(id string) int {
	return slices.IndexFunc(s.Entries, func(e Entry) bool { return e.Owner == id })
}

func (s *CelebrityState) current() string {
	if s.Turn < 0 || s.Turn >= len(s.TurnOrder) {
		return ""
	}
	return s.TurnOrder[s.Turn]
}

func (s *CelebrityState) canGuess(id string) bool {
	return id != "" && !s.Eliminated[id] && !s.Away[id]
}

func (s *CelebrityState) active() int {
	n := 0
	for _, id := range s.TurnOrder {
		if !s.Eliminated[id] {
			n++
		}
	}
	return n
}

// advance passes the turn to the next player still in the game and present.
// If nobody qualifies the turn stays where it is.
func (s *CelebrityState) advance() {
	n := len(s.TurnOrder)
	for i := 1; i <= n; i++ {
		next := (s.Turn + i) % n
		if s.canGuess(s.TurnOrder[next]) {
			s.Turn = next
			return
		}
	}
}

func (s *CelebrityState) markAway(roster []room.Member) {
	present := make(map[string]bool, len(roster))
	for _, m := range roster {
		if m.Connected() {
			present[m.ID] = true
		}
	}

	clear(s.Away)
	for _, e := range s.Entries {
		if !present[e.Owner] {
			s.Away[e.Owner] = true
		}
	}
}

func (s *CelebrityState) find(id string) string {
	parent, ok := s.Teams[id]
	if !ok {
		s.Teams[id] = id
		return id
	}
	if parent == id {
		return id
	}
	root := s.find(parent)
	s.Teams[id] = root
	return root
}

// union puts b's team under a's leader.
func (s *CelebrityState) union(a, b string) {
	ra, rb := s.find(a), s.find(b)
	if ra != rb {
		s.Teams[rb] = ra
	}
}

// leader walks to the root of id's team without touching the forest, so
// views can be built from a shared state.
func (s *CelebrityState) leader(id string) string {
	for {
		parent, ok := s.Teams[id]
		if !ok || parent == id {
			return id
		}
		id = parent
	}
}

func (s *CelebrityState) teams() []Team {
	buckets := make(map[string][]string)
	for _, id := range s.TurnOrder {
		root := s.leader(id)
		if root != id {
			buckets[root] = append(buckets[root], id)
		} else if _, ok := buckets[root]; !ok {
			buckets[root] = nil
		}
	}

	out := make([]Team, 0, len(buckets))
	for _, id := range s.TurnOrder {
		members, ok := buckets[id]
		if !ok {
			continue
		}
		out = append(out, Team{Leader: id, Members: members})
	}

	return out
}
