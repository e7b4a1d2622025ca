/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package room

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// Phase names a state of a room's state machine. Games add their own active
// phases between lobby and finished.
type Phase string

const (
	PhaseLobby       Phase = "lobby"
	PhaseConfiguring Phase = "configuring"
	PhaseFinished    Phase = "finished"
)

// Action is a game-specific request. Data is decoded by the game.
type Action struct {
	Kind string          `json:"action"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Decode unmarshals the action payload into v, rejecting malformed input.
func (a Action) Decode(v any) error {
	if len(a.Data) == 0 {
		return Invalid(CodeBadMessage, "%s requires a payload", a.Kind)
	}
	if err := json.Unmarshal(a.Data, v); err != nil {
		return Invalid(CodeBadMessage, "malformed %s payload", a.Kind)
	}
	return nil
}

// NewAction builds an action with a JSON-encoded payload.
func NewAction(kind string, data any) Action {
	if data == nil {
		return Action{Kind: kind}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		panic(fmt.Sprintf("room: encoding %s payload: %v", kind, err))
	}
	return Action{Kind: kind, Data: raw}
}

// ActionRule tells the core which phases and roles an action is legal for.
// The core checks it before the game ever sees the action.
type ActionRule struct {
	Phases   []Phase
	Role     Role // empty allows any role
	HostOnly bool
	System   bool // only the server may post it
}

func (r ActionRule) allows(p Phase) bool {
	return slices.Contains(r.Phases, p)
}

// Transition is an edge of the phase graph. Auto transitions fire on their
// own once the game reports the phase complete, or when Timeout elapses.
type Transition struct {
	Name    string
	From    []Phase
	To      Phase
	Auto    bool
	Timeout time.Duration
}

// Game is the capability set a hosted game supplies to the core. Games own
// their state entirely; the core only hands it back to these methods and
// encodes it as JSON for snapshots.
//
// Apply must validate before mutating: a non-nil error means state is untouched.
type Game interface {
	Kind() string
	NewState() any
	Actions() map[string]ActionRule
	Transitions() []Transition
	Apply(state any, phase Phase, act Action, by Member) (effect any, err error)
	PhaseComplete(state any, phase Phase, eligible []Member) bool
	Snapshot(state any, phase Phase, viewer Member) any
}

// PhaseEnterer is implemented by games that prepare state when a phase starts.
type PhaseEnterer interface {
	EnterPhase(state any, from, to Phase, roster []Member)
}

// TransitionChecker is implemented by games that may veto a requested transition.
type TransitionChecker interface {
	CheckTransition(state any, t Transition, roster []Member) error
}

// RosterObserver is implemented by games that react to joins, leaves and
// disconnects, e.g. to skip the turn of someone who dropped.
type RosterObserver interface {
	RosterChanged(state any, phase Phase, roster []Member)
}
