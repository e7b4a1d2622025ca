/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package room

import (
	"fmt"
)

// Requester describes who asks for a transition.
type Requester struct {
	Role   Role
	IsHost bool
	System bool
}

// Machine is the phase graph of one room plus its current phase.
type Machine struct {
	phase  Phase
	byFrom map[Phase]map[string]Transition
	auto   map[Phase]Transition
	names  map[string]bool
}

// NewMachine builds the graph and starts it in the lobby. It refuses graphs
// with edges out of finished, duplicate names from one phase, or more than
// one auto transition leaving a phase.
func NewMachine(ts []Transition) (*Machine, error) {
	m := &Machine{
		phase:  PhaseLobby,
		byFrom: make(map[Phase]map[string]Transition),
		auto:   make(map[Phase]Transition),
		names:  make(map[string]bool),
	}

	for _, t := range ts {
		if t.Name == "" || t.To == "" || len(t.From) == 0 {
			return nil, fmt.Errorf("transition %q: name, from and to are required", t.Name)
		}
		for _, from := range t.From {
			if from == PhaseFinished {
				return nil, fmt.Errorf("transition %q: %s is terminal", t.Name, PhaseFinished)
			}
			edges, ok := m.byFrom[from]
			if !ok {
				edges = make(map[string]Transition)
				m.byFrom[from] = edges
			}
			if _, dup := edges[t.Name]; dup {
				return nil, fmt.Errorf("transition %q declared twice from %s", t.Name, from)
			}
			edges[t.Name] = t
			if t.Auto {
				if prev, dup := m.auto[from]; dup {
					return nil, fmt.Errorf("phase %s has two auto transitions (%q, %q)", from, prev.Name, t.Name)
				}
				m.auto[from] = t
			}
		}
		m.names[t.Name] = true
	}

	return m, nil
}

func (m *Machine) Phase() Phase {
	return m.phase
}

func (m *Machine) set(p Phase) {
	m.phase = p
}

// Guard decides whether req may take transition name out of current. It is
// the single gate for every phase change: the host may request any edge, the
// system (completion checks and phase timers) only auto ones.
func (m *Machine) Guard(current Phase, name string, req Requester) (Transition, error) {
	if current == PhaseFinished {
		return Transition{}, WrongPhase(CodeRoomFinished, current, "the game is over")
	}

	t, ok := m.byFrom[current][name]
	if !ok {
		if m.names[name] {
			return Transition{}, WrongPhase(CodeInvalidPhase, current, "%q is not available in this phase", name)
		}
		return Transition{}, Invalid(CodeUnknownTransition, "unknown transition %q", name)
	}

	if req.System {
		if !t.Auto {
			return Transition{}, Forbidden(CodeNotHost, "%q must be requested by the host", name)
		}
		return t, nil
	}

	if req.Role != RolePlayer || !req.IsHost {
		return Transition{}, Forbidden(CodeNotHost, "only the host may change the phase")
	}

	return t, nil
}

// Auto returns the automatic transition leaving from, if any.
func (m *Machine) Auto(from Phase) (Transition, bool) {
	t, ok := m.auto[from]
	return t, ok
}
