/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package room

// Conn is one live transport connection into a room. Send must not block: a
// connection that cannot accept a message returns an error and is pruned.
type Conn interface {
	ID() string
	Send(out Outbound) error
	Close() error
}

// Registry maps open connections to the participants they speak for. A
// connection is open from the moment the transport is accepted, and bound once
// its join-room request succeeds.
//
// A Registry is owned by a single room actor and is not safe for concurrent use.
type Registry struct {
	conns         map[string]Conn
	owner         map[string]string // conn id -> participant id
	byParticipant map[string]string // participant id -> conn id
}

func NewRegistry() *Registry {
	return &Registry{
		conns:         make(map[string]Conn),
		owner:         make(map[string]string),
		byParticipant: make(map[string]string),
	}
}

// Open records a connection that has not joined yet.
func (g *Registry) Open(c Conn) {
	g.conns[c.ID()] = c
}

// Attach binds c to participantID. If the participant was already bound to a
// different connection, that connection is unbound and returned so the caller
// can close it.
func (g *Registry) Attach(c Conn, participantID string) Conn {
	var replaced Conn

	if prevID, ok := g.byParticipant[participantID]; ok && prevID != c.ID() {
		replaced = g.conns[prevID]
		delete(g.conns, prevID)
		delete(g.owner, prevID)
	}

	g.conns[c.ID()] = c
	g.owner[c.ID()] = participantID
	g.byParticipant[participantID] = c.ID()

	return replaced
}

// Detach forgets a connection and returns the participant it was bound to.
func (g *Registry) Detach(connID string) (string, bool) {
	if _, ok := g.conns[connID]; !ok {
		return "", false
	}
	delete(g.conns, connID)

	pid, ok := g.owner[connID]
	if !ok {
		return "", false
	}
	delete(g.owner, connID)
	if g.byParticipant[pid] == connID {
		delete(g.byParticipant, pid)
	}

	return pid, true
}

// Unbind drops the connection of a participant, if any, and returns it.
func (g *Registry) Unbind(participantID string) (Conn, bool) {
	connID, ok := g.byParticipant[participantID]
	if !ok {
		return nil, false
	}
	c := g.conns[connID]
	g.Detach(connID)
	return c, c != nil
}

func (g *Registry) Lookup(connID string) (string, bool) {
	pid, ok := g.owner[connID]
	return pid, ok
}

func (g *Registry) ConnFor(participantID string) (Conn, bool) {
	connID, ok := g.byParticipant[participantID]
	if !ok {
		return nil, false
	}
	c, ok := g.conns[connID]
	return c, ok
}

func (g *Registry) IsOpen(connID string) bool {
	_, ok := g.conns[connID]
	return ok
}

// Len counts open connections, bound or not.
func (g *Registry) Len() int {
	return len(g.conns)
}

func (g *Registry) all() []Conn {
	out := make([]Conn, 0, len(g.conns))
	for _, c := range g.conns {
		out = append(out, c)
	}
	return out
}

func (g *Registry) reset() {
	clear(g.conns)
	clear(g.owner)
	clear(g.byParticipant)
}
