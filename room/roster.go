/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package room

import (
	"strings"
)

// Roster holds the players and spectators of one room in join order and
// decides who holds the host privilege.
//
// A Roster is owned by a single room actor and is not safe for concurrent use.
type Roster struct {
	members []*Participant
	byID    map[string]*Participant
	byToken map[string]*Participant
	hostID  string
	nextSeq uint64
}

func NewRoster() *Roster {
	return &Roster{
		byID:    make(map[string]*Participant),
		byToken: make(map[string]*Participant),
	}
}

// Add inserts p ordered by JoinedAt (ties broken by arrival) and fills the
// host slot if it is empty.
func (r *Roster) Add(p *Participant) {
	r.nextSeq++
	p.joinSeq = r.nextSeq

	i := len(r.members)
	for i > 0 && joinedBefore(p, r.members[i-1]) {
		i--
	}
	r.members = append(r.members, nil)
	copy(r.members[i+1:], r.members[i:])
	r.members[i] = p

	r.byID[p.ID] = p
	if p.Token != "" {
		r.byToken[p.Token] = p
	}

	r.ReassignHostIfNeeded()
}

// joinedBefore orders participants by JoinedAt, then by the order Add saw them.
func joinedBefore(a, b *Participant) bool {
	if !a.JoinedAt.Equal(b.JoinedAt) {
		return a.JoinedAt.Before(b.JoinedAt)
	}
	return a.joinSeq < b.joinSeq
}

// Remove drops a participant. Game data attributed to them is left alone.
func (r *Roster) Remove(id string) (*Participant, bool) {
	p, ok := r.byID[id]
	if !ok {
		return nil, false
	}

	p.cancelRemoval()

	delete(r.byID, id)
	if p.Token != "" {
		delete(r.byToken, p.Token)
	}

	dst := r.members[:0]
	for _, m := range r.members {
		if m.ID != id {
			dst = append(dst, m)
		}
	}
	clear(r.members[len(dst):])
	r.members = dst

	r.ReassignHostIfNeeded()

	return p, true
}

func (r *Roster) Get(id string) (*Participant, bool) {
	p, ok := r.byID[id]
	return p, ok
}

func (r *Roster) ByToken(token string) (*Participant, bool) {
	if token == "" {
		return nil, false
	}
	p, ok := r.byToken[token]
	return p, ok
}

// CurrentHost returns the host id, or "" when no connected player exists.
func (r *Roster) CurrentHost() string {
	return r.hostID
}

func (r *Roster) IsHost(id string) bool {
	return id != "" && r.hostID == id
}

// ReassignHostIfNeeded keeps the current host while it is a connected player,
// otherwise hands the privilege to the connected player that joined first.
// It reports whether the host changed.
func (r *Roster) ReassignHostIfNeeded() bool {
	if p, ok := r.byID[r.hostID]; ok && p.Role == RolePlayer && p.Connected() {
		return false
	}

	prev := r.hostID
	r.hostID = ""
	for _, p := range r.members {
		if p.Role == RolePlayer && p.Connected() {
			r.hostID = p.ID
			break
		}
	}

	return prev != r.hostID
}

func (r *Roster) MarkDisconnected(id string) bool {
	p, ok := r.byID[id]
	if !ok || !p.Connected() {
		return false
	}
	p.State = Disconnected
	r.ReassignHostIfNeeded()
	return true
}

func (r *Roster) MarkConnected(id string) bool {
	p, ok := r.byID[id]
	if !ok {
		return false
	}
	p.cancelRemoval()
	if p.Connected() {
		return false
	}
	p.State = Connected
	r.ReassignHostIfNeeded()
	return true
}

func (r *Roster) Len() int {
	return len(r.members)
}

func (r *Roster) ConnectedCount() int {
	n := 0
	for _, p := range r.members {
		if p.Connected() {
			n++
		}
	}
	return n
}

// CountRole counts members of a role, connected or still inside their grace window.
func (r *Roster) CountRole(role Role) int {
	n := 0
	for _, p := range r.members {
		if p.Role == role {
			n++
		}
	}
	return n
}

// NameTaken reports whether a connected participant other than exceptID
// already uses name, ignoring case.
func (r *Roster) NameTaken(name, exceptID string) bool {
	for _, p := range r.members {
		if p.ID == exceptID || !p.Connected() {
			continue
		}
		if strings.EqualFold(p.DisplayName, name) {
			return true
		}
	}
	return false
}

func (r *Roster) member(p *Participant) Member {
	return Member{
		ID:           p.ID,
		Role:         p.Role,
		DisplayName:  p.DisplayName,
		DisplayGlyph: p.DisplayGlyph,
		State:        p.State,
		IsHost:       r.hostID == p.ID,
		JoinedAt:     p.JoinedAt,
	}
}

// Member returns the view of one participant.
func (r *Roster) Member(id string) (Member, bool) {
	p, ok := r.byID[id]
	if !ok {
		return Member{}, false
	}
	return r.member(p), true
}

// Members returns every participant in join order.
func (r *Roster) Members() []Member {
	out := make([]Member, 0, len(r.members))
	for _, p := range r.members {
		out = append(out, r.member(p))
	}
	return out
}

// Eligible returns the connected players in join order. Completion predicates
// are evaluated against this set.
func (r *Roster) Eligible() []Member {
	out := make([]Member, 0, len(r.members))
	for _, p := range r.members {
		if p.Role == RolePlayer && p.Connected() {
			out = append(out, r.member(p))
		}
	}
	return out
}

func (r *Roster) each(fn func(p *Participant)) {
	for _, p := range r.members {
		fn(p)
	}
}
