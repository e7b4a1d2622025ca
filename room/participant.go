/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package room

import "time"

// Role decides what a participant may do in a room. It is fixed at join time.
type Role string

const (
	RolePlayer    Role = "player"
	RoleSpectator Role = "spectator"
)

// ConnState tracks whether a participant currently has a live connection.
type ConnState string

const (
	Connected    ConnState = "connected"
	Disconnected ConnState = "disconnected"
)

// Participant is the roster's record of one identity in a room. Only the room
// actor touches it; everything outside the actor sees Member copies.
type Participant struct {
	ID           string
	Token        string
	Role         Role
	DisplayName  string
	DisplayGlyph string
	State        ConnState
	JoinedAt     time.Time

	joinSeq    uint64
	removalGen uint64
	removal    *time.Timer
}

func (p *Participant) Connected() bool {
	return p.State == Connected
}

func (p *Participant) cancelRemoval() {
	p.removalGen++
	if p.removal != nil {
		p.removal.Stop()
		p.removal = nil
	}
}

// Member is the read-only view of a participant handed to games and clients.
type Member struct {
	ID           string    `json:"id"`
	Role         Role      `json:"role"`
	DisplayName  string    `json:"displayName"`
	DisplayGlyph string    `json:"displayGlyph,omitempty"`
	State        ConnState `json:"state"`
	IsHost       bool      `json:"isHost"`
	JoinedAt     time.Time `json:"joinedAt"`

	// System is set on the synthetic member used for actions posted by the
	// server itself (timers, async lookups).
	System bool `json:"-"`
}

func (m Member) Connected() bool {
	return m.State == Connected
}

// SystemMember is the requester attached to actions entering through Room.Post.
var SystemMember = Member{ID: "system", DisplayName: "system", State: Connected, System: true}
