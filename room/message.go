/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package room

import (
	"bytes"
	"encoding/json"
)

// Envelope is the wire shape of every message in both directions.
type Envelope struct {
	Kind    string          `json:"kind"`
	Seq     uint64          `json:"seq,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Inbound message kinds.
const (
	KindJoinRoom               = "join-room"
	KindLeaveRoom              = "leave-room"
	KindSetDisplayName         = "set-display-name"
	KindSetDisplayGlyph        = "set-display-glyph"
	KindRequestPhaseTransition = "request-phase-transition"
	KindSubmitAction           = "submit-action"
	KindKick                   = "kick"
	KindCloseRoom              = "close-room"
)

// Outbound message kinds.
const (
	KindWelcome        = "welcome"
	KindRosterSnapshot = "roster-snapshot"
	KindPhaseChanged   = "phase-changed"
	KindActionApplied  = "action-applied"
	KindActionRejected = "action-rejected"
	KindKicked         = "kicked"
	KindRoomReaped     = "room-reaped"
	KindNotice         = "notice"
)

// Inbound is a decoded client request. The set of implementations is closed.
type Inbound interface {
	inboundKind() string
}

type JoinRoom struct {
	DisplayName  string `json:"displayName"`
	DisplayGlyph string `json:"displayGlyph"`
	Token        string `json:"token"`
}

type LeaveRoom struct{}

type SetDisplayName struct {
	DisplayName string `json:"displayName"`
}

type SetDisplayGlyph struct {
	DisplayGlyph string `json:"displayGlyph"`
}

type RequestPhaseTransition struct {
	Transition string `json:"transition"`
}

type SubmitAction struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

type Kick struct {
	ParticipantID string `json:"participantId"`
}

type CloseRoom struct{}

func (JoinRoom) inboundKind() string               { return KindJoinRoom }
func (LeaveRoom) inboundKind() string              { return KindLeaveRoom }
func (SetDisplayName) inboundKind() string         { return KindSetDisplayName }
func (SetDisplayGlyph) inboundKind() string        { return KindSetDisplayGlyph }
func (RequestPhaseTransition) inboundKind() string { return KindRequestPhaseTransition }
func (SubmitAction) inboundKind() string           { return KindSubmitAction }
func (Kick) inboundKind() string                   { return KindKick }
func (CloseRoom) inboundKind() string              { return KindCloseRoom }

// InboundKind returns the wire kind of a decoded message.
func InboundKind(m Inbound) string {
	return m.inboundKind()
}

// DecodeInbound parses one client frame. Unknown kinds, unknown payload
// fields and missing required fields are rejected with CodeBadMessage.
func DecodeInbound(data []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, Invalid(CodeBadMessage, "malformed envelope")
	}

	var msg Inbound
	switch env.Kind {
	case KindJoinRoom:
		var m JoinRoom
		if err := decodePayload(env.Payload, &m); err != nil {
			return nil, err
		}
		msg = m
	case KindLeaveRoom:
		msg = LeaveRoom{}
	case KindSetDisplayName:
		var m SetDisplayName
		if err := decodePayload(env.Payload, &m); err != nil {
			return nil, err
		}
		msg = m
	case KindSetDisplayGlyph:
		var m SetDisplayGlyph
		if err := decodePayload(env.Payload, &m); err != nil {
			return nil, err
		}
		msg = m
	case KindRequestPhaseTransition:
		var m RequestPhaseTransition
		if err := decodePayload(env.Payload, &m); err != nil {
			return nil, err
		}
		if m.Transition == "" {
			return nil, Invalid(CodeBadMessage, "transition is required")
		}
		msg = m
	case KindSubmitAction:
		var m SubmitAction
		if err := decodePayload(env.Payload, &m); err != nil {
			return nil, err
		}
		if m.Action == "" {
			return nil, Invalid(CodeBadMessage, "action is required")
		}
		msg = m
	case KindKick:
		var m Kick
		if err := decodePayload(env.Payload, &m); err != nil {
			return nil, err
		}
		if m.ParticipantID == "" {
			return nil, Invalid(CodeBadMessage, "participantId is required")
		}
		msg = m
	case KindCloseRoom:
		msg = CloseRoom{}
	case "":
		return nil, Invalid(CodeBadMessage, "missing kind")
	default:
		return nil, Invalid(CodeBadMessage, "unknown kind %q", env.Kind)
	}

	return msg, nil
}

func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return Invalid(CodeBadMessage, "malformed payload: %v", err)
	}
	return nil
}

// Outbound is a server message addressed to one connection. Transports encode
// it as an Envelope.
type Outbound struct {
	Kind    string `json:"kind"`
	Seq     uint64 `json:"seq,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

type Welcome struct {
	RoomID        string `json:"roomId"`
	GameKind      string `json:"gameKind"`
	ParticipantID string `json:"participantId"`
	Token         string `json:"token"`
	Role          Role   `json:"role"`
	Phase         Phase  `json:"phase"`
	Reattached    bool   `json:"reattached"`
}

type Self struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

type RosterSnapshot struct {
	Participants []Member `json:"participants"`
	HostID       string   `json:"hostId"`
	You          *Self    `json:"you,omitempty"`
}

type PhaseChanged struct {
	Phase    Phase `json:"phase"`
	Previous Phase `json:"previous"`
	State    any   `json:"state"`
}

type ActionApplied struct {
	By     string `json:"by"`
	Action string `json:"action"`
	Effect any    `json:"effect,omitempty"`
	State  any    `json:"state"`
}

type ActionRejected struct {
	Action string    `json:"action,omitempty"`
	Kind   ErrorKind `json:"kind"`
	Code   string    `json:"code"`
	Reason string    `json:"reason"`
	Phase  Phase     `json:"phase"`
}

type Kicked struct {
	Reason string `json:"reason"`
}

type RoomReaped struct {
	RoomID string `json:"roomId"`
	Reason string `json:"reason"`
}

// Notice is free text from the server, sent to everyone or to one role.
type Notice struct {
	Role Role   `json:"role,omitempty"`
	Text string `json:"text"`
}
