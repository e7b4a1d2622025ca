/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package room

import (
	"errors"
	"fmt"
)

var (
	ErrRoomClosed    = errors.New("room is closed")
	ErrTooManyRooms  = errors.New("room limit reached")
	ErrInvalidRoomID = errors.New("invalid room id")
	ErrRoomIDInUse   = errors.New("room id is used by another game")

	// ErrInvariant marks an internal consistency failure. A game returning an
	// error wrapping it terminates the room.
	ErrInvariant = errors.New("room invariant violated")
)

// ErrorKind groups rejections for clients and logs.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindPermission ErrorKind = "permission"
	KindPhase      ErrorKind = "phase"
	KindTransport  ErrorKind = "transport"
	KindResource   ErrorKind = "resource"
	KindInternal   ErrorKind = "internal"
)

// Rejection codes shared by the core. Games add their own.
const (
	CodeBadMessage         = "bad-message"
	CodeNotJoined          = "not-joined"
	CodeAlreadyJoined      = "already-joined"
	CodeUnknownParticipant = "unknown-participant"
	CodeDisconnected       = "disconnected"
	CodeUnknownAction      = "unknown-action"
	CodeWrongRole          = "wrong-role"
	CodeNotHost            = "not-host"
	CodeInvalidPhase       = "invalid-phase"
	CodeUnknownTransition  = "unknown-transition"
	CodeRoomFinished       = "room-finished"
	CodeDuplicateVote      = "duplicate-vote"
	CodeRateLimited        = "rate-limited"
	CodeRoomFull           = "room-full"
	CodeTooManyRooms       = "too-many-rooms"
	CodeInvalidName        = "invalid-name"
	CodeNameTaken          = "name-taken"
	CodeInvalidTarget      = "invalid-target"
	CodeRejected           = "rejected"
)

// Rejection is the synchronous refusal of a request. Nothing was mutated.
type Rejection struct {
	Kind   ErrorKind
	Code   string
	Reason string
	Phase  Phase
}

func (r *Rejection) Error() string {
	if r.Phase != "" {
		return fmt.Sprintf("%s: %s (phase %s)", r.Code, r.Reason, r.Phase)
	}
	return fmt.Sprintf("%s: %s", r.Code, r.Reason)
}

func Reject(kind ErrorKind, code, format string, args ...any) *Rejection {
	return &Rejection{Kind: kind, Code: code, Reason: fmt.Sprintf(format, args...)}
}

func Invalid(code, format string, args ...any) *Rejection {
	return Reject(KindValidation, code, format, args...)
}

func Forbidden(code, format string, args ...any) *Rejection {
	return Reject(KindPermission, code, format, args...)
}

// WrongPhase builds a phase rejection carrying the current phase so clients can resync.
func WrongPhase(code string, phase Phase, format string, args ...any) *Rejection {
	r := Reject(KindPhase, code, format, args...)
	r.Phase = phase
	return r
}

// AsRejection unwraps err into a Rejection.
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}
