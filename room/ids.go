/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package room

import (
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	// RoomIDLength is the length of the human-typeable room codes.
	RoomIDLength = 6

	// roomIDChars leaves out characters that are easy to misread (0/O, 1/I).
	roomIDChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// NewRoomID returns a random room code. It does not check for collisions.
func NewRoomID() (string, error) {
	buf := make([]byte, RoomIDLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}

	out := make([]byte, RoomIDLength)
	for i := range out {
		out[i] = roomIDChars[int(buf[i])%len(roomIDChars)]
	}

	return string(out), nil
}

// NormalizeRoomID upper-cases a user-typed code and checks its shape.
func NormalizeRoomID(id string) (string, error) {
	id = strings.ToUpper(strings.TrimSpace(id))
	if len(id) != RoomIDLength {
		return "", fmt.Errorf("%w: %q", ErrInvalidRoomID, id)
	}
	for i := 0; i < len(id); i++ {
		if strings.IndexByte(roomIDChars, id[i]) < 0 {
			return "", fmt.Errorf("%w: %q", ErrInvalidRoomID, id)
		}
	}
	return id, nil
}

func newParticipantID() string {
	return uuid.NewString()
}

func newToken() string {
	return uuid.NewString()
}
