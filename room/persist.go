/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package room

import (
	"context"
	"encoding/json"
	"time"
)

const storeTimeout = 3 * time.Second

// Store receives full-state blobs keyed by room id. The room never reads them
// back; they exist for crash forensics and external tooling.
type Store interface {
	Save(ctx context.Context, roomID string, blob []byte) error
	Delete(ctx context.Context, roomID string) error
}

// Snapshot is the persisted layout of a room.
type Snapshot struct {
	RoomID       string    `json:"roomId"`
	GameKind     string    `json:"gameKind"`
	Phase        Phase     `json:"phase"`
	Seq          uint64    `json:"seq"`
	HostID       string    `json:"hostId"`
	Participants []Member  `json:"participants"`
	GameData     any       `json:"gameData"`
	SavedAt      time.Time `json:"savedAt"`
}

// persist hands the latest state to the writer goroutine. Only the newest blob
// matters, so an unsent older one is replaced.
func (r *Room) persist() {
	if r.saves == nil || r.closed {
		return
	}

	blob, err := json.Marshal(Snapshot{
		RoomID:       r.id,
		GameKind:     r.game.Kind(),
		Phase:        r.machine.Phase(),
		Seq:          r.seq,
		HostID:       r.roster.CurrentHost(),
		Participants: r.roster.Members(),
		GameData:     r.state,
		SavedAt:      time.Now(),
	})
	if err != nil {
		r.log.Warn().Err(err).Msg("encoding snapshot")
		return
	}

	select {
	case r.saves <- blob:
	default:
		select {
		case <-r.saves:
		default:
		}
		r.saves <- blob
	}
}

func (r *Room) persistLoop(store Store) {
	defer close(r.persisted)

	for blob := range r.saves {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		if err := store.Save(ctx, r.id, blob); err != nil {
			r.log.Warn().Err(err).Msg("saving snapshot")
		}
		cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := store.Delete(ctx, r.id); err != nil {
		r.log.Warn().Err(err).Msg("deleting snapshot")
	}
}
