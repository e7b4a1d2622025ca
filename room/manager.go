/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package room

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	maxIDAttempts = 32
	retireTimeout = 5 * time.Second
	minReapEvery  = 500 * time.Millisecond
)

// Listing is one entry of the room directory.
type Listing struct {
	RoomID           string `json:"roomId"`
	GameKind         string `json:"gameKind"`
	ParticipantCount int    `json:"participantCount"`
	Phase            Phase  `json:"phase"`
}

// Manager holds the live rooms of one game, keyed by room id, so each
// $path/$roomid is its own isolated session. Ids are claimed in the shared
// Directory, so no two games run a room under the same id.
type Manager struct {
	game      Game
	settings  Settings
	directory *Directory
	log       zerolog.Logger

	mu    sync.Mutex
	rooms map[string]*Room
}

func NewManager(game Game, settings Settings) (*Manager, error) {
	settings = settings.withDefaults()

	// Fail on a broken phase graph now rather than on the first join.
	if _, err := NewMachine(game.Transitions()); err != nil {
		return nil, err
	}

	directory := settings.Directory
	if directory == nil {
		directory = NewDirectory()
	}

	return &Manager{
		game:      game,
		settings:  settings,
		directory: directory,
		log:       settings.Logger.With().Str("game", game.Kind()).Logger(),
		rooms:     make(map[string]*Room),
	}, nil
}

func (m *Manager) GameKind() string {
	return m.game.Kind()
}

// CreateIfAbsent returns the live room for id, creating it if needed.
// Concurrent callers for the same id all get the same room. It fails with
// ErrRoomIDInUse while another game runs a room under id.
func (m *Manager) CreateIfAbsent(id string) (*Room, error) {
	id, err := NormalizeRoomID(id)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.rooms[id]; ok {
		if !r.Closed() {
			return r, nil
		}
		delete(m.rooms, id)
	}

	if m.settings.MaxRooms > 0 && len(m.rooms) >= m.settings.MaxRooms {
		return nil, ErrTooManyRooms
	}

	r, err := m.directory.claim(id, func() (*Room, error) {
		return newRoom(id, m.game, m.settings, m.forget)
	})
	if err != nil {
		return nil, err
	}
	m.rooms[id] = r

	m.log.Info().Str("room", id).Msg("room created")

	return r, nil
}

// Get returns a live room without creating it.
func (m *Manager) Get(id string) (*Room, bool) {
	id = strings.ToUpper(strings.TrimSpace(id))

	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[id]
	if !ok || r.Closed() {
		return nil, false
	}
	return r, true
}

// NewRoomID returns a code that no live room of any game uses.
func (m *Manager) NewRoomID() (string, error) {
	for range maxIDAttempts {
		id, err := NewRoomID()
		if err != nil {
			return "", err
		}

		m.mu.Lock()
		_, exists := m.rooms[id]
		m.mu.Unlock()

		if !exists && !m.directory.Taken(id) {
			return id, nil
		}
	}
	return "", errors.New("unable to find a free room id")
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms)
}

func (m *Manager) snapshot() []*Room {
	m.mu.Lock()
	defer m.mu.Unlock()

	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	return rooms
}

// forget drops r from the manager and the shared directory if it is still
// the room registered under its id.
func (m *Manager) forget(r *Room) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.rooms[r.id]; ok && current == r {
		delete(m.rooms, r.id)
	}
	m.directory.release(r)
}

// Reap tears down rooms that have had no connections for longer than the
// grace window, or no activity for longer than the idle timeout, as of now.
// It returns the number of rooms torn down.
func (m *Manager) Reap(now time.Time) int {
	emptyCutoff := now.Add(-m.settings.Grace)

	var idleCutoff time.Time
	if m.settings.IdleTimeout > 0 {
		idleCutoff = now.Add(-m.settings.IdleTimeout)
	}

	reaped := 0
	for _, r := range m.snapshot() {
		st := r.Status()
		if st.Closed {
			m.forget(r)
			continue
		}

		empty := st.Open == 0 && !st.EmptySince.IsZero() && st.EmptySince.Before(emptyCutoff)
		idle := !idleCutoff.IsZero() && st.LastActive.Before(idleCutoff)
		if !empty && !idle {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), retireTimeout)
		retired, err := r.retire(ctx, emptyCutoff, idleCutoff)
		cancel()
		if err != nil && !errors.Is(err, ErrRoomClosed) {
			m.log.Warn().Err(err).Str("room", r.id).Msg("retiring room")
			continue
		}
		if retired {
			m.log.Info().Str("room", r.id).Msg("room reaped")
			reaped++
		}
	}

	return reaped
}

// Run reaps periodically until ctx is done, then closes every room.
func (m *Manager) Run(ctx context.Context) {
	every := m.settings.Grace / 2
	if m.settings.IdleTimeout > 0 && m.settings.IdleTimeout/2 < every {
		every = m.settings.IdleTimeout / 2
	}
	every = max(every, minReapEvery)

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.Close()
			return
		case now := <-ticker.C:
			m.Reap(now)
		}
	}
}

// List returns the directory of rooms that have someone connected.
func (m *Manager) List() []Listing {
	out := make([]Listing, 0)
	for _, r := range m.snapshot() {
		st := r.Status()
		if st.Closed || st.Participants == 0 {
			continue
		}
		out = append(out, Listing{
			RoomID:           st.RoomID,
			GameKind:         st.GameKind,
			ParticipantCount: st.Participants,
			Phase:            st.Phase,
		})
	}

	slices.SortFunc(out, func(a, b Listing) int {
		return strings.Compare(a.RoomID, b.RoomID)
	})

	return out
}

// Announce sends a notice to role, or everyone when role is empty, in every
// live room. Rooms that close meanwhile are skipped.
func (m *Manager) Announce(ctx context.Context, role Role, text string) {
	for _, r := range m.snapshot() {
		if _, err := r.Announce(ctx, role, text); err != nil && !errors.Is(err, ErrRoomClosed) {
			m.log.Debug().Err(err).Str("room", r.id).Msg("announcing")
		}
	}
}

// Close tears down every room.
func (m *Manager) Close() {
	for _, r := range m.snapshot() {
		r.Close("shutdown")
	}
}
