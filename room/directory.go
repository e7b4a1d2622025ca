/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package room

import (
	"sync"
)

// Directory is the set of live room ids shared by every Manager of one
// server, so an id names at most one room whatever game it runs.
type Directory struct {
	mu    sync.Mutex
	rooms map[string]*Room
}

func NewDirectory() *Directory {
	return &Directory{rooms: make(map[string]*Room)}
}

// claim registers the room built by create under id. It fails with
// ErrRoomIDInUse while another live room holds the id.
func (d *Directory) claim(id string, create func() (*Room, error)) (*Room, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if owner, ok := d.rooms[id]; ok && !owner.Closed() {
		return nil, ErrRoomIDInUse
	}

	r, err := create()
	if err != nil {
		return nil, err
	}
	d.rooms[id] = r

	return r, nil
}

// release frees r's id if r still holds it.
func (d *Directory) release(r *Room) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if owner, ok := d.rooms[r.id]; ok && owner == r {
		delete(d.rooms, r.id)
	}
}

// Taken reports whether a live room holds id.
func (d *Directory) Taken(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	owner, ok := d.rooms[id]
	return ok && !owner.Closed()
}

// Owner returns the game kind of the live room holding id.
func (d *Directory) Owner(id string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	owner, ok := d.rooms[id]
	if !ok || owner.Closed() {
		return "", false
	}
	return owner.GameKind(), true
}
