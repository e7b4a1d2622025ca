/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package snapshot holds the stores rooms write their full-state blobs to.
package snapshot

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
)

var ErrNotFound = errors.New("snapshot not found")

// Memory keeps the latest blob per room in process memory.
type Memory struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{blobs: make(map[string][]byte)}
}

func (m *Memory) Save(_ context.Context, roomID string, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.blobs[roomID] = slices.Clone(blob)

	return nil
}

func (m *Memory) Delete(_ context.Context, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.blobs, roomID)

	return nil
}

func (m *Memory) Load(_ context.Context, roomID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	blob, ok := m.blobs[roomID]
	if !ok {
		return nil, ErrNotFound
	}

	return slices.Clone(blob), nil
}

// Rooms lists the ids that currently have a snapshot, sorted.
func (m *Memory) Rooms(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return slices.Sorted(maps.Keys(m.blobs)), nil
}
