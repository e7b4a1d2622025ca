/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package room

import (
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func player(id string, joined time.Time) *Participant {
	return &Participant{
		ID:          id,
		Token:       "token-" + id,
		Role:        RolePlayer,
		DisplayName: id,
		State:       Connected,
		JoinedAt:    joined,
	}
}

func hostCount(r *Roster) int {
	n := 0
	for _, m := range r.Members() {
		if m.IsHost {
			n++
		}
	}
	return n
}

func TestRosterOrdersByJoinTime(t *testing.T) {
	base := time.Now()
	r := NewRoster()

	r.Add(player("b", base.Add(2*time.Second)))
	r.Add(player("a", base.Add(time.Second)))
	r.Add(player("c", base.Add(2*time.Second)))

	var ids []string
	for _, m := range r.Members() {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids, "ties keep arrival order")
	assert.Equal(t, "b", r.CurrentHost(), "the first player added takes the empty host slot")
}

func TestRosterSpectatorsNeverHost(t *testing.T) {
	r := NewRoster()

	s := player("watcher", time.Now())
	s.Role = RoleSpectator
	r.Add(s)
	assert.Empty(t, r.CurrentHost())

	r.Add(player("p", time.Now()))
	assert.Equal(t, "p", r.CurrentHost())

	r.MarkDisconnected("p")
	assert.Empty(t, r.CurrentHost())
	assert.Equal(t, 0, hostCount(r))
}

func TestRosterFailoverIsDeterministic(t *testing.T) {
	base := time.Now()
	ids := []string{"p1", "p2", "p3", "p4", "p5"}

	for trial := range 20 {
		t.Run(fmt.Sprintf("order %d", trial), func(t *testing.T) {
			r := NewRoster()

			order := rand.Perm(len(ids))
			for _, i := range order {
				r.Add(player(ids[i], base.Add(time.Duration(i)*time.Second)))
			}
			require.Equal(t, 1, hostCount(r))

			// Knock out the host repeatedly: the next earliest connected player
			// always takes over, whatever order they arrived in.
			remaining := map[string]bool{}
			for _, id := range ids {
				remaining[id] = true
			}

			for range ids {
				host := r.CurrentHost()
				require.NotEmpty(t, host)
				require.Equal(t, 1, hostCount(r))

				if trial%2 == 0 {
					r.MarkDisconnected(host)
				} else {
					r.Remove(host)
				}
				delete(remaining, host)

				want := ""
				for _, id := range ids {
					if remaining[id] {
						want = id
						break
					}
				}
				assert.Equal(t, want, r.CurrentHost())
			}

			assert.Empty(t, r.CurrentHost())
		})
	}
}

func TestRosterHostNotReturnedOnReconnect(t *testing.T) {
	base := time.Now()
	r := NewRoster()

	r.Add(player("a", base))
	r.Add(player("b", base.Add(time.Second)))

	r.MarkDisconnected("a")
	assert.Equal(t, "b", r.CurrentHost())

	r.MarkConnected("a")
	assert.Equal(t, "b", r.CurrentHost())
	assert.True(t, r.IsHost("b"))
	assert.False(t, r.IsHost("a"))
}

func TestRosterLookups(t *testing.T) {
	r := NewRoster()
	p := player("a", time.Now())
	r.Add(p)

	got, ok := r.ByToken("token-a")
	require.True(t, ok)
	assert.Same(t, p, got)

	_, ok = r.ByToken("")
	assert.False(t, ok)

	assert.True(t, r.NameTaken("A", ""))
	assert.False(t, r.NameTaken("A", "a"))

	r.MarkDisconnected("a")
	assert.False(t, r.NameTaken("A", ""), "names of disconnected participants are free")
	assert.Equal(t, 0, r.ConnectedCount())
	assert.Equal(t, 1, r.Len())
	assert.Empty(t, r.Eligible())

	removed, ok := r.Remove("a")
	require.True(t, ok)
	assert.Same(t, p, removed)
	_, ok = r.ByToken("token-a")
	assert.False(t, ok)

	_, ok = r.Remove("a")
	assert.False(t, ok)
}

func TestRosterTiesFallBackToArrival(t *testing.T) {
	same := time.Now()
	r := NewRoster()

	first, second := player("x", same), player("y", same)
	r.Add(first)
	r.Add(second)
	r.Add(player("early", same.Add(-time.Second)))

	var ids []string
	for _, m := range r.Members() {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"early", "x", "y"}, ids)

	assert.True(t, joinedBefore(first, second))
	assert.False(t, joinedBefore(second, first))
	assert.Equal(t, "x", r.CurrentHost())
}
