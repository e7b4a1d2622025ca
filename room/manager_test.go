/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package room

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, settings Settings) *Manager {
	t.Helper()

	settings.Logger = zerolog.Nop()
	m, err := NewManager(&counterGame{}, settings)
	require.NoError(t, err)

	t.Cleanup(m.Close)

	return m
}

type brokenGame struct{ counterGame }

type otherGame struct{ counterGame }

func (*otherGame) Kind() string { return "other" }

func (*brokenGame) Transitions() []Transition {
	return []Transition{{Name: "restart", From: []Phase{PhaseFinished}, To: PhaseLobby}}
}

func TestNewManagerChecksGraph(t *testing.T) {
	_, err := NewManager(&brokenGame{}, Settings{Logger: zerolog.Nop()})
	assert.Error(t, err)
}

func TestCreateIfAbsentIsIdempotent(t *testing.T) {
	m := newTestManager(t, Settings{})

	const callers = 32

	rooms := make([]*Room, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Go(func() {
			r, err := m.CreateIfAbsent("abcdef")
			assert.NoError(t, err)
			rooms[i] = r
		})
	}
	wg.Wait()

	require.NotNil(t, rooms[0])
	for _, r := range rooms[1:] {
		assert.Same(t, rooms[0], r)
	}
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, "ABCDEF", rooms[0].ID())

	got, ok := m.Get("abcdef")
	require.True(t, ok)
	assert.Same(t, rooms[0], got)
}

func TestCreateIfAbsentLimits(t *testing.T) {
	m := newTestManager(t, Settings{MaxRooms: 1})

	_, err := m.CreateIfAbsent("bad")
	assert.ErrorIs(t, err, ErrInvalidRoomID)

	_, err = m.CreateIfAbsent("AAAAAA")
	require.NoError(t, err)

	_, err = m.CreateIfAbsent("BBBBBB")
	assert.ErrorIs(t, err, ErrTooManyRooms)

	_, err = m.CreateIfAbsent("AAAAAA")
	assert.NoError(t, err, "existing rooms do not count against the limit")
}

func TestClosedRoomIsReplaced(t *testing.T) {
	m := newTestManager(t, Settings{})

	first, err := m.CreateIfAbsent("AAAAAA")
	require.NoError(t, err)

	first.Close("test")
	assert.Eventually(t, func() bool { return m.Len() == 0 }, waitFor, tick, "closed rooms forget themselves")

	second, err := m.CreateIfAbsent("AAAAAA")
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.False(t, second.Closed())
}

func TestNewRoomIDAvoidsLiveRooms(t *testing.T) {
	m := newTestManager(t, Settings{})

	for range 20 {
		id, err := m.NewRoomID()
		require.NoError(t, err)
		_, err = m.CreateIfAbsent(id)
		require.NoError(t, err)
	}
	assert.Equal(t, 20, m.Len())
}

func TestReapEmptyRooms(t *testing.T) {
	grace := time.Second
	m := newTestManager(t, Settings{Grace: grace})

	empty, err := m.CreateIfAbsent("AAAAAA")
	require.NoError(t, err)

	busy, err := m.CreateIfAbsent("BBBBBB")
	require.NoError(t, err)
	joinAs(t, busy, "A", "")

	assert.Equal(t, 0, m.Reap(time.Now()), "nothing is older than the grace window yet")

	later := time.Now().Add(2 * grace)
	assert.Equal(t, 1, m.Reap(later))

	<-empty.Done()
	assert.False(t, busy.Closed())

	_, ok := m.Get("AAAAAA")
	assert.False(t, ok)
	assert.Eventually(t, func() bool { return m.Len() == 1 }, waitFor, tick)
}

func TestReapHappensOnce(t *testing.T) {
	m := newTestManager(t, Settings{Grace: time.Millisecond})

	r, err := m.CreateIfAbsent("AAAAAA")
	require.NoError(t, err)
	c := newConn()
	require.NoError(t, r.Open(context.Background(), c))
	r.Disconnect(c)
	viewOf(t, r)

	later := time.Now().Add(time.Second)

	var (
		mu    sync.Mutex
		total int
		wg    sync.WaitGroup
	)
	for range 8 {
		wg.Go(func() {
			n := m.Reap(later)
			mu.Lock()
			total += n
			mu.Unlock()
		})
	}
	wg.Wait()

	assert.Equal(t, 1, total)
	assert.True(t, r.Closed())
}

func TestReapSparesReoccupiedRooms(t *testing.T) {
	m := newTestManager(t, Settings{Grace: time.Millisecond})

	r, err := m.CreateIfAbsent("AAAAAA")
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	// The status the reaper pre-filters on still says empty, but a
	// connection reaches the actor before the retire request does.
	c := newConn()
	require.NoError(t, r.Open(context.Background(), c))

	assert.Equal(t, 0, m.Reap(time.Now().Add(time.Second)))
	assert.False(t, r.Closed())
	assert.False(t, c.isClosed())
}

func TestReapIdleRooms(t *testing.T) {
	m := newTestManager(t, Settings{Grace: time.Hour, IdleTimeout: time.Minute})

	r, err := m.CreateIfAbsent("AAAAAA")
	require.NoError(t, err)
	c, _ := joinAs(t, r, "A", "")

	assert.Equal(t, 0, m.Reap(time.Now()))
	assert.Equal(t, 1, m.Reap(time.Now().Add(2*time.Minute)))

	<-r.Done()
	reaped, ok := c.last(KindRoomReaped)
	require.True(t, ok)
	assert.Equal(t, "idle", reaped.Payload.(RoomReaped).Reason)
}

func TestList(t *testing.T) {
	m := newTestManager(t, Settings{})

	b, err := m.CreateIfAbsent("BBBBBB")
	require.NoError(t, err)
	a, err := m.CreateIfAbsent("AAAAAA")
	require.NoError(t, err)
	_, err = m.CreateIfAbsent("CCCCCC")
	require.NoError(t, err)

	joinAs(t, a, "A", "")
	joinAs(t, b, "B1", "")
	joinAs(t, b, "B2", "")
	viewOf(t, a)
	viewOf(t, b)

	assert.Equal(t, []Listing{
		{RoomID: "AAAAAA", GameKind: "counter", ParticipantCount: 1, Phase: PhaseLobby},
		{RoomID: "BBBBBB", GameKind: "counter", ParticipantCount: 2, Phase: PhaseLobby},
	}, m.List())
}

func TestRunClosesRoomsOnShutdown(t *testing.T) {
	m := newTestManager(t, Settings{Grace: time.Second})

	r, err := m.CreateIfAbsent("AAAAAA")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("Run did not return")
	}
	assert.True(t, r.Closed())
	assert.Eventually(t, func() bool { return m.Len() == 0 }, waitFor, tick)
}

func TestRoomIDsAreUniqueAcrossGames(t *testing.T) {
	directory := NewDirectory()
	settings := Settings{Directory: directory, Logger: zerolog.Nop()}

	counter, err := NewManager(&counterGame{}, settings)
	require.NoError(t, err)
	t.Cleanup(counter.Close)

	other, err := NewManager(&otherGame{}, settings)
	require.NoError(t, err)
	t.Cleanup(other.Close)

	first, err := counter.CreateIfAbsent("abcdef")
	require.NoError(t, err)

	_, err = other.CreateIfAbsent("ABCDEF")
	assert.ErrorIs(t, err, ErrRoomIDInUse)
	assert.Equal(t, 0, other.Len())

	kind, ok := directory.Owner("ABCDEF")
	require.True(t, ok)
	assert.Equal(t, "counter", kind)
	assert.True(t, directory.Taken("ABCDEF"))

	again, err := counter.CreateIfAbsent("ABCDEF")
	require.NoError(t, err)
	assert.Same(t, first, again)

	first.Close("test")

	second, err := other.CreateIfAbsent("ABCDEF")
	require.NoError(t, err)
	assert.Equal(t, "other", second.GameKind())

	assert.Eventually(t, func() bool {
		kind, ok := directory.Owner("ABCDEF")
		return ok && kind == "other"
	}, waitFor, tick)

	second.Close("test")
	assert.Eventually(t, func() bool { return !directory.Taken("ABCDEF") }, waitFor, tick)
}

func TestNewRoomIDSkipsOtherGames(t *testing.T) {
	directory := NewDirectory()
	settings := Settings{Directory: directory, Logger: zerolog.Nop()}

	counter, err := NewManager(&counterGame{}, settings)
	require.NoError(t, err)
	t.Cleanup(counter.Close)

	other, err := NewManager(&otherGame{}, settings)
	require.NoError(t, err)
	t.Cleanup(other.Close)

	for range 20 {
		id, err := counter.NewRoomID()
		require.NoError(t, err)
		_, err = counter.CreateIfAbsent(id)
		require.NoError(t, err)

		id, err = other.NewRoomID()
		require.NoError(t, err)
		assert.False(t, directory.Taken(id))
		_, err = other.CreateIfAbsent(id)
		require.NoError(t, err)
	}

	assert.Equal(t, 20, counter.Len())
	assert.Equal(t, 20, other.Len())
}

func TestAnnounceReachesEveryRoom(t *testing.T) {
	m := newTestManager(t, Settings{})

	a, err := m.CreateIfAbsent("AAAAAA")
	require.NoError(t, err)
	b, err := m.CreateIfAbsent("BBBBBB")
	require.NoError(t, err)

	ca, _ := joinAs(t, a, "A", "")
	cb, _ := joinAs(t, b, "B", "")

	m.Announce(context.Background(), "", "the server is shutting down")

	for _, c := range []*fakeConn{ca, cb} {
		notice, ok := c.last(KindNotice)
		require.True(t, ok)
		assert.Equal(t, Notice{Text: "the server is shutting down"}, notice.Payload)
	}
}
