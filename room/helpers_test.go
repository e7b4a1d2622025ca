/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package room

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	phasePlaying Phase = "playing"
	testRoomID         = "ABCDEF"
	waitFor            = 2 * time.Second
	tick               = 5 * time.Millisecond
)

var connSeq atomic.Uint64

// fakeConn records everything the room sends it.
type fakeConn struct {
	id string

	mu     sync.Mutex
	out    []Outbound
	closed bool
	broken bool
}

func newConn() *fakeConn {
	return &fakeConn{id: fmt.Sprintf("conn-%d", connSeq.Add(1))}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(out Outbound) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broken || c.closed {
		return errors.New("send buffer full")
	}
	c.out = append(c.out, out)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) breakSends() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.broken = true
}

func (c *fakeConn) messages() []Outbound {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.out)
}

func (c *fakeConn) ofKind(kind string) []Outbound {
	var out []Outbound
	for _, m := range c.messages() {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

func (c *fakeConn) last(kind string) (Outbound, bool) {
	msgs := c.ofKind(kind)
	if len(msgs) == 0 {
		return Outbound{}, false
	}
	return msgs[len(msgs)-1], true
}

func (c *fakeConn) welcome(t *testing.T) Welcome {
	t.Helper()
	m, ok := c.last(KindWelcome)
	require.True(t, ok, "no welcome received")
	return m.Payload.(Welcome)
}

// counterGame is a minimal game exercising every hook of the core.
type counterGame struct {
	timeout time.Duration
	entered atomic.Int32
}

type counterState struct {
	Count int             `json:"count"`
	Done  map[string]bool `json:"done"`
	Votes map[string]int  `json:"votes"`
}

type counterView struct {
	Count int `json:"count"`
	Done  int `json:"done"`
}

func (g *counterGame) Kind() string { return "counter" }

func (g *counterGame) NewState() any {
	return &counterState{Done: map[string]bool{}, Votes: map[string]int{}}
}

func (g *counterGame) Actions() map[string]ActionRule {
	return map[string]ActionRule{
		"add":     {Phases: []Phase{phasePlaying}, Role: RolePlayer},
		"done":    {Phases: []Phase{phasePlaying}, Role: RolePlayer},
		"vote":    {Phases: []Phase{phasePlaying}, Role: RolePlayer},
		"cheer":   {Phases: []Phase{PhaseLobby, phasePlaying}},
		"reset":   {Phases: []Phase{PhaseLobby, phasePlaying}, HostOnly: true},
		"boom":    {Phases: []Phase{phasePlaying}},
		"corrupt": {Phases: []Phase{phasePlaying}},
		"bonus":   {Phases: []Phase{phasePlaying}, System: true},
	}
}

func (g *counterGame) Transitions() []Transition {
	return []Transition{
		{Name: "start", From: []Phase{PhaseLobby}, To: phasePlaying},
		{Name: "finish", From: []Phase{phasePlaying}, To: PhaseFinished, Auto: true, Timeout: g.timeout},
	}
}

func (g *counterGame) Apply(state any, _ Phase, act Action, by Member) (any, error) {
	s := state.(*counterState)

	switch act.Kind {
	case "add", "bonus":
		s.Count++
		return map[string]int{"count": s.Count}, nil
	case "done":
		s.Done[by.ID] = true
		return nil, nil
	case "vote":
		if _, ok := s.Votes[by.ID]; ok {
			return nil, WrongPhase(CodeDuplicateVote, "", "already voted")
		}
		s.Votes[by.ID] = 1
		return nil, nil
	case "cheer":
		return nil, nil
	case "reset":
		s.Count = 0
		return nil, nil
	case "boom":
		panic("boom")
	case "corrupt":
		return nil, fmt.Errorf("%w: count went negative", ErrInvariant)
	}

	return nil, Invalid(CodeUnknownAction, "unknown action %q", act.Kind)
}

func (g *counterGame) PhaseComplete(state any, phase Phase, eligible []Member) bool {
	if phase != phasePlaying || len(eligible) == 0 {
		return false
	}
	s := state.(*counterState)
	for _, m := range eligible {
		if !s.Done[m.ID] {
			return false
		}
	}
	return true
}

func (g *counterGame) Snapshot(state any, _ Phase, _ Member) any {
	s := state.(*counterState)
	return counterView{Count: s.Count, Done: len(s.Done)}
}

func (g *counterGame) EnterPhase(_ any, _, _ Phase, _ []Member) {
	g.entered.Add(1)
}

func newTestRoom(t *testing.T, game Game, settings Settings) *Room {
	t.Helper()

	settings.Logger = zerolog.Nop()

	r, err := newRoom(testRoomID, game, settings.withDefaults(), nil)
	require.NoError(t, err)

	t.Cleanup(func() { r.Close("test done") })

	return r
}

// joinAs opens a connection and joins it, returning the connection and the
// participant id.
func joinAs(t *testing.T, r *Room, name, token string) (*fakeConn, string) {
	t.Helper()

	ctx := context.Background()
	c := newConn()
	require.NoError(t, r.Open(ctx, c))

	res, err := r.Handle(ctx, c, JoinRoom{DisplayName: name, Token: token})
	require.NoError(t, err)
	require.NotEmpty(t, res.Participant)

	return c, res.Participant
}

func viewOf(t *testing.T, r *Room) View {
	t.Helper()
	v, err := r.View(context.Background())
	require.NoError(t, err)
	return v
}

func memberOf(v View, id string) (Member, bool) {
	for _, m := range v.Members {
		if m.ID == id {
			return m, true
		}
	}
	return Member{}, false
}

func requireRejection(t *testing.T, err error, kind ErrorKind, code string) *Rejection {
	t.Helper()
	rej, ok := AsRejection(err)
	require.True(t, ok, "expected a rejection, got %v", err)
	require.Equal(t, kind, rej.Kind)
	require.Equal(t, code, rej.Code)
	return rej
}
