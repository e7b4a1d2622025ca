/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package room

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultGrace         = 45 * time.Second
	DefaultMaxPlayers    = 16
	DefaultMaxSpectators = 32

	inboxSize = 256
)

// Settings are shared by every room a Manager creates.
type Settings struct {
	// Grace is how long a disconnected participant is kept, and how long a
	// room may sit without connections before it is reaped.
	Grace time.Duration

	// IdleTimeout reaps rooms that have seen no activity at all for this long.
	// Zero disables it.
	IdleTimeout time.Duration

	MaxRooms      int
	MaxPlayers    int
	MaxSpectators int

	// NewLimiter builds the admission policy of each room. Nil disables limiting.
	NewLimiter func() Limiter

	// Store, when set, receives a full-state blob after every change.
	Store Store

	// Directory is shared by the managers of every game so room ids stay
	// unique across them. Each manager gets a private one when nil.
	Directory *Directory

	Logger zerolog.Logger
}

func (s Settings) withDefaults() Settings {
	if s.Grace <= 0 {
		s.Grace = DefaultGrace
	}
	if s.MaxPlayers <= 0 {
		s.MaxPlayers = DefaultMaxPlayers
	}
	if s.MaxSpectators <= 0 {
		s.MaxSpectators = DefaultMaxSpectators
	}
	if s.NewLimiter == nil {
		s.NewLimiter = func() Limiter { return unlimited{} }
	}
	return s
}

// Result is what an applied request produced.
type Result struct {
	Seq         uint64
	Participant string
	Effect      any
}

// Status is the externally readable summary of a room, refreshed after
// every command the room processes.
type Status struct {
	RoomID       string
	GameKind     string
	Phase        Phase
	Participants int // connected participants
	Members      int // connected or inside their grace window
	Open         int // open transport connections, joined or not
	EmptySince   time.Time
	LastActive   time.Time
	Closed       bool
}

// View is a consistent copy of a room's state, for inspection and tests.
type View struct {
	RoomID   string
	Phase    Phase
	HostID   string
	Members  []Member
	Seq      uint64
	GameData json.RawMessage
}

// Room is one game session. All of its state is owned by a single goroutine
// that drains the inbox; every exported method talks to it through commands.
type Room struct {
	id       string
	game     Game
	rules    map[string]ActionRule
	settings Settings
	log      zerolog.Logger
	onClose  func(*Room)

	inbox chan command
	done  chan struct{}

	// Owned by the actor goroutine.
	machine    *Machine
	state      any
	roster     *Roster
	registry   *Registry
	limiter    Limiter
	seq        uint64
	epoch      uint64
	phaseTimer *time.Timer
	dead       []Conn
	createdAt  time.Time
	lastActive time.Time
	emptySince time.Time
	closed     bool
	saves      chan []byte
	persisted  chan struct{}

	statusMu sync.RWMutex
	status   Status
}

func newRoom(id string, game Game, settings Settings, onClose func(*Room)) (*Room, error) {
	machine, err := NewMachine(game.Transitions())
	if err != nil {
		return nil, fmt.Errorf("game %s: %w", game.Kind(), err)
	}

	now := time.Now()
	r := &Room{
		id:         id,
		game:       game,
		rules:      game.Actions(),
		settings:   settings,
		log:        settings.Logger.With().Str("room", id).Str("game", game.Kind()).Logger(),
		onClose:    onClose,
		inbox:      make(chan command, inboxSize),
		done:       make(chan struct{}),
		machine:    machine,
		state:      game.NewState(),
		roster:     NewRoster(),
		registry:   NewRegistry(),
		limiter:    settings.NewLimiter(),
		createdAt:  now,
		lastActive: now,
		emptySince: now,
	}

	if settings.Store != nil {
		r.saves = make(chan []byte, 1)
		r.persisted = make(chan struct{})
		go r.persistLoop(settings.Store)
	}

	r.armTimer(machine.Phase())
	r.publish()

	go r.run()

	return r, nil
}

func (r *Room) ID() string {
	return r.id
}

func (r *Room) GameKind() string {
	return r.game.Kind()
}

// Done is closed once the room has been torn down.
func (r *Room) Done() <-chan struct{} {
	return r.done
}

func (r *Room) Closed() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

func (r *Room) Status() Status {
	r.statusMu.RLock()
	defer r.statusMu.RUnlock()
	return r.status
}

type command interface{ isCommand() }

type outcome struct {
	result Result
	err    error
}

type openCmd struct{ conn Conn }

type inboundCmd struct {
	conn  Conn
	msg   Inbound
	reply chan outcome
}

type disconnectCmd struct{ conn Conn }

type submitCmd struct {
	participantID string
	action        Action
	reply         chan outcome
}

type postCmd struct {
	action Action
	reply  chan outcome
}

type transitionCmd struct {
	participantID string
	name          string
	reply         chan outcome
}

type timeoutCmd struct{ epoch uint64 }

type expireCmd struct {
	participantID string
	gen           uint64
}

type retireCmd struct {
	emptyCutoff time.Time
	idleCutoff  time.Time
	reply       chan bool
}

type viewCmd struct{ reply chan View }

type announceCmd struct {
	role  Role
	text  string
	reply chan uint64
}

type closeCmd struct{ reason string }

func (openCmd) isCommand()       {}
func (inboundCmd) isCommand()    {}
func (disconnectCmd) isCommand() {}
func (submitCmd) isCommand()     {}
func (postCmd) isCommand()       {}
func (transitionCmd) isCommand() {}
func (timeoutCmd) isCommand()    {}
func (expireCmd) isCommand()     {}
func (retireCmd) isCommand()     {}
func (viewCmd) isCommand()       {}
func (announceCmd) isCommand()   {}
func (closeCmd) isCommand()      {}

func (r *Room) send(ctx context.Context, cmd command) error {
	select {
	case r.inbox <- cmd:
		return nil
	case <-r.done:
		return ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// enqueue is used by timers, which have no caller to report to.
func (r *Room) enqueue(cmd command) {
	_ = r.send(context.Background(), cmd)
}

func await[T any](ctx context.Context, r *Room, reply <-chan T) (T, error) {
	var zero T

	select {
	case v := <-reply:
		return v, nil
	case <-r.done:
		select {
		case v := <-reply:
			return v, nil
		default:
			return zero, ErrRoomClosed
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (r *Room) roundTrip(ctx context.Context, cmd command, reply chan outcome) (Result, error) {
	if err := r.send(ctx, cmd); err != nil {
		return Result{}, err
	}
	out, err := await(ctx, r, reply)
	if err != nil {
		return Result{}, err
	}
	return out.result, out.err
}

// Open registers a transport connection that has not joined yet, so that it
// keeps the room alive and receives the teardown notice.
func (r *Room) Open(ctx context.Context, c Conn) error {
	return r.send(ctx, openCmd{conn: c})
}

// Handle runs one decoded client message through the room and returns once it
// has been applied or rejected. Rejections are also sent back on c.
func (r *Room) Handle(ctx context.Context, c Conn, msg Inbound) (Result, error) {
	reply := make(chan outcome, 1)
	return r.roundTrip(ctx, inboundCmd{conn: c, msg: msg, reply: reply}, reply)
}

// Disconnect reports that the transport behind c is gone.
func (r *Room) Disconnect(c Conn) {
	r.enqueue(disconnectCmd{conn: c})
}

// Submit applies a game action on behalf of a participant.
func (r *Room) Submit(ctx context.Context, participantID string, act Action) (Result, error) {
	reply := make(chan outcome, 1)
	return r.roundTrip(ctx, submitCmd{participantID: participantID, action: act, reply: reply}, reply)
}

// Post applies an action on behalf of the server. Work that must wait on a
// slow collaborator runs outside the room and re-enters through Post.
func (r *Room) Post(ctx context.Context, act Action) (Result, error) {
	reply := make(chan outcome, 1)
	return r.roundTrip(ctx, postCmd{action: act, reply: reply}, reply)
}

// RequestTransition asks for a phase change on behalf of a participant.
func (r *Room) RequestTransition(ctx context.Context, participantID, name string) (Result, error) {
	reply := make(chan outcome, 1)
	return r.roundTrip(ctx, transitionCmd{participantID: participantID, name: name, reply: reply}, reply)
}

func (r *Room) View(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := r.send(ctx, viewCmd{reply: reply}); err != nil {
		return View{}, err
	}
	return await(ctx, r, reply)
}

// Announce sends a notice to every connection of role, or to everyone when
// role is empty, and returns the sequence number it took.
func (r *Room) Announce(ctx context.Context, role Role, text string) (uint64, error) {
	reply := make(chan uint64, 1)
	if err := r.send(ctx, announceCmd{role: role, text: text, reply: reply}); err != nil {
		return 0, err
	}
	return await(ctx, r, reply)
}

// retire tears the room down if it has been empty since emptyCutoff or idle
// since idleCutoff. The decision is taken inside the actor, so a connection
// that arrived first always wins.
func (r *Room) retire(ctx context.Context, emptyCutoff, idleCutoff time.Time) (bool, error) {
	reply := make(chan bool, 1)
	if err := r.send(ctx, retireCmd{emptyCutoff: emptyCutoff, idleCutoff: idleCutoff, reply: reply}); err != nil {
		return false, err
	}
	return await(ctx, r, reply)
}

// Close tears the room down and waits for it to finish.
func (r *Room) Close(reason string) {
	if err := r.send(context.Background(), closeCmd{reason: reason}); err != nil {
		return
	}
	<-r.done
}

func (r *Room) run() {
	for cmd := range r.inbox {
		r.dispatch(cmd)
		if !r.closed {
			r.pruneDead()
		}
		r.publish()
		if r.closed {
			return
		}
	}
}

func (r *Room) dispatch(cmd command) {
	defer func() {
		if p := recover(); p != nil {
			r.fail(fmt.Errorf("%w: panic: %v", ErrInvariant, p))
		}
	}()

	switch c := cmd.(type) {
	case openCmd:
		r.registry.Open(c.conn)

	case inboundCmd:
		res, err := r.handleInbound(c.conn, c.msg)
		if err != nil {
			r.rejectTo(c.conn, inboundAction(c.msg), err)
		}
		c.reply <- outcome{result: res, err: err}

	case disconnectCmd:
		r.detach(c.conn)

	case submitCmd:
		res, err := r.submit(c.participantID, c.action)
		c.reply <- outcome{result: res, err: err}

	case postCmd:
		res, err := r.post(c.action)
		c.reply <- outcome{result: res, err: err}

	case transitionCmd:
		res, err := r.requestTransition(c.participantID, c.name)
		c.reply <- outcome{result: res, err: err}

	case timeoutCmd:
		r.timeout(c.epoch)

	case expireCmd:
		r.expire(c.participantID, c.gen)

	case retireCmd:
		c.reply <- r.retireIfIdle(c.emptyCutoff, c.idleCutoff)

	case viewCmd:
		c.reply <- r.view()

	case announceCmd:
		c.reply <- r.announce(c.role, c.text)

	case closeCmd:
		r.teardown(c.reason)
	}
}

func (r *Room) touch() {
	r.lastActive = time.Now()
}

func (r *Room) publish() {
	if r.registry.Len() == 0 {
		if r.emptySince.IsZero() {
			r.emptySince = time.Now()
		}
	} else {
		r.emptySince = time.Time{}
	}

	st := Status{
		RoomID:       r.id,
		GameKind:     r.game.Kind(),
		Phase:        r.machine.Phase(),
		Participants: r.roster.ConnectedCount(),
		Members:      r.roster.Len(),
		Open:         r.registry.Len(),
		EmptySince:   r.emptySince,
		LastActive:   r.lastActive,
		Closed:       r.closed,
	}

	r.statusMu.Lock()
	r.status = st
	r.statusMu.Unlock()
}

func (r *Room) view() View {
	data, err := json.Marshal(r.state)
	if err != nil {
		r.log.Warn().Err(err).Msg("encoding game state")
	}
	return View{
		RoomID:   r.id,
		Phase:    r.machine.Phase(),
		HostID:   r.roster.CurrentHost(),
		Members:  r.roster.Members(),
		Seq:      r.seq,
		GameData: data,
	}
}

func (r *Room) retireIfIdle(emptyCutoff, idleCutoff time.Time) bool {
	if r.closed {
		return false
	}
	if r.registry.Len() == 0 && !r.emptySince.IsZero() && r.emptySince.Before(emptyCutoff) {
		r.teardown("empty")
		return true
	}
	if !idleCutoff.IsZero() && r.lastActive.Before(idleCutoff) {
		r.teardown("idle")
		return true
	}
	return false
}

// fail handles an internal invariant violation: there is no recovery
// procedure, so the room is reaped.
func (r *Room) fail(err error) {
	r.log.Error().Err(err).Str("phase", string(r.machine.Phase())).Msg("room invariant violated, tearing down")
	r.teardown("internal-error")
}

func (r *Room) teardown(reason string) {
	if r.closed {
		return
	}
	r.closed = true

	r.stopPhaseTimer()
	r.roster.each(func(p *Participant) { p.cancelRemoval() })

	for _, c := range r.registry.all() {
		_ = c.Send(Outbound{Kind: KindRoomReaped, Seq: r.seq, Payload: RoomReaped{RoomID: r.id, Reason: reason}})
		_ = c.Close()
	}
	r.registry.reset()
	r.dead = nil

	// The id may be reused as soon as done is closed, so the final Delete
	// has to land before then.
	if r.saves != nil {
		close(r.saves)
		<-r.persisted
	}

	r.log.Info().Str("reason", reason).Msg("room torn down")

	r.publish()
	close(r.done)

	if r.onClose != nil {
		r.onClose(r)
	}
}

func (r *Room) stopPhaseTimer() {
	if r.phaseTimer != nil {
		r.phaseTimer.Stop()
		r.phaseTimer = nil
	}
}

// armTimer schedules the fallback for phases that end on their own, so that
// one unresponsive participant cannot stall the room.
func (r *Room) armTimer(phase Phase) {
	t, ok := r.machine.Auto(phase)
	if !ok || t.Timeout <= 0 {
		return
	}
	epoch := r.epoch
	r.phaseTimer = time.AfterFunc(t.Timeout, func() {
		r.enqueue(timeoutCmd{epoch: epoch})
	})
}
