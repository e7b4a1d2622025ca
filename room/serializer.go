/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package room

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

const (
	maxNameRunes  = 24
	maxGlyphRunes = 4

	// maxAutoChain bounds back-to-back automatic transitions after one action.
	maxAutoChain = 8
)

func inboundAction(msg Inbound) string {
	switch m := msg.(type) {
	case SubmitAction:
		return m.Action
	case RequestPhaseTransition:
		return m.Transition
	default:
		return InboundKind(msg)
	}
}

func (r *Room) handleInbound(c Conn, msg Inbound) (Result, error) {
	if m, ok := msg.(JoinRoom); ok {
		return r.join(c, m)
	}

	pid, ok := r.registry.Lookup(c.ID())
	if !ok {
		return Result{}, Invalid(CodeNotJoined, "join the room first")
	}

	switch m := msg.(type) {
	case LeaveRoom:
		return r.leave(pid)
	case SetDisplayName:
		return r.rename(pid, m.DisplayName)
	case SetDisplayGlyph:
		return r.setGlyph(pid, m.DisplayGlyph)
	case RequestPhaseTransition:
		return r.requestTransition(pid, m.Transition)
	case SubmitAction:
		return r.submit(pid, Action{Kind: m.Action, Data: m.Data})
	case Kick:
		return r.kick(pid, m.ParticipantID)
	case CloseRoom:
		return r.closeByHost(pid)
	}

	return Result{}, Invalid(CodeBadMessage, "unsupported message %q", InboundKind(msg))
}

func (r *Room) rejectTo(c Conn, action string, err error) {
	if r.closed {
		return
	}

	rej, ok := AsRejection(err)
	if !ok {
		rej = Reject(KindInternal, CodeRejected, "%v", err)
	}

	phase := rej.Phase
	if phase == "" {
		phase = r.machine.Phase()
	}

	r.log.Debug().
		Str("conn", c.ID()).
		Str("action", action).
		Str("code", rej.Code).
		Str("phase", string(phase)).
		Msg("request rejected")

	r.deliver(c, Outbound{Kind: KindActionRejected, Seq: r.seq, Payload: ActionRejected{
		Action: action,
		Kind:   rej.Kind,
		Code:   rej.Code,
		Reason: rej.Reason,
		Phase:  phase,
	}})
}

// actor looks up a participant that is allowed to act at all.
func (r *Room) actor(pid string) (*Participant, error) {
	p, ok := r.roster.Get(pid)
	if !ok {
		return nil, Invalid(CodeUnknownParticipant, "unknown participant")
	}
	if !p.Connected() {
		return nil, Invalid(CodeDisconnected, "participant is disconnected")
	}
	return p, nil
}

func (r *Room) admit(pid string) error {
	if !r.limiter.Allow(pid) {
		return Reject(KindResource, CodeRateLimited, "slow down")
	}
	return nil
}

func cleanName(s string) (string, error) {
	s = strings.TrimSpace(s)
	n := utf8.RuneCountInString(s)
	if n == 0 || n > maxNameRunes {
		return "", Invalid(CodeInvalidName, "display names must be 1-%d characters", maxNameRunes)
	}
	for _, c := range s {
		if unicode.IsControl(c) {
			return "", Invalid(CodeInvalidName, "display names may not contain control characters")
		}
	}
	return s, nil
}

func cleanGlyph(s string) (string, error) {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) > maxGlyphRunes {
		return "", Invalid(CodeBadMessage, "glyphs may be at most %d characters", maxGlyphRunes)
	}
	for _, c := range s {
		if unicode.IsControl(c) {
			return "", Invalid(CodeBadMessage, "glyphs may not contain control characters")
		}
	}
	return s, nil
}

func (r *Room) defaultName() string {
	for n := r.roster.Len() + 1; ; n++ {
		name := fmt.Sprintf("Guest %d", n)
		if !r.roster.NameTaken(name, "") {
			return name
		}
	}
}

func (r *Room) join(c Conn, m JoinRoom) (Result, error) {
	if _, bound := r.registry.Lookup(c.ID()); bound {
		return Result{}, Invalid(CodeAlreadyJoined, "this connection has already joined")
	}

	glyph, err := cleanGlyph(m.DisplayGlyph)
	if err != nil {
		return Result{}, err
	}

	if p, ok := r.roster.ByToken(m.Token); ok {
		return r.reattach(c, p, m.DisplayName, glyph)
	}

	role := RoleSpectator
	limit := r.settings.MaxSpectators
	if r.machine.Phase() == PhaseLobby {
		role = RolePlayer
		limit = r.settings.MaxPlayers
	}
	if r.roster.CountRole(role) >= limit {
		return Result{}, Reject(KindResource, CodeRoomFull, "no room for another %s", role)
	}

	name := r.defaultName()
	if m.DisplayName != "" {
		if name, err = cleanName(m.DisplayName); err != nil {
			return Result{}, err
		}
		if r.roster.NameTaken(name, "") {
			return Result{}, Invalid(CodeNameTaken, "%q is already taken", name)
		}
	}

	p := &Participant{
		ID:           newParticipantID(),
		Token:        newToken(),
		Role:         role,
		DisplayName:  name,
		DisplayGlyph: glyph,
		State:        Connected,
		JoinedAt:     time.Now(),
	}
	r.roster.Add(p)
	r.registry.Attach(c, p.ID)
	r.touch()

	r.log.Info().
		Str("participant", p.ID).
		Str("role", string(role)).
		Bool("host", r.roster.IsHost(p.ID)).
		Msg("participant joined")

	r.welcome(p, false)
	r.rosterChanged()

	return Result{Seq: r.seq, Participant: p.ID}, nil
}

// reattach binds a returning client to the participant its token names. The
// host privilege is not handed back if it moved while they were away.
func (r *Room) reattach(c Conn, p *Participant, name, glyph string) (Result, error) {
	if name != "" {
		clean, err := cleanName(name)
		if err != nil {
			return Result{}, err
		}
		if r.roster.NameTaken(clean, p.ID) {
			return Result{}, Invalid(CodeNameTaken, "%q is already taken", clean)
		}
		p.DisplayName = clean
	}
	if glyph != "" {
		p.DisplayGlyph = glyph
	}

	if replaced := r.registry.Attach(c, p.ID); replaced != nil {
		_ = replaced.Send(Outbound{Kind: KindKicked, Seq: r.seq, Payload: Kicked{Reason: "replaced by a newer connection"}})
		_ = replaced.Close()
	}
	r.roster.MarkConnected(p.ID)
	r.touch()

	r.log.Info().Str("participant", p.ID).Msg("participant reattached")

	r.welcome(p, true)
	r.rosterChanged()

	return Result{Seq: r.seq, Participant: p.ID}, nil
}

// welcome gives a joining client its identity and the current state.
func (r *Room) welcome(p *Participant, reattached bool) {
	phase := r.machine.Phase()

	r.sendTo(p.ID, KindWelcome, Welcome{
		RoomID:        r.id,
		GameKind:      r.game.Kind(),
		ParticipantID: p.ID,
		Token:         p.Token,
		Role:          p.Role,
		Phase:         phase,
		Reattached:    reattached,
	})
	r.sendTo(p.ID, KindPhaseChanged, PhaseChanged{
		Phase:    phase,
		Previous: phase,
		State:    r.game.Snapshot(r.state, phase, r.roster.member(p)),
	})
}

// rosterChanged fans the roster out and re-evaluates everything that depends
// on who is present.
func (r *Room) rosterChanged() {
	members := r.roster.Members()
	host := r.roster.CurrentHost()

	r.broadcastAll(KindRosterSnapshot, func(v Member) any {
		return RosterSnapshot{
			Participants: members,
			HostID:       host,
			You:          &Self{ID: v.ID, Role: v.Role},
		}
	})

	if o, ok := r.game.(RosterObserver); ok {
		o.RosterChanged(r.state, r.machine.Phase(), members)
	}

	r.persist()
	r.checkCompletion()
}

// detach handles a transport that went away. The participant stays in the
// roster for the grace window.
func (r *Room) detach(c Conn) {
	pid, bound := r.registry.Detach(c.ID())
	if !bound {
		return
	}

	p, ok := r.roster.Get(pid)
	if !ok {
		return
	}

	wasHost := r.roster.IsHost(pid)
	r.roster.MarkDisconnected(pid)

	p.cancelRemoval()
	gen := p.removalGen
	p.removal = time.AfterFunc(r.settings.Grace, func() {
		r.enqueue(expireCmd{participantID: pid, gen: gen})
	})

	r.log.Info().
		Str("participant", pid).
		Bool("was_host", wasHost).
		Str("host", r.roster.CurrentHost()).
		Msg("participant disconnected")

	r.rosterChanged()
}

func (r *Room) expire(pid string, gen uint64) {
	p, ok := r.roster.Get(pid)
	if !ok || p.Connected() || p.removalGen != gen {
		return
	}

	r.roster.Remove(pid)
	r.limiter.Forget(pid)

	r.log.Info().Str("participant", pid).Msg("participant removed after grace period")

	r.rosterChanged()
}

func (r *Room) leave(pid string) (Result, error) {
	if c, ok := r.registry.Unbind(pid); ok {
		_ = c.Close()
	}
	r.roster.Remove(pid)
	r.limiter.Forget(pid)
	r.touch()

	r.log.Info().Str("participant", pid).Msg("participant left")

	r.rosterChanged()

	return Result{Seq: r.seq, Participant: pid}, nil
}

func (r *Room) rename(pid, name string) (Result, error) {
	if err := r.admit(pid); err != nil {
		return Result{}, err
	}
	p, err := r.actor(pid)
	if err != nil {
		return Result{}, err
	}
	if r.machine.Phase() == PhaseFinished {
		return Result{}, WrongPhase(CodeRoomFinished, PhaseFinished, "the game is over")
	}

	clean, err := cleanName(name)
	if err != nil {
		return Result{}, err
	}
	if r.roster.NameTaken(clean, pid) {
		return Result{}, Invalid(CodeNameTaken, "%q is already taken", clean)
	}

	p.DisplayName = clean
	r.touch()
	r.rosterChanged()

	return Result{Seq: r.seq, Participant: pid}, nil
}

func (r *Room) setGlyph(pid, glyph string) (Result, error) {
	if err := r.admit(pid); err != nil {
		return Result{}, err
	}
	p, err := r.actor(pid)
	if err != nil {
		return Result{}, err
	}
	if r.machine.Phase() == PhaseFinished {
		return Result{}, WrongPhase(CodeRoomFinished, PhaseFinished, "the game is over")
	}

	clean, err := cleanGlyph(glyph)
	if err != nil {
		return Result{}, err
	}

	p.DisplayGlyph = clean
	r.touch()
	r.rosterChanged()

	return Result{Seq: r.seq, Participant: pid}, nil
}

func (r *Room) kick(by, target string) (Result, error) {
	if _, err := r.actor(by); err != nil {
		return Result{}, err
	}
	if !r.roster.IsHost(by) {
		return Result{}, Forbidden(CodeNotHost, "only the host may remove participants")
	}
	if target == by {
		return Result{}, Invalid(CodeInvalidTarget, "the host cannot remove themselves")
	}
	if _, ok := r.roster.Get(target); !ok {
		return Result{}, Invalid(CodeUnknownParticipant, "unknown participant")
	}

	if c, ok := r.registry.Unbind(target); ok {
		_ = c.Send(Outbound{Kind: KindKicked, Seq: r.seq, Payload: Kicked{Reason: "removed by the host"}})
		_ = c.Close()
	}
	r.roster.Remove(target)
	r.limiter.Forget(target)
	r.touch()

	r.log.Info().Str("participant", target).Str("by", by).Msg("participant kicked")

	r.rosterChanged()

	return Result{Seq: r.seq, Participant: target}, nil
}

func (r *Room) closeByHost(pid string) (Result, error) {
	if _, err := r.actor(pid); err != nil {
		return Result{}, err
	}
	if !r.roster.IsHost(pid) {
		return Result{}, Forbidden(CodeNotHost, "only the host may close the room")
	}

	seq := r.seq
	r.teardown("closed-by-host")

	return Result{Seq: seq, Participant: pid}, nil
}

// submit validates and applies one game action. The checks run in a fixed
// order and the first failure wins; nothing is mutated before Apply succeeds.
func (r *Room) submit(pid string, act Action) (Result, error) {
	if err := r.admit(pid); err != nil {
		return Result{}, err
	}

	p, err := r.actor(pid)
	if err != nil {
		return Result{}, err
	}

	rule, ok := r.rules[act.Kind]
	if !ok {
		return Result{}, Invalid(CodeUnknownAction, "unknown action %q", act.Kind)
	}
	if rule.System {
		return Result{}, Forbidden(CodeWrongRole, "%q is reserved for the server", act.Kind)
	}
	if rule.Role != "" && p.Role != rule.Role {
		return Result{}, Forbidden(CodeWrongRole, "%q requires the %s role", act.Kind, rule.Role)
	}
	if rule.HostOnly && !r.roster.IsHost(pid) {
		return Result{}, Forbidden(CodeNotHost, "%q is for the host only", act.Kind)
	}

	phase := r.machine.Phase()
	if phase == PhaseFinished {
		return Result{}, WrongPhase(CodeRoomFinished, phase, "the game is over")
	}
	if !rule.allows(phase) {
		return Result{}, WrongPhase(CodeInvalidPhase, phase, "%q is not allowed now", act.Kind)
	}

	return r.apply(act, r.roster.member(p))
}

func (r *Room) post(act Action) (Result, error) {
	rule, ok := r.rules[act.Kind]
	if !ok {
		return Result{}, Invalid(CodeUnknownAction, "unknown action %q", act.Kind)
	}

	phase := r.machine.Phase()
	if phase == PhaseFinished {
		return Result{}, WrongPhase(CodeRoomFinished, phase, "the game is over")
	}
	if !rule.allows(phase) {
		return Result{}, WrongPhase(CodeInvalidPhase, phase, "%q is not allowed now", act.Kind)
	}

	return r.apply(act, SystemMember)
}

func (r *Room) apply(act Action, by Member) (Result, error) {
	phase := r.machine.Phase()

	effect, err := r.game.Apply(r.state, phase, act, by)
	if err != nil {
		if errors.Is(err, ErrInvariant) {
			r.fail(err)
			return Result{}, Reject(KindInternal, "internal-error", "the room was closed after an internal error")
		}
		if rej, ok := AsRejection(err); ok {
			if rej.Kind == KindPhase && rej.Phase == "" {
				rej.Phase = phase
			}
			return Result{}, rej
		}
		return Result{}, Invalid(CodeRejected, "%v", err)
	}

	r.touch()

	seq := r.broadcastAll(KindActionApplied, func(v Member) any {
		return ActionApplied{
			By:     by.ID,
			Action: act.Kind,
			Effect: effect,
			State:  r.game.Snapshot(r.state, phase, v),
		}
	})

	r.persist()
	r.checkCompletion()

	return Result{Seq: seq, Participant: by.ID, Effect: effect}, nil
}

func (r *Room) requestTransition(pid, name string) (Result, error) {
	if err := r.admit(pid); err != nil {
		return Result{}, err
	}

	p, err := r.actor(pid)
	if err != nil {
		return Result{}, err
	}

	t, err := r.machine.Guard(r.machine.Phase(), name, Requester{
		Role:   p.Role,
		IsHost: r.roster.IsHost(pid),
	})
	if err != nil {
		return Result{}, err
	}

	if chk, ok := r.game.(TransitionChecker); ok {
		if err := chk.CheckTransition(r.state, t, r.roster.Members()); err != nil {
			if rej, ok := AsRejection(err); ok {
				return Result{}, rej
			}
			return Result{}, Invalid(CodeRejected, "%v", err)
		}
	}

	seq := r.enterPhase(t, pid)
	r.checkCompletion()

	return Result{Seq: seq, Participant: pid}, nil
}

// checkCompletion fires the automatic transition out of the current phase
// once the game reports everyone eligible has acted.
func (r *Room) checkCompletion() {
	for range maxAutoChain {
		if r.closed {
			return
		}
		phase := r.machine.Phase()
		auto, ok := r.machine.Auto(phase)
		if !ok || !r.game.PhaseComplete(r.state, phase, r.roster.Eligible()) {
			return
		}
		t, err := r.machine.Guard(phase, auto.Name, Requester{System: true})
		if err != nil {
			r.log.Warn().Err(err).Str("transition", auto.Name).Msg("automatic transition refused")
			return
		}
		r.enterPhase(t, SystemMember.ID)
	}
}

func (r *Room) timeout(epoch uint64) {
	if r.closed || epoch != r.epoch {
		return
	}

	phase := r.machine.Phase()
	auto, ok := r.machine.Auto(phase)
	if !ok {
		return
	}
	t, err := r.machine.Guard(phase, auto.Name, Requester{System: true})
	if err != nil {
		r.log.Warn().Err(err).Str("transition", auto.Name).Msg("timed transition refused")
		return
	}

	r.log.Info().Str("phase", string(phase)).Str("transition", t.Name).Msg("phase timed out")

	r.enterPhase(t, SystemMember.ID)
	r.checkCompletion()
}

func (r *Room) enterPhase(t Transition, by string) uint64 {
	from := r.machine.Phase()

	r.machine.set(t.To)
	r.epoch++
	r.stopPhaseTimer()

	if e, ok := r.game.(PhaseEnterer); ok {
		e.EnterPhase(r.state, from, t.To, r.roster.Members())
	}

	r.armTimer(t.To)
	r.touch()

	r.log.Info().
		Str("from", string(from)).
		Str("to", string(t.To)).
		Str("transition", t.Name).
		Str("by", by).
		Msg("phase changed")

	seq := r.broadcastAll(KindPhaseChanged, func(v Member) any {
		return PhaseChanged{
			Phase:    t.To,
			Previous: from,
			State:    r.game.Snapshot(r.state, t.To, v),
		}
	})

	r.persist()

	return seq
}
