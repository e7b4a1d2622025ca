/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package room

// ViewFunc builds the payload one viewer receives. Snapshots are computed per
// viewer so games can hide data by role.
type ViewFunc func(viewer Member) any

// broadcastAll sends one message to every bound connection, in join order.
// Every broadcast takes the next sequence number.
func (r *Room) broadcastAll(kind string, view ViewFunc) uint64 {
	return r.fanout(kind, func(Member) bool { return true }, view)
}

// broadcastRole sends one message to the bound connections of a role.
func (r *Room) broadcastRole(role Role, kind string, view ViewFunc) uint64 {
	return r.fanout(kind, func(m Member) bool { return m.Role == role }, view)
}

func (r *Room) announce(role Role, text string) uint64 {
	notice := Notice{Role: role, Text: text}
	payload := func(Member) any { return notice }

	if role == "" {
		return r.broadcastAll(KindNotice, payload)
	}
	return r.broadcastRole(role, KindNotice, payload)
}

func (r *Room) fanout(kind string, match func(Member) bool, view ViewFunc) uint64 {
	r.seq++
	seq := r.seq

	for _, m := range r.roster.Members() {
		if !match(m) {
			continue
		}
		c, ok := r.registry.ConnFor(m.ID)
		if !ok {
			continue
		}
		r.deliver(c, Outbound{Kind: kind, Seq: seq, Payload: view(m)})
	}

	return seq
}

// sendTo delivers a message to one participant without advancing the sequence.
func (r *Room) sendTo(participantID, kind string, payload any) bool {
	c, ok := r.registry.ConnFor(participantID)
	if !ok {
		return false
	}
	return r.deliver(c, Outbound{Kind: kind, Seq: r.seq, Payload: payload})
}

// deliver never blocks. A failed send queues the connection for pruning,
// which happens only after the current fan-out is complete.
func (r *Room) deliver(c Conn, out Outbound) bool {
	if err := c.Send(out); err != nil {
		r.log.Debug().
			Err(err).
			Str("conn", c.ID()).
			Str("kind", out.Kind).
			Msg("send failed, pruning connection")
		r.dead = append(r.dead, c)
		return false
	}
	return true
}

// pruneDead detaches connections whose sends failed. Detaching broadcasts a
// roster change, which may fail further sends; the loop drains those too.
func (r *Room) pruneDead() {
	for len(r.dead) > 0 && !r.closed {
		c := r.dead[0]
		r.dead = r.dead[1:]

		_ = c.Close()
		r.detach(c)
	}
	r.dead = nil
}
