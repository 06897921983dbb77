// Package server broadcasts user online/offline notifications and presence
// snapshots to connected sessions via the Presence type.
package server

import (
	"encoding/json"
	"log/slog"
)

// Presence emits online/offline notifications and answers snapshot queries on
// top of the connection registry. Broadcasts are delivered independently to
// each connected session; clients tolerate any interleaving relative to
// message delivery.
type Presence struct {
	registry *Registry
	log      *slog.Logger
}

// NewPresence creates a presence broadcaster over the given registry.
func NewPresence(registry *Registry, log *slog.Logger) *Presence {
	return &Presence{registry: registry, log: log}
}

// Online announces a newly connected session: UserOnline goes to every other
// connected session, and the full snapshot goes to the newcomer only. It
// returns the sessions whose send buffers rejected the broadcast so the hub
// can drop them.
func (p *Presence) Online(joined session) []session {
	frame := mustMarshal(Frame{Type: FrameUserOnline, UserID: joined.userID()})
	failed := p.broadcast(frame, joined)

	p.SendSnapshot(joined)
	p.log.Info("user online", "user_id", joined.userID(), "online", p.registry.Len())
	return failed
}

// Offline announces a disconnect to every remaining session. The departed
// session must already be unregistered. Returns sessions that rejected the
// notification.
func (p *Presence) Offline(left session) []session {
	frame := mustMarshal(Frame{Type: FrameUserOffline, UserID: left.userID()})
	failed := p.broadcast(frame, nil)

	p.log.Info("user offline", "user_id", left.userID(), "online", p.registry.Len())
	return failed
}

// SendSnapshot delivers the current set of connected identities to the caller
// only. No broadcast, no side effects on the registry.
func (p *Presence) SendSnapshot(caller session) {
	frame := mustMarshal(Frame{Type: FrameOnlineUsers, Users: p.registry.Snapshot()})
	caller.trySend(frame)
}

// broadcast delivers a frame to every registered session except the excluded
// one and collects the sessions that could not accept it.
func (p *Presence) broadcast(frame []byte, except session) []session {
	var failed []session
	for _, s := range p.registry.connections() {
		if except != nil && s.handle() == except.handle() {
			continue
		}
		if !s.trySend(frame) {
			failed = append(failed, s)
		}
	}
	return failed
}

// mustMarshal encodes a server-built frame. Frames constructed here contain
// no user-controlled types, so encoding cannot fail at runtime.
func mustMarshal(frame Frame) []byte {
	payload, err := json.Marshal(frame)
	if err != nil {
		panic(err)
	}
	return payload
}
