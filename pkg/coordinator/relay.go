package coordinator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/geosync/geosync/pkg/api"
	"github.com/geosync/geosync/pkg/metrics"
	"github.com/geosync/geosync/pkg/network"
	"github.com/geosync/geosync/pkg/session"
)

// gate is a per-connection time gate: a publish inside the minimum
// interval is accepted but suppressed. The client throttles too, but
// it is untrusted; this is the actual backpressure mechanism.
type gate struct {
	mu       sync.Mutex
	last     map[network.Uid]time.Time
	interval time.Duration
	now      func() time.Time
}

func newGate(interval time.Duration) *gate {
	return &gate{last: make(map[network.Uid]time.Time), interval: interval, now: time.Now}
}

func (g *gate) pass(id network.Uid) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if t, ok := g.last[id]; ok && now.Sub(t) < g.interval {
		return false
	}
	g.last[id] = now
	return true
}

func (g *gate) drop(id network.Uid) {
	g.mu.Lock()
	delete(g.last, id)
	g.mu.Unlock()
}

func (h *Hub) handleMapUpdate(u *User, in api.In) {
	m, ok := h.registry.Lookup(u.Id())
	if !ok {
		_ = u.Route(in, api.MapUpdateReply{
			Success: false, Code: api.ErrCodeNotInSession, Error: "Not in a session",
		})
		return
	}
	if m.Role != session.RoleController {
		_ = u.Route(in, api.MapUpdateReply{
			Success: false, Code: api.ErrCodeForbidden, Error: "Only the Controller can broadcast map updates",
		})
		return
	}

	// Inside the gate the sender's previous accepted state is already
	// current enough: ack as throttled, relay and persist nothing.
	if !h.gate.pass(u.Id()) {
		metrics.StatesThrottled.Inc()
		_ = u.Route(in, api.MapUpdateReply{Success: true, Throttled: true})
		return
	}

	state := api.Unwrap[session.MapState](in.Payload)
	if state == nil || !state.Sanitize() {
		metrics.StatesRejected.Inc()
		_ = u.Route(in, api.MapUpdateReply{
			Success: false, Code: api.ErrCodeInvalidState, Error: "Invalid map state payload",
		})
		return
	}

	upd, err := h.update(m.SessionId, func(s *session.Session) error {
		// server-stamped, never below the previous accepted state
		ts := time.Now().UnixMilli()
		if s.LastState != nil && s.LastState.Timestamp >= ts {
			ts = s.LastState.Timestamp
		}
		state.Timestamp = ts
		s.LastState = state
		return nil
	})
	if err != nil {
		u.log.Error().Err(err).Msg("state persist failed")
		_ = u.Route(in, api.MapUpdateReply{
			Success: false, Code: failureCode(err), Error: "Server error",
		})
		return
	}

	// Fan out to the rest of the session's group: by construction at
	// most one other connection. A peer that has just gone is a no-op,
	// never an error for the publisher.
	if peer := *upd.Slot(m.Role.Peer()); peer != nil {
		if pc, ok := h.findUser(peer.ConnectionId); ok {
			_ = pc.Notify(api.MapSync, state)
		}
	}
	metrics.StatesRelayed.Inc()
	_ = u.Route(in, api.MapUpdateReply{Success: true})
}

func (h *Hub) handleMapRequestSync(u *User, in api.In) {
	m, ok := h.registry.Lookup(u.Id())
	if !ok {
		_ = u.Route(in, api.MapSyncReply{
			Success: false, Code: api.ErrCodeNotInSession, Error: "Not in a session",
		})
		return
	}
	sess, err := h.store.Get(context.Background(), m.SessionId)
	if err != nil {
		code, msg := api.ErrCodeServer, "Server error"
		if errors.Is(err, session.ErrNotFound) {
			code, msg = api.ErrCodeNotFound, "Session not found"
		} else {
			metrics.StoreErrors.WithLabelValues("get").Inc()
		}
		_ = u.Route(in, api.MapSyncReply{Success: false, Code: code, Error: msg})
		return
	}
	if sess.LastState == nil {
		_ = u.Route(in, api.MapSyncReply{
			Success: false, Code: api.ErrCodeNotAvailable, Error: "No map state available yet",
		})
		return
	}
	// delivered to the requester only, not broadcast
	_ = u.Notify(api.MapSync, sess.LastState)
	_ = u.Route(in, api.MapSyncReply{Success: true, MapState: sess.LastState})
}
