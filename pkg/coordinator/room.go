package coordinator

import (
	"context"
	"errors"

	"github.com/geosync/geosync/pkg/api"
	"github.com/geosync/geosync/pkg/metrics"
	"github.com/geosync/geosync/pkg/registry"
	"github.com/geosync/geosync/pkg/session"
)

func (h *Hub) handleSessionCreate(u *User, in api.In) {
	sess, err := h.createSession()
	if err != nil {
		u.log.Error().Err(err).Msg("session create failed")
		_ = u.Route(in, api.SessionCreateReply{
			Success: false, Code: failureCode(err), Error: "Failed to create session",
		})
		return
	}
	u.log.Info().Msgf("Session created: %v", sess.Id)
	metrics.SessionsCreated.Inc()
	_ = u.Route(in, api.SessionCreateReply{Success: true, SessionId: sess.Id})
}

// createSession stores a fresh empty session under a newly generated
// id, re-rolling on the unlikely id collision.
func (h *Hub) createSession() (*session.Session, error) {
	ctx := context.Background()
	for i := 0; i < idMaxRolls; i++ {
		sess := &session.Session{Id: session.NewId(h.conf.Session.IdLen)}
		err := h.store.Create(ctx, sess)
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, session.ErrExists) {
			metrics.StoreErrors.WithLabelValues("create").Inc()
			return nil, err
		}
	}
	return nil, errStoreUnavailable
}

func (h *Hub) handleSessionJoin(u *User, in api.In) {
	rq := api.Unwrap[api.SessionJoinRequest](in.Payload)
	if rq == nil || rq.SessionId == "" {
		_ = u.Route(in, api.SessionJoinReply{
			Success: false, Code: api.ErrCodeNotFound, Error: "Session ID is required",
		})
		return
	}

	// A join while already bound acts as an implicit leave first, so a
	// connection can never hold slots in two sessions at once.
	if _, ok := h.registry.Lookup(u.Id()); ok {
		h.release(u, "rejoin")
	}

	userId := session.NewUserId()
	var assigned session.Role
	upd, err := h.update(rq.SessionId, func(s *session.Session) error {
		role, ok := assignRole(s, rq.PreferredRole)
		if !ok {
			return errSessionFull
		}
		assigned = role
		*s.Slot(role) = &session.Slot{ConnectionId: u.Id().String(), UserId: userId}
		return nil
	})
	if err != nil {
		code, msg := joinFailure(err)
		_ = u.Route(in, api.SessionJoinReply{Success: false, Code: code, Error: msg})
		return
	}

	h.registry.Bind(u.Id(), registry.Mapping{SessionId: rq.SessionId, Role: assigned, UserId: userId})
	metrics.Joins.WithLabelValues(string(assigned)).Inc()
	u.log.Info().Msgf("%v joined session %v", assigned, rq.SessionId)

	peer := *upd.Slot(assigned.Peer())
	if peer != nil {
		if pc, ok := h.findUser(peer.ConnectionId); ok {
			_ = pc.Notify(api.PeerJoined, api.PeerJoinedPush{Role: assigned, UserId: userId})
		}
	}

	_ = u.Route(in, api.SessionJoinReply{
		Success:       true,
		Role:          assigned,
		UserId:        userId,
		SessionId:     rq.SessionId,
		LastMapState:  upd.LastState,
		PeerConnected: peer != nil,
	})
}

// assignRole applies the ordered role policy: the preferred role when
// it names an empty slot, else controller, else observer, else full.
// An unspecified preference therefore always prefers controller, which
// makes the first joiner the one in charge.
func assignRole(s *session.Session, preferred session.Role) (session.Role, bool) {
	if preferred.Valid() && !s.Occupied(preferred) {
		return preferred, true
	}
	if !s.Occupied(session.RoleController) {
		return session.RoleController, true
	}
	if !s.Occupied(session.RoleObserver) {
		return session.RoleObserver, true
	}
	return "", false
}

func joinFailure(err error) (code, msg string) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return api.ErrCodeNotFound, "Session not found. Check the ID and try again."
	case errors.Is(err, errSessionFull):
		return api.ErrCodeSessionFull, "Session is full. Both roles are occupied."
	default:
		return failureCode(err), "Failed to join session"
	}
}

// failureCode distinguishes an exhausted or degraded store from any
// other server-side failure.
func failureCode(err error) string {
	if errors.Is(err, errStoreUnavailable) {
		return api.ErrCodeStoreUnavailable
	}
	return api.ErrCodeServer
}

func (h *Hub) handleSessionLeave(u *User, in api.In) {
	h.release(u, "leave")
	_ = u.Route(in, api.SessionLeaveReply{Success: true})
}

// release clears the caller's slot, notifies the remaining peer and
// tears the session down when it became empty. Shared by explicit
// leave, rejoin and transport disconnect; idempotent because the
// registry yields a mapping at most once. Failures are logged and
// swallowed: the connection is (or may be) already gone, there is
// nobody to report to.
func (h *Hub) release(u *User, reason string) {
	m, ok := h.registry.Unbind(u.Id())
	if !ok {
		return
	}
	h.gate.drop(u.Id())

	var last *session.MapState
	upd, err := h.update(m.SessionId, func(s *session.Session) error {
		last = s.LastState
		*s.Slot(m.Role) = nil
		return nil
	})
	if err != nil {
		u.log.Warn().Err(err).Msgf("cleanup of session %v failed (%v)", m.SessionId, reason)
		return
	}
	u.log.Info().Msgf("%v left session %v (%v)", m.Role, m.SessionId, reason)

	if upd.Empty() {
		if err := h.store.Delete(context.Background(), m.SessionId); err != nil {
			u.log.Warn().Err(err).Msgf("delete of empty session %v failed", m.SessionId)
			return
		}
		metrics.SessionsDeleted.Inc()
		u.log.Info().Msgf("Session %v cleaned up (empty)", m.SessionId)
		return
	}

	if peer := *upd.Slot(m.Role.Peer()); peer != nil {
		if pc, ok := h.findUser(peer.ConnectionId); ok {
			_ = pc.Notify(api.PeerDisconnected, api.PeerDisconnectedPush{
				Role:         m.Role,
				LastMapState: last,
				Message:      vacatedMessage(m.Role),
			})
		}
	}
}

func vacatedMessage(r session.Role) string {
	if r == session.RoleController {
		return "Controller disconnected. Map is frozen at last known position."
	}
	return "Observer disconnected."
}
