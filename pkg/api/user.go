package api

import "github.com/geosync/geosync/pkg/session"

// Request payloads.
type (
	SessionJoinRequest struct {
		SessionId     string       `json:"sessionId"`
		PreferredRole session.Role `json:"preferredRole,omitempty"`
	}
)

// Reply payloads. Every reply carries Success plus an optional
// machine code and human message on failure.
type (
	SessionCreateReply struct {
		Success   bool   `json:"success"`
		SessionId string `json:"sessionId,omitempty"`
		Code      string `json:"code,omitempty"`
		Error     string `json:"error,omitempty"`
	}
	SessionJoinReply struct {
		Success       bool              `json:"success"`
		Role          session.Role      `json:"role,omitempty"`
		UserId        string            `json:"userId,omitempty"`
		SessionId     string            `json:"sessionId,omitempty"`
		LastMapState  *session.MapState `json:"lastMapState,omitempty"`
		PeerConnected bool              `json:"peerConnected"`
		Code          string            `json:"code,omitempty"`
		Error         string            `json:"error,omitempty"`
	}
	SessionLeaveReply struct {
		Success bool `json:"success"`
	}
	MapUpdateReply struct {
		Success   bool   `json:"success"`
		Throttled bool   `json:"throttled,omitempty"`
		Code      string `json:"code,omitempty"`
		Error     string `json:"error,omitempty"`
	}
	MapSyncReply struct {
		Success  bool              `json:"success"`
		MapState *session.MapState `json:"mapState,omitempty"`
		Code     string            `json:"code,omitempty"`
		Error    string            `json:"error,omitempty"`
	}
)

// Push payloads (server to client, fire-and-forget).
type (
	PeerJoinedPush struct {
		Role   session.Role `json:"role"`
		UserId string       `json:"userId"`
	}
	PeerDisconnectedPush struct {
		Role         session.Role      `json:"role"`
		LastMapState *session.MapState `json:"lastMapState,omitempty"`
		Message      string            `json:"message"`
	}
)

// Status surface payloads (REST).
type (
	HealthStatus struct {
		Status    string `json:"status"`
		Store     string `json:"store"`
		Timestamp string `json:"timestamp"`
	}
	SessionStatus struct {
		Exists        bool              `json:"exists"`
		Id            string            `json:"id,omitempty"`
		HasController bool              `json:"hasController"`
		HasObserver   bool              `json:"hasObserver"`
		IsFull        bool              `json:"isFull"`
		LastMapState  *session.MapState `json:"lastMapState,omitempty"`
		Error         string            `json:"error,omitempty"`
	}
)
