// Package api defines the wire API of the sync server.
//
// Each API call (request and response) is a JSON-encoded "packet" of the following structure:
//
//	id - (optional) a unique packet id for request/reply correlation;
//	 t - (required) one of the predefined event names;
//	 p - (optional) packet payload with arbitrary data.
//
// Requests carry an id which the server echoes back on the reply packet,
// so the caller can match replies to in-flight calls. Server pushes
// (peer notifications, state fan-out) carry no id and are never awaited.
package api

import (
	"github.com/goccy/go-json"
)

// PT is a packet type (the event name on the wire).
type PT string

const (
	SessionCreate    PT = "session:create"
	SessionJoin      PT = "session:join"
	SessionLeave     PT = "session:leave"
	PeerJoined       PT = "session:peer_joined"
	PeerDisconnected PT = "session:peer_disconnected"
	MapUpdate        PT = "map:update"
	MapRequestSync   PT = "map:request_sync"
	MapSync          PT = "map:sync"
)

func (p PT) String() string { return string(p) }

// In is an inbound packet with a raw payload for 2-pass unmarshal.
type In struct {
	Id      string          `json:"id,omitempty"`
	T       PT              `json:"t"`
	Payload json.RawMessage `json:"p,omitempty"`
}

// Out is an outbound packet.
type Out struct {
	Id      string `json:"id,omitempty"`
	T       PT     `json:"t"`
	Payload any    `json:"p,omitempty"`
}

// Error codes surfaced on reply payloads.
const (
	ErrCodeNotFound         = "not_found"
	ErrCodeSessionFull      = "session_full"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotInSession     = "not_in_session"
	ErrCodeInvalidState     = "invalid_state"
	ErrCodeNotAvailable     = "not_available"
	ErrCodeStoreUnavailable = "store_unavailable"
	ErrCodeServer           = "server_error"
)

// Unwrap decodes a raw payload into T, nil on malformed data.
func Unwrap[T any](data []byte) *T {
	out := new(T)
	if err := json.Unmarshal(data, out); err != nil {
		return nil
	}
	return out
}
