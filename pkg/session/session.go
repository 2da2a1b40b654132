package session

import (
	"math"
	"strings"

	"github.com/gofrs/uuid"
)

// Role names one of the two slots of a session.
type Role string

const (
	RoleController Role = "controller"
	RoleObserver   Role = "observer"
)

func (r Role) Valid() bool { return r == RoleController || r == RoleObserver }

// Peer returns the opposite role.
func (r Role) Peer() Role {
	if r == RoleController {
		return RoleObserver
	}
	return RoleController
}

// Slot is the occupancy record of one role within a session.
// ConnectionId is transport-scoped and changes across reconnects,
// UserId is reissued on every join.
type Slot struct {
	ConnectionId string `json:"connectionId"`
	UserId       string `json:"userId"`
}

// Session is the pairing unit: two role slots plus the last known state.
// Version guards compare-and-update mutations in the store.
type Session struct {
	Id         string    `json:"id"`
	Controller *Slot     `json:"controller"`
	Observer   *Slot     `json:"observer"`
	LastState  *MapState `json:"lastMapState"`
	Version    int64     `json:"version"`
	CreatedAt  int64     `json:"createdAt"`
	UpdatedAt  int64     `json:"updatedAt"`
}

// Slot returns a pointer to the slot pointer of the given role,
// so callers can both read and (re)assign it.
func (s *Session) Slot(r Role) **Slot {
	if r == RoleController {
		return &s.Controller
	}
	return &s.Observer
}

func (s *Session) Occupied(r Role) bool { return *s.Slot(r) != nil }

// Empty reports whether both slots are vacant.
func (s *Session) Empty() bool { return s.Controller == nil && s.Observer == nil }

func (s *Session) IsFull() bool { return s.Controller != nil && s.Observer != nil }

// MapState is the authoritative viewport state relayed from the
// controller to the observer. Full float64 precision is preserved
// end to end; this payload is the whole point of the system.
type MapState struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Zoom      float64 `json:"zoom"`
	Bearing   float64 `json:"bearing"`
	Pitch     float64 `json:"pitch"`
	Timestamp int64   `json:"timestamp"`
}

// Sanitize validates the state against the model ranges.
// Lat/lng/zoom out of range or non-finite reject the whole payload,
// bearing and pitch are clamped (and zeroed when non-finite).
// Returns false when the payload is unusable.
func (m *MapState) Sanitize() bool {
	if !finite(m.Lat) || !finite(m.Lng) || !finite(m.Zoom) {
		return false
	}
	if m.Lat < -90 || m.Lat > 90 {
		return false
	}
	if m.Lng < -180 || m.Lng > 180 {
		return false
	}
	if m.Zoom < 0 || m.Zoom > 24 {
		return false
	}
	if !finite(m.Bearing) {
		m.Bearing = 0
	}
	if !finite(m.Pitch) {
		m.Pitch = 0
	}
	m.Bearing = clamp(m.Bearing, 0, 360)
	m.Pitch = clamp(m.Pitch, 0, 85)
	return true
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func clamp(v, lo, hi float64) float64 { return math.Min(hi, math.Max(lo, v)) }

// NewId generates a short, readable session id: the first n hex chars
// of a v4 UUID, uppercased. At n=8 collisions against a bounded
// active-session population are negligible, and the caller re-rolls
// on an actual store conflict anyway.
func NewId(n int) string {
	id := uuid.Must(uuid.NewV4()).String()
	id = strings.ReplaceAll(id, "-", "")
	if n > len(id) {
		n = len(id)
	}
	return strings.ToUpper(id[:n])
}

// NewUserId issues a fresh opaque per-join user token.
func NewUserId() string { return uuid.Must(uuid.NewV4()).String() }
