package session

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrExists   = errors.New("session already exists")
	// ErrConflict signals a lost compare-and-update race;
	// callers retry with the refreshed record.
	ErrConflict = errors.New("session version conflict")
)

// Store keeps session records with per-key expiry. Every successful
// mutation re-arms the TTL so active sessions never expire mid-use
// while abandoned ones self-clean.
//
// Update is the load-bearing primitive: an atomic read-modify-write
// guarded by the record version, so two simultaneous joins can never
// both win the same role slot. Implementations must return ErrConflict
// on a lost race and never blind-write over a concurrent mutation.
type Store interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Update(ctx context.Context, id string, expected int64, mutate func(*Session)) (*Session, error)
	Delete(ctx context.Context, id string) error
	Refresh(ctx context.Context, id string) error
	Ping(ctx context.Context) error
	// Mode names the active backend for the health surface.
	Mode() string
}

func now() int64 { return time.Now().UnixMilli() }
