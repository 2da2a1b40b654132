// Package registry keeps the process-local mapping from a live
// connection to its session, role and user. It exists to make
// disconnect cleanup O(1) and is intentionally neither shared nor
// durable: the session store is the recoverable source of truth.
package registry

import (
	"github.com/geosync/geosync/pkg/com"
	"github.com/geosync/geosync/pkg/network"
	"github.com/geosync/geosync/pkg/session"
)

type Mapping struct {
	SessionId string
	Role      session.Role
	UserId    string
}

type Registry struct {
	bindings com.Map[network.Uid, Mapping]
}

func New() *Registry {
	return &Registry{bindings: com.NewMap[network.Uid, Mapping]()}
}

func (r *Registry) Bind(id network.Uid, m Mapping) { r.bindings.Put(id, m) }

func (r *Registry) Lookup(id network.Uid) (Mapping, bool) { return r.bindings.Find(id) }

// Unbind removes and returns the mapping; the second call for the
// same connection finds nothing, which makes cleanup idempotent.
func (r *Registry) Unbind(id network.Uid) (Mapping, bool) { return r.bindings.Pop(id) }

func (r *Registry) Len() int { return r.bindings.Len() }
