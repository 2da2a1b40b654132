package registry

import (
	"testing"

	"github.com/geosync/geosync/pkg/network"
	"github.com/geosync/geosync/pkg/session"
)

func TestBindLookupUnbind(t *testing.T) {
	r := New()
	id := network.NewUid()

	if _, ok := r.Lookup(id); ok {
		t.Fatal("lookup on empty registry should miss")
	}

	r.Bind(id, Mapping{SessionId: "ABCD1234", Role: session.RoleController, UserId: "u1"})
	m, ok := r.Lookup(id)
	if !ok || m.SessionId != "ABCD1234" || m.Role != session.RoleController {
		t.Fatalf("lookup = %+v, %v", m, ok)
	}

	if m, ok := r.Unbind(id); !ok || m.UserId != "u1" {
		t.Fatalf("unbind = %+v, %v", m, ok)
	}
	// second unbind is a no-op: leave followed by disconnect
	if _, ok := r.Unbind(id); ok {
		t.Fatal("second unbind should find nothing")
	}
	if r.Len() != 0 {
		t.Fatalf("registry not empty: %d", r.Len())
	}
}
