package coordinator

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/geosync/geosync/pkg/api"
	"github.com/geosync/geosync/pkg/com"
	"github.com/geosync/geosync/pkg/logger"
	"github.com/geosync/geosync/pkg/session"
)

func TestAssignRole(t *testing.T) {
	ctrl := &session.Slot{ConnectionId: "c", UserId: "u"}
	obs := &session.Slot{ConnectionId: "o", UserId: "v"}
	tests := []struct {
		name       string
		controller *session.Slot
		observer   *session.Slot
		preferred  session.Role
		want       session.Role
		full       bool
	}{
		{name: "empty no preference -> controller", want: session.RoleController},
		{name: "empty prefers observer", preferred: session.RoleObserver, want: session.RoleObserver},
		{name: "empty prefers controller", preferred: session.RoleController, want: session.RoleController},
		{name: "controller taken no preference", controller: ctrl, want: session.RoleObserver},
		{name: "preferred occupied falls through", controller: ctrl, preferred: session.RoleController, want: session.RoleObserver},
		{name: "observer taken prefers observer", observer: obs, preferred: session.RoleObserver, want: session.RoleController},
		{name: "invalid preference ignored", preferred: session.Role("pilot"), want: session.RoleController},
		{name: "full", controller: ctrl, observer: obs, full: true},
		{name: "full with preference", controller: ctrl, observer: obs, preferred: session.RoleObserver, full: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := &session.Session{Id: "X", Controller: tc.controller, Observer: tc.observer}
			role, ok := assignRole(s, tc.preferred)
			if tc.full {
				if ok {
					t.Fatalf("assignRole = %v, want full", role)
				}
				return
			}
			if !ok || role != tc.want {
				t.Fatalf("assignRole = %v/%v, want %v", role, ok, tc.want)
			}
		})
	}
}

func TestCreateAndJoin(t *testing.T) {
	_, srv := newTestHub(t)
	ctrl, _ := dial(t, srv)

	id := createSession(t, ctrl)
	if len(id) != 8 {
		t.Fatalf("session id %q, want 8 chars", id)
	}

	reply := join(t, ctrl, id, "")
	if !reply.Success || reply.Role != session.RoleController {
		t.Fatalf("first join = %+v, want controller", reply)
	}
	if reply.PeerConnected {
		t.Fatal("first joiner cannot have a peer")
	}
	if reply.UserId == "" {
		t.Fatal("join must issue a user id")
	}
}

func TestJoinUnknownSession(t *testing.T) {
	_, srv := newTestHub(t)
	c, _ := dial(t, srv)
	reply := join(t, c, "NOPE0000", "")
	if reply.Success || reply.Code != api.ErrCodeNotFound {
		t.Fatalf("join = %+v, want %v", reply, api.ErrCodeNotFound)
	}
}

func TestSecondJoinerBecomesObserverAndNotifiesPeer(t *testing.T) {
	_, srv := newTestHub(t)
	ctrl, ctrlPushes := dial(t, srv)
	obs, _ := dial(t, srv)

	id := createSession(t, ctrl)
	join(t, ctrl, id, "")

	reply := join(t, obs, id, "")
	if !reply.Success || reply.Role != session.RoleObserver || !reply.PeerConnected {
		t.Fatalf("second join = %+v, want connected observer", reply)
	}

	in := waitPush(t, ctrlPushes, api.PeerJoined)
	push := api.Unwrap[api.PeerJoinedPush](in.Payload)
	if push == nil || push.Role != session.RoleObserver || push.UserId != reply.UserId {
		t.Fatalf("peer_joined push = %+v", push)
	}
}

// Two simultaneous joins with no preference on a fresh session:
// exactly one controller, one observer, nobody rejected.
func TestConcurrentJoins(t *testing.T) {
	_, srv := newTestHub(t)
	a, _ := dial(t, srv)
	b, _ := dial(t, srv)
	id := createSession(t, a)

	var wg sync.WaitGroup
	replies := make([]api.SessionJoinReply, 2)
	for i, c := range []*com.Client{a, b} {
		wg.Add(1)
		go func(i int, c *com.Client) {
			defer wg.Done()
			replies[i] = join(t, c, id, "")
		}(i, c)
	}
	wg.Wait()

	if !replies[0].Success || !replies[1].Success {
		t.Fatalf("both joins must win a slot: %+v / %+v", replies[0], replies[1])
	}
	roles := map[session.Role]int{}
	roles[replies[0].Role]++
	roles[replies[1].Role]++
	if roles[session.RoleController] != 1 || roles[session.RoleObserver] != 1 {
		t.Fatalf("role split = %v, want one of each", roles)
	}
}

func TestThirdJoinFailsSessionFull(t *testing.T) {
	_, srv := newTestHub(t)
	ctrl, _ := dial(t, srv)
	obs, _ := dial(t, srv)
	third, _ := dial(t, srv)

	id := createSession(t, ctrl)
	join(t, ctrl, id, "")
	join(t, obs, id, "")

	reply := join(t, third, id, "")
	if reply.Success || reply.Code != api.ErrCodeSessionFull {
		t.Fatalf("third join = %+v, want %v", reply, api.ErrCodeSessionFull)
	}
	reply = join(t, third, id, session.RoleObserver)
	if reply.Success || reply.Code != api.ErrCodeSessionFull {
		t.Fatalf("preferred join on full session = %+v, want %v", reply, api.ErrCodeSessionFull)
	}
}

func TestFailureCodes(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{session.ErrNotFound, api.ErrCodeNotFound},
		{errSessionFull, api.ErrCodeSessionFull},
		{errStoreUnavailable, api.ErrCodeStoreUnavailable},
		{errors.New("io timeout"), api.ErrCodeServer},
	}
	for _, tc := range tests {
		if code, _ := joinFailure(tc.err); code != tc.code {
			t.Errorf("joinFailure(%v) = %v, want %v", tc.err, code, tc.code)
		}
	}
}

// faultyStore simulates a mid-run backend outage: writes start
// failing while reads still work.
type faultyStore struct {
	*session.MemoryStore
	fail atomic.Bool
}

func (s *faultyStore) Update(ctx context.Context, id string, expected int64, mutate func(*session.Session)) (*session.Session, error) {
	if s.fail.Load() {
		return nil, errors.New("io timeout")
	}
	return s.MemoryStore.Update(ctx, id, expected, mutate)
}

func TestStoreFailureSurfacesServerError(t *testing.T) {
	st := &faultyStore{MemoryStore: session.NewMemoryStore(time.Hour)}
	h := NewHub(testConfig(), st, logger.Default())
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.handleWS)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, _ := dial(t, srv)
	id := createSession(t, c)

	st.fail.Store(true)
	reply := join(t, c, id, "")
	if reply.Success || reply.Code != api.ErrCodeServer {
		t.Fatalf("join on failing store = %+v, want %v", reply, api.ErrCodeServer)
	}
}

func TestLeaveFreesSlotAndDeletesEmptySession(t *testing.T) {
	h, srv := newTestHub(t)
	c, _ := dial(t, srv)
	id := createSession(t, c)
	join(t, c, id, "")

	if _, err := c.Call(api.SessionLeave, struct{}{}); err != nil {
		t.Fatalf("session:leave call: %v", err)
	}
	// both slots empty -> session deleted, a rejoin must fail
	reply := join(t, c, id, "")
	if reply.Success || reply.Code != api.ErrCodeNotFound {
		t.Fatalf("join after delete = %+v, want %v", reply, api.ErrCodeNotFound)
	}
	if h.registry.Len() != 0 {
		t.Fatalf("registry leak: %d", h.registry.Len())
	}
}

func TestControllerDisconnectFreezesObserver(t *testing.T) {
	_, srv := newTestHub(t)
	ctrl, _ := dial(t, srv)
	obs, obsPushes := dial(t, srv)

	id := createSession(t, ctrl)
	join(t, ctrl, id, "")
	join(t, obs, id, "")

	state := session.MapState{Lat: 40.7128, Lng: -74.0060, Zoom: 14.5, Bearing: 45, Pitch: 30}
	if reply := publish(t, ctrl, state); !reply.Success {
		t.Fatalf("publish = %+v", reply)
	}
	waitPush(t, obsPushes, api.MapSync)

	ctrl.Close()

	in := waitPush(t, obsPushes, api.PeerDisconnected)
	push := api.Unwrap[api.PeerDisconnectedPush](in.Payload)
	if push == nil || push.Role != session.RoleController {
		t.Fatalf("peer_disconnected push = %+v", push)
	}
	if push.LastMapState == nil || push.LastMapState.Lat != state.Lat {
		t.Fatalf("frozen state missing on disconnect: %+v", push)
	}

	// the session survives with the observer in it,
	// so a new controller can take over the vacated slot
	ctrl2, _ := dial(t, srv)
	reply := join(t, ctrl2, id, "")
	if !reply.Success || reply.Role != session.RoleController || !reply.PeerConnected {
		t.Fatalf("rejoin after disconnect = %+v", reply)
	}
	if reply.LastMapState == nil || reply.LastMapState.Zoom != state.Zoom {
		t.Fatalf("late joiner must receive the last state: %+v", reply)
	}
	waitPush(t, obsPushes, api.PeerJoined)
}
