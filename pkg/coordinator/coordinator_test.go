package coordinator

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/geosync/geosync/pkg/api"
	"github.com/geosync/geosync/pkg/com"
	"github.com/geosync/geosync/pkg/config"
	"github.com/geosync/geosync/pkg/logger"
	"github.com/geosync/geosync/pkg/session"
	"github.com/goccy/go-json"
)

func testConfig() config.Config {
	return config.Config{
		Session: config.Session{Ttl: time.Hour, IdLen: 8},
		Sync:    config.Sync{ThrottleInterval: 0}, // no gate unless a test arms it
	}
}

func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	return newThrottledHub(t, 0)
}

func newThrottledHub(t *testing.T, interval time.Duration) (*Hub, *httptest.Server) {
	t.Helper()
	conf := testConfig()
	conf.Sync.ThrottleInterval = interval
	h := NewHub(conf, session.NewMemoryStore(time.Hour), logger.Default())
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.handleWS)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return h, srv
}

// dial connects a packet client to the test server; pushes (packets
// with no id) are forwarded to the returned channel.
func dial(t *testing.T, srv *httptest.Server) (*com.Client, <-chan api.In) {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	u.Scheme = "ws"
	u.Path = "/ws"
	c, err := com.NewClient(*u, logger.Default())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	pushes := make(chan api.In, 16)
	c.OnPacket(func(in api.In) { pushes <- in })
	c.Listen()
	t.Cleanup(c.Close)
	return c, pushes
}

func waitPush(t *testing.T, ch <-chan api.In, pt api.PT) api.In {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case in := <-ch:
			if in.T == pt {
				return in
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %v push", pt)
		}
	}
}

func createSession(t *testing.T, c *com.Client) string {
	t.Helper()
	data, err := c.Call(api.SessionCreate, struct{}{})
	if err != nil {
		t.Fatalf("session:create call: %v", err)
	}
	var reply api.SessionCreateReply
	if err := json.Unmarshal(data, &reply); err != nil {
		t.Fatal(err)
	}
	if !reply.Success || reply.SessionId == "" {
		t.Fatalf("session:create reply: %+v", reply)
	}
	return reply.SessionId
}

func join(t *testing.T, c *com.Client, id string, pref session.Role) api.SessionJoinReply {
	t.Helper()
	data, err := c.Call(api.SessionJoin, api.SessionJoinRequest{SessionId: id, PreferredRole: pref})
	if err != nil {
		t.Fatalf("session:join call: %v", err)
	}
	var reply api.SessionJoinReply
	if err := json.Unmarshal(data, &reply); err != nil {
		t.Fatal(err)
	}
	return reply
}

func publish(t *testing.T, c *com.Client, state session.MapState) api.MapUpdateReply {
	t.Helper()
	data, err := c.Call(api.MapUpdate, state)
	if err != nil {
		t.Fatalf("map:update call: %v", err)
	}
	var reply api.MapUpdateReply
	if err := json.Unmarshal(data, &reply); err != nil {
		t.Fatal(err)
	}
	return reply
}

func resync(t *testing.T, c *com.Client) api.MapSyncReply {
	t.Helper()
	data, err := c.Call(api.MapRequestSync, struct{}{})
	if err != nil {
		t.Fatalf("map:request_sync call: %v", err)
	}
	var reply api.MapSyncReply
	if err := json.Unmarshal(data, &reply); err != nil {
		t.Fatal(err)
	}
	return reply
}
