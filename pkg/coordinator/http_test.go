package coordinator

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/geosync/geosync/pkg/api"
	"github.com/geosync/geosync/pkg/logger"
	"github.com/geosync/geosync/pkg/session"
	"github.com/goccy/go-json"
)

func TestHealthEndpoint(t *testing.T) {
	h := NewHub(testConfig(), session.NewMemoryStore(time.Hour), logger.Default())

	rec := httptest.NewRecorder()
	h.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var status api.HealthStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatal(err)
	}
	if status.Status != "ok" || status.Store != "memory" {
		t.Fatalf("health = %+v", status)
	}
}

func TestSessionStatusEndpoint(t *testing.T) {
	h, srv := newTestHub(t)
	ctrl, _ := dial(t, srv)
	id := createSession(t, ctrl)
	join(t, ctrl, id, "")

	t.Run("found", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.handleSessionStatus(rec, httptest.NewRequest(http.MethodGet, "/api/session/"+id, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var st api.SessionStatus
		if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
			t.Fatal(err)
		}
		if !st.Exists || !st.HasController || st.HasObserver || st.IsFull {
			t.Fatalf("session status = %+v", st)
		}
	})

	t.Run("missing", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.handleSessionStatus(rec, httptest.NewRequest(http.MethodGet, "/api/session/NOPE0000", nil))
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("no id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.handleSessionStatus(rec, httptest.NewRequest(http.MethodGet, "/api/session/", nil))
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d", rec.Code)
		}
	})
}
