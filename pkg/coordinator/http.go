package coordinator

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/geosync/geosync/pkg/api"
	"github.com/geosync/geosync/pkg/session"
	"github.com/goccy/go-json"
)

// handleHealth reports process liveness and which store backend is active.
func (h *Hub) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, api.HealthStatus{
		Status:    "ok",
		Store:     h.store.Mode(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// handleSessionStatus is the pre-flight check before a join attempt:
// existence and occupancy of a session by id, no sensitive fields.
func (h *Hub) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/session/")
	if id == "" || strings.Contains(id, "/") {
		writeJSON(w, http.StatusNotFound, api.SessionStatus{Error: "Route not found"})
		return
	}
	sess, err := h.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, api.SessionStatus{Error: "Session not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, api.SessionStatus{Error: "Internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, api.SessionStatus{
		Exists:        true,
		Id:            sess.Id,
		HasController: sess.Controller != nil,
		HasObserver:   sess.Observer != nil,
		IsFull:        sess.IsFull(),
		LastMapState:  sess.LastState,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
