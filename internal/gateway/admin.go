package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/Iron-Ham/collabd/internal/errors"
	"github.com/Iron-Ham/collabd/internal/session"
)

// Health is the body of GET /healthz.
type Health struct {
	Status      string `json:"status"`
	Sessions    int    `json:"sessions"`
	Connections int    `json:"connections"`
	Conflicts   int    `json:"conflicts"`
	Sweeping    bool   `json:"sweeping"`
}

// SessionDetail is the body of GET /api/v1/sessions/{type}/{id}.
type SessionDetail struct {
	session.Snapshot
	Connections int `json:"connections"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Health{
		Status:      "ok",
		Sessions:    s.hub.Store().Len(),
		Connections: s.ConnectionCount(),
		Conflicts:   s.hub.Engine().ConflictCount(),
		Sweeping:    s.hub.Running(),
	})
}

func (s *Server) listSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.hub.Sessions())
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	key := session.Key{EntityType: r.PathValue("type"), EntityID: r.PathValue("id")}
	snap, err := s.hub.Snapshot(key)
	if err != nil {
		switch errors.KindOf(err) {
		case errors.KindNotFound:
			writeError(w, http.StatusNotFound, err.Error())
		case errors.KindValidation:
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.logger.WithEntity(key.EntityType, key.EntityID).Error("snapshot failed", "error", err.Error())
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(w, http.StatusOK, SessionDetail{
		Snapshot:    snap,
		Connections: len(s.groupMembers(key.Group())),
	})
}
