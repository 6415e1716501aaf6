package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/rpigarage/internal/history"
	"github.com/nerrad567/rpigarage/internal/reconcile"
)

// DoorResponse is the body of GET /api/v1/door.
type DoorResponse struct {
	Thing string `json:"thing"`
	reconcile.Snapshot
}

// EventsResponse is the body of GET /api/v1/door/events.
type EventsResponse struct {
	Events []history.Entry `json:"events"`
	Count  int             `json:"count"`
}

// handleDoor returns the engine snapshot.
func (s *Server) handleDoor(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, DoorResponse{
		Thing:    s.thing,
		Snapshot: s.door.Snapshot(),
	})
}

// handleDoorEvents returns journal entries, newest first.
func (s *Server) handleDoorEvents(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeUnavailable(w, "event journal is disabled")
		return
	}

	limit := history.DefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("reading door event journal", "error", err)
		writeInternalError(w, "failed to read event journal")
		return
	}

	writeJSON(w, http.StatusOK, EventsResponse{Events: entries, Count: len(entries)})
}
