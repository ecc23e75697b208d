package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/trackerlink-core/internal/discovery"
	"github.com/nerrad567/trackerlink-core/internal/tracker"
)

// handleSubmitTracker validates a submission and adds it to the registry.
func (s *Server) handleSubmitTracker(w http.ResponseWriter, r *http.Request) {
	var sub tracker.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	d, err := s.intake.Submit(r.Context(), discovery.SourceAPI, sub)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// handleListTrackers returns every pending tracker sorted by component name.
func (s *Server) handleListTrackers(w http.ResponseWriter, _ *http.Request) {
	trackers := s.registry.List()
	writeJSON(w, http.StatusOK, map[string]any{
		"trackers": trackers,
		"count":    len(trackers),
		"policy":   s.registry.Policy(),
	})
}

// handleGetTracker returns one pending tracker.
func (s *Server) handleGetTracker(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	d, ok := s.registry.Get(name)
	if !ok {
		writeNotFound(w, "tracker not pending: "+name)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleWithdrawTracker drops a pending tracker without pairing it.
func (s *Server) handleWithdrawTracker(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !s.intake.Withdraw(r.Context(), discovery.SourceAPI, name) {
		writeNotFound(w, "tracker not pending: "+name)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
