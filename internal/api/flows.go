package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// flowRequest is the body of POST /flows and POST /flows/{id}/select.
type flowRequest struct {
	ComponentName string `json:"component_name"`
}

// decodeOptional decodes a JSON body into v. An empty body leaves v untouched.
func decodeOptional(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// handleStartFlow starts a pairing flow. With a component name the flow is
// bound to that tracker; without one it offers every pending tracker.
// The returned session may already be aborted.
func (s *Server) handleStartFlow(w http.ResponseWriter, r *http.Request) {
	var req flowRequest
	if err := decodeOptional(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	session, err := s.manager.Start(r.Context(), req.ComponentName)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

// handleListFlows returns every known flow, oldest first.
func (s *Server) handleListFlows(w http.ResponseWriter, _ *http.Request) {
	flows := s.manager.List()
	writeJSON(w, http.StatusOK, map[string]any{
		"flows": flows,
		"count": len(flows),
	})
}

func (s *Server) handleGetFlow(w http.ResponseWriter, r *http.Request) {
	session, err := s.manager.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// handleSelectTracker picks a candidate in a generic flow.
func (s *Server) handleSelectTracker(w http.ResponseWriter, r *http.Request) {
	var req flowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.ComponentName == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "component_name is required")
		return
	}

	session, err := s.manager.Select(r.Context(), chi.URLParam(r, "id"), req.ComponentName)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// handleConfirmFlow commits the selected tracker as a configuration entry.
func (s *Server) handleConfirmFlow(w http.ResponseWriter, r *http.Request) {
	session, err := s.manager.Confirm(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// handleCancelFlow aborts a waiting flow.
func (s *Server) handleCancelFlow(w http.ResponseWriter, r *http.Request) {
	session, err := s.manager.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}
