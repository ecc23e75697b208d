package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/trackerlink-core/internal/audit"
	"github.com/nerrad567/trackerlink-core/internal/entry"
	"github.com/nerrad567/trackerlink-core/internal/tracker"
)

// entryResponse pairs an entry with the device and sensors it registers.
type entryResponse struct {
	Entry   *entry.Entry            `json:"entry"`
	Device  *tracker.RegistryDevice `json:"device,omitempty"`
	Sensors []tracker.Sensor        `json:"sensors,omitempty"`
}

func newEntryResponse(e *entry.Entry) entryResponse {
	return entryResponse{Entry: e, Device: e.Device(), Sensors: e.Sensors()}
}

// handleListEntries lists every entry, or only the one holding ?unique_id=.
func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	if uniqueID := r.URL.Query().Get("unique_id"); uniqueID != "" {
		s.lookupEntry(w, r, uniqueID)
		return
	}

	entries, err := s.entries.List(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	e, err := s.entries.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newEntryResponse(e))
}

func (s *Server) lookupEntry(w http.ResponseWriter, r *http.Request, uniqueID string) {
	entries := []entry.Entry{}
	e, err := s.entries.GetByUniqueID(r.Context(), uniqueID)
	switch {
	case err == nil:
		entries = append(entries, *e)
	case !errors.Is(err, entry.ErrEntryNotFound):
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

// handleCreateUserEntry creates the single manual integration entry.
func (s *Server) handleCreateUserEntry(w http.ResponseWriter, r *http.Request) {
	e, err := s.entries.Create(r.Context(), entry.NewUserRequest(s.domain))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.record(r.Context(), &audit.AuditLog{
		Action:     audit.ActionEntryCreated,
		EntityType: audit.EntityEntry,
		EntityID:   e.ID,
		Details:    map[string]any{"unique_id": e.UniqueID, "source": string(e.Source)},
	})
	writeJSON(w, http.StatusCreated, e)
}

// handleDeleteEntry removes an entry. The tracker it registered can then be
// paired again once it is rediscovered.
func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.entries.Delete(r.Context(), id); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.record(r.Context(), &audit.AuditLog{
		Action:     audit.ActionEntryDeleted,
		EntityType: audit.EntityEntry,
		EntityID:   id,
	})
	w.WriteHeader(http.StatusNoContent)
}
