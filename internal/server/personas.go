// ABOUTME: Persona HTTP handlers for create, read, update, delete, and listing
// ABOUTME: Personas are keyed by wallet address

package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/2389/showcase-backend/internal/store"
)

// PersonaListResponse is the body of GET /personas.
type PersonaListResponse struct {
	Personas []*store.Persona `json:"personas"`
	Total    int              `json:"total"`
	Limit    int              `json:"limit"`
	Offset   int              `json:"offset"`
}

func (s *Server) handleCreatePersona(w http.ResponseWriter, r *http.Request) {
	var p store.Persona
	if err := decodeJSON(w, r, &p); err != nil {
		s.sendError(w, r, err)
		return
	}
	if err := s.personas.Create(r.Context(), &p); err != nil {
		s.sendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, &p)
}

func (s *Server) handleGetPersona(w http.ResponseWriter, r *http.Request) {
	p, err := s.personas.Get(r.Context(), chi.URLParam(r, "wallet"))
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleUpdatePersona replaces the persona's profile fields. The wallet in
// the path wins over any wallet in the body.
func (s *Server) handleUpdatePersona(w http.ResponseWriter, r *http.Request) {
	var p store.Persona
	if err := decodeJSON(w, r, &p); err != nil {
		s.sendError(w, r, err)
		return
	}
	updated, err := s.personas.Update(r.Context(), chi.URLParam(r, "wallet"), &p)
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeletePersona(w http.ResponseWriter, r *http.Request) {
	wallet := chi.URLParam(r, "wallet")
	if err := s.personas.Delete(r.Context(), wallet); err != nil {
		s.sendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": wallet})
}

func (s *Server) handleListPersonas(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pageParams(r)
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	personas, total := s.personas.List(r.Context(), limit, offset)
	writeJSON(w, http.StatusOK, PersonaListResponse{
		Personas: personas,
		Total:    total,
		Limit:    limit,
		Offset:   offset,
	})
}
