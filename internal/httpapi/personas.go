package httpapi

import (
	"net/http"

	"backstage/internal/store"
	"backstage/shared/go/middleware"
	"backstage/shared/go/models"
)

type personaRequest struct {
	Name         *string  `json:"name"`
	IsPublic     *bool    `json:"is_public"`
	Avatar       *string  `json:"avatar"`
	Bio          *string  `json:"bio"`
	CategoryTags []string `json:"category_tags"`
}

func (s *Server) handleCreatePersona(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req personaRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p := models.Persona{CategoryTags: req.CategoryTags}
	if req.Name != nil {
		p.Name = *req.Name
	}
	if req.IsPublic != nil {
		p.IsPublic = *req.IsPublic
	}
	if req.Avatar != nil {
		p.Avatar = *req.Avatar
	}
	if req.Bio != nil {
		p.Bio = *req.Bio
	}

	persona, err := s.personas.Create(r.Context(), user.ID, p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, persona)
}

func (s *Server) handleListMyPersonas(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	list, err := s.personas.ListMine(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Personas []models.Persona `json:"personas"`
	}{Personas: nonNil(list)})
}

// handleGetPersona serves public personas to anyone and private ones to their owner.
func (s *Server) handleGetPersona(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	user, _ := middleware.UserFromContext(r.Context())

	persona, err := s.personas.Get(r.Context(), user.ID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, persona)
}

func (s *Server) handleUpdatePersona(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req personaRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	persona, err := s.personas.Update(r.Context(), user.ID, id, store.PersonaPatch{
		Name:         req.Name,
		IsPublic:     req.IsPublic,
		Avatar:       req.Avatar,
		Bio:          req.Bio,
		CategoryTags: req.CategoryTags,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, persona)
}
