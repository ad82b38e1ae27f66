package httpapi

import (
	"net/http"

	"github.com/google/uuid"

	"backstage/internal/store"
	"backstage/shared/go/models"
)

type createEntityRequest struct {
	Type            models.EntityType `json:"type"`
	Name            string            `json:"name"`
	IsHostOrganizer bool              `json:"is_host_organizer"`
}

type updateEntityRequest struct {
	Name            *string `json:"name"`
	HeroImage       *string `json:"hero_image"`
	IsHostOrganizer *bool   `json:"is_host_organizer"`
}

func (s *Server) handleCreateEntity(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req createEntityRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	entity, err := s.entities.Create(r.Context(), user.ID, req.Type, req.Name, req.IsHostOrganizer)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entity)
}

// handleListMyEntities lists entities the user is on. An optional persona_id
// narrows the list to memberships presented through that persona.
func (s *Server) handleListMyEntities(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	personaID, err := optionalUUID(r.URL.Query().Get("persona_id"))
	if err != nil {
		writeBadRequest(w, "invalid persona_id")
		return
	}

	scope, err := s.personas.Scope(r.Context(), user.ID, personaID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := s.entities.ListMine(r.Context(), scope)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Entities []models.Entity `json:"entities"`
	}{Entities: nonNil(list)})
}

func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	entity, err := s.entities.Get(r.Context(), user.ID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entity)
}

func (s *Server) handleUpdateEntity(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req updateEntityRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	entity, err := s.entities.Update(r.Context(), user.ID, id, store.EntityPatch{
		Name:            req.Name,
		HeroImage:       req.HeroImage,
		IsHostOrganizer: req.IsHostOrganizer,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entity)
}

func (s *Server) handleSetPublished(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Published bool `json:"published"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	entity, err := s.entities.SetPublished(r.Context(), user.ID, id, req.Published)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entity)
}

func (s *Server) handlePublicProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.entities.PublicProfile(r.Context(), r.PathValue("slug"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleListTeam(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	members, err := s.team.List(r.Context(), user.ID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Members []models.TeamMembership `json:"members"`
	}{Members: nonNil(members)})
}

func (s *Server) handleUpdateMemberAccess(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Access models.AccessLevel `json:"access"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	m, err := s.team.UpdateAccess(r.Context(), user.ID, id, req.Access)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleUpdateMemberProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		PersonaID  uuid.NullUUID `json:"persona_id"`
		RoleLabels []string      `json:"role_labels"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	m, err := s.team.UpdateProfile(r.Context(), user.ID, id, req.PersonaID, req.RoleLabels)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if err := s.team.Remove(r.Context(), user.ID, id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLeaveTeam(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if err := s.team.Leave(r.Context(), user.ID, id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListCredits(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	credits, err := s.bindings.List(r.Context(), user.ID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Credits []models.Credit `json:"credits"`
	}{Credits: nonNil(credits)})
}

func (s *Server) handleSetCredit(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	entityID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	personaID, ok := pathUUID(w, r, "personaID")
	if !ok {
		return
	}
	var req struct {
		IsPublic  bool   `json:"is_public"`
		RoleLabel string `json:"role_label"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	b, err := s.bindings.Set(r.Context(), user.ID, models.PersonaBinding{
		EntityID:  entityID,
		PersonaID: personaID,
		IsPublic:  req.IsPublic,
		RoleLabel: req.RoleLabel,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleDeleteCredit(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	entityID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	personaID, ok := pathUUID(w, r, "personaID")
	if !ok {
		return
	}
	if err := s.bindings.Delete(r.Context(), user.ID, entityID, personaID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
