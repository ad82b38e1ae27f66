package httpapi

import (
	"net/http"
	"reflect"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/schema"

	"backstage/internal/app/invitations"
	"backstage/shared/go/models"
)

var decoder = newQueryDecoder()

func newQueryDecoder() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	d.RegisterConverter(uuid.UUID{}, func(raw string) reflect.Value {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return reflect.ValueOf(uuid.Nil)
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return reflect.Value{}
		}
		return reflect.ValueOf(id)
	})
	return d
}

// resolveQuery is the acceptance URL contract: a link token, or the legacy
// email and entity pair.
type resolveQuery struct {
	Token    string    `schema:"token"`
	Email    string    `schema:"email"`
	EntityID uuid.UUID `schema:"entity_id"`
}

type createInvitationRequest struct {
	EntityID         uuid.UUID          `json:"entity_id"`
	FestivalID       uuid.NullUUID      `json:"festival_id"`
	Access           models.AccessLevel `json:"access"`
	Email            string             `json:"email"`
	InvitedUserID    uuid.NullUUID      `json:"invited_user_id"`
	InvitedPersonaID uuid.NullUUID      `json:"invited_persona_id"`
	RoleLabels       []string           `json:"role_labels"`
}

func (s *Server) handleCreateInvitation(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req createInvitationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	inv, err := s.invitations.Create(r.Context(), user.ID, invitations.CreateInput{
		EntityID:         req.EntityID,
		FestivalID:       req.FestivalID,
		Access:           req.Access,
		Email:            req.Email,
		InvitedUserID:    req.InvitedUserID,
		InvitedPersonaID: req.InvitedPersonaID,
		RoleLabels:       req.RoleLabels,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

// handleResolveInvitation backs the acceptance page. It needs no session and
// never changes state.
func (s *Server) handleResolveInvitation(w http.ResponseWriter, r *http.Request) {
	var q resolveQuery
	if err := decoder.Decode(&q, r.URL.Query()); err != nil {
		writeBadRequest(w, "invalid invitation query")
		return
	}

	view, err := s.invitations.Resolve(r.Context(), invitations.ResolveQuery{
		Token:    q.Token,
		Email:    q.Email,
		EntityID: q.EntityID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleAcceptInvitation(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	m, err := s.invitations.AcceptAsUser(r.Context(), id, user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Membership models.TeamMembership `json:"membership"`
	}{Membership: m})
}

func (s *Server) handleRevokeInvitation(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if err := s.invitations.Revoke(r.Context(), user.ID, id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListEntityInvitations(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	list, err := s.invitations.ListForEntity(r.Context(), user.ID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Invitations []models.Invitation `json:"invitations"`
	}{Invitations: nonNil(list)})
}

func (s *Server) handleListMyInvitations(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	list, err := s.invitations.ListMine(r.Context(), user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Invitations []models.InvitationView `json:"invitations"`
	}{Invitations: nonNil(list)})
}
