package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"backstage/internal/access"
	"backstage/internal/app/zones"
	"backstage/internal/store"
	"backstage/shared/go/models"
)

func (s *Server) handleCreateFestival(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req struct {
		HostEntityID uuid.UUID `json:"host_entity_id"`
		Name         string    `json:"name"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	festival, err := s.events.CreateFestival(r.Context(), user.ID, req.HostEntityID, req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, festival)
}

func (s *Server) handleGetFestival(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	festival, err := s.events.GetFestival(r.Context(), user.ID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, festival)
}

func (s *Server) handleListFestivalEvents(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	list, err := s.events.ListFestivalEvents(r.Context(), user.ID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Events []models.Event `json:"events"`
	}{Events: nonNil(list)})
}

func (s *Server) handleFestivalZones(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	rows, err := s.zones.FestivalZones(r.Context(), user.ID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Assignments []models.ZoneAssignment `json:"assignments"`
	}{Assignments: nonNil(rows)})
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req struct {
		Name         string        `json:"name"`
		FestivalID   uuid.NullUUID `json:"festival_id"`
		HostEntityID uuid.NullUUID `json:"host_entity_id"`
		StartsAt     time.Time     `json:"starts_at"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	event, err := s.events.CreateEvent(r.Context(), user.ID, models.Event{
		Name:         req.Name,
		FestivalID:   req.FestivalID,
		HostEntityID: req.HostEntityID,
		StartsAt:     req.StartsAt,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	event, err := s.events.GetEvent(r.Context(), user.ID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (s *Server) handleEventLineup(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	lineup, err := s.zones.EventLineup(r.Context(), user.ID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lineup)
}

type zoneRequest struct {
	EventID         uuid.NullUUID          `json:"event_id"`
	FestivalID      uuid.NullUUID          `json:"festival_id"`
	Zone            models.Zone            `json:"zone"`
	ParticipantKind models.ParticipantKind `json:"participant_kind"`
	ParticipantID   uuid.UUID              `json:"participant_id"`
	SortOrder       int                    `json:"sort_order"`
	RoleLabel       string                 `json:"role_label"`
	IsPublic        bool                   `json:"is_public"`
}

func (s *Server) handleSetZoneAssignment(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req zoneRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	a, err := s.zones.Set(r.Context(), user.ID, store.ZoneWrite{
		Scope:           models.ZoneScope{EventID: req.EventID, FestivalID: req.FestivalID},
		Zone:            req.Zone,
		ParticipantKind: req.ParticipantKind,
		ParticipantID:   req.ParticipantID,
		SortOrder:       req.SortOrder,
		RoleLabel:       req.RoleLabel,
		IsPublic:        req.IsPublic,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// handleRemoveZoneAssignment takes the scope from event_id or festival_id in
// the query string.
func (s *Server) handleRemoveZoneAssignment(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	scope, ok := scopeFromQuery(w, r)
	if !ok {
		return
	}

	if err := s.zones.Remove(r.Context(), user.ID, scope, id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMoveZoneAssignment(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		EventID    uuid.NullUUID `json:"event_id"`
		FestivalID uuid.NullUUID `json:"festival_id"`
		Direction  string        `json:"direction"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	var dir zones.Direction
	switch strings.ToLower(req.Direction) {
	case "up":
		dir = zones.Up
	case "down":
		dir = zones.Down
	default:
		writeBadRequest(w, "direction must be up or down")
		return
	}

	scope := models.ZoneScope{EventID: req.EventID, FestivalID: req.FestivalID}
	moved, err := s.zones.Move(r.Context(), user.ID, scope, id, dir)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Moved bool `json:"moved"`
	}{Moved: moved})
}

func scopeFromQuery(w http.ResponseWriter, r *http.Request) (models.ZoneScope, bool) {
	eventID, err := optionalUUID(r.URL.Query().Get("event_id"))
	if err != nil {
		writeBadRequest(w, "invalid event_id")
		return models.ZoneScope{}, false
	}
	festivalID, err := optionalUUID(r.URL.Query().Get("festival_id"))
	if err != nil {
		writeBadRequest(w, "invalid festival_id")
		return models.ZoneScope{}, false
	}
	return models.ZoneScope{EventID: eventID, FestivalID: festivalID}, true
}

type accessQuery struct {
	Action string    `schema:"action"`
	Kind   string    `schema:"kind"`
	ID     uuid.UUID `schema:"id"`
}

// handleCheckAccess reports whether the session user may act on a target, so
// the UI can hide controls. Writes are still checked by each service.
func (s *Server) handleCheckAccess(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var q accessQuery
	if err := decoder.Decode(&q, r.URL.Query()); err != nil {
		writeBadRequest(w, "invalid access query")
		return
	}

	action, ok := access.ParseAction(q.Action)
	if !ok {
		writeBadRequest(w, "unknown action")
		return
	}
	kind, ok := access.ParseTargetKind(q.Kind)
	if !ok {
		writeBadRequest(w, "unknown target kind")
		return
	}

	decision := s.access.Decide(r.Context(), user.ID, action, access.Target{Kind: kind, ID: q.ID})
	writeJSON(w, http.StatusOK, struct {
		Allowed  bool   `json:"allowed"`
		Decision string `json:"decision"`
	}{Allowed: decision.Allowed(), Decision: decision.String()})
}
