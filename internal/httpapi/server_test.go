package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"backstage/internal/access"
	"backstage/internal/app/entities"
	"backstage/internal/app/identity"
	"backstage/internal/app/invitations"
	"backstage/internal/app/zones"
	"backstage/internal/apperr"
	"backstage/internal/store"
	"backstage/shared/go/middleware"
	"backstage/shared/go/models"
)

const sessionToken = "session-token"

var testUser = models.User{ID: uuid.New(), Email: "crew@example.com"}

type stubIdentityService struct{}

func (stubIdentityService) SignUp(context.Context, string, string, string) (identity.Signup, error) {
	return identity.Signup{User: testUser, ConfirmationToken: "confirm-me"}, nil
}

func (stubIdentityService) ConfirmEmail(context.Context, string) (identity.Confirmation, error) {
	return identity.Confirmation{}, apperr.NotFound("confirmation token not found")
}

func (stubIdentityService) SignInWithPassword(context.Context, string, string) (models.Session, error) {
	return models.Session{}, apperr.Unauthorized("invalid email or password")
}

func (stubIdentityService) CurrentUser(_ context.Context, token string) (models.User, error) {
	if token != sessionToken {
		return models.User{}, apperr.Unauthorized("session is invalid or expired")
	}
	return testUser, nil
}

func (stubIdentityService) SignOut(context.Context, string) error {
	return nil
}

type stubInvitationService struct {
	createErr error
	created   invitations.CreateInput

	view       models.InvitationView
	resolveErr error
	resolved   invitations.ResolveQuery

	membership models.TeamMembership
	acceptErr  error
	acceptedBy models.User
}

func (s *stubInvitationService) Create(_ context.Context, _ uuid.UUID, in invitations.CreateInput) (models.Invitation, error) {
	s.created = in
	if s.createErr != nil {
		return models.Invitation{}, s.createErr
	}
	return models.Invitation{ID: uuid.New(), EntityID: in.EntityID, Access: in.Access, Email: in.Email}, nil
}

func (s *stubInvitationService) Resolve(_ context.Context, q invitations.ResolveQuery) (models.InvitationView, error) {
	s.resolved = q
	if s.resolveErr != nil {
		return models.InvitationView{}, s.resolveErr
	}
	return s.view, nil
}

func (s *stubInvitationService) AcceptAsUser(_ context.Context, _ uuid.UUID, user models.User) (models.TeamMembership, error) {
	s.acceptedBy = user
	if s.acceptErr != nil {
		return models.TeamMembership{}, s.acceptErr
	}
	return s.membership, nil
}

func (s *stubInvitationService) Revoke(context.Context, uuid.UUID, uuid.UUID) error {
	return nil
}

func (s *stubInvitationService) ListForEntity(context.Context, uuid.UUID, uuid.UUID) ([]models.Invitation, error) {
	return nil, nil
}

func (s *stubInvitationService) ListMine(context.Context, models.User) ([]models.InvitationView, error) {
	return nil, nil
}

type stubEntityService struct {
	getErr error
}

func (stubEntityService) Create(_ context.Context, actor uuid.UUID, t models.EntityType, name string, _ bool) (models.Entity, error) {
	return models.Entity{ID: uuid.New(), Type: t, Name: name, CreatedBy: actor}, nil
}

func (s stubEntityService) Get(_ context.Context, _ uuid.UUID, id uuid.UUID) (models.Entity, error) {
	if s.getErr != nil {
		return models.Entity{}, s.getErr
	}
	return models.Entity{ID: id}, nil
}

func (stubEntityService) PublicProfile(context.Context, string) (entities.Profile, error) {
	return entities.Profile{}, apperr.NotFound("entity not found")
}

func (stubEntityService) Update(context.Context, uuid.UUID, uuid.UUID, store.EntityPatch) (models.Entity, error) {
	return models.Entity{}, nil
}

func (stubEntityService) SetPublished(context.Context, uuid.UUID, uuid.UUID, bool) (models.Entity, error) {
	return models.Entity{}, nil
}

func (stubEntityService) ListMine(context.Context, models.PersonaScope) ([]models.Entity, error) {
	return nil, nil
}

type stubPersonaService struct{}

func (stubPersonaService) Create(context.Context, uuid.UUID, models.Persona) (models.Persona, error) {
	return models.Persona{}, nil
}

func (stubPersonaService) Get(context.Context, uuid.UUID, uuid.UUID) (models.Persona, error) {
	return models.Persona{}, nil
}

func (stubPersonaService) Update(context.Context, uuid.UUID, uuid.UUID, store.PersonaPatch) (models.Persona, error) {
	return models.Persona{}, nil
}

func (stubPersonaService) ListMine(context.Context, uuid.UUID) ([]models.Persona, error) {
	return nil, nil
}

func (stubPersonaService) Scope(_ context.Context, userID uuid.UUID, personaID uuid.NullUUID) (models.PersonaScope, error) {
	return models.PersonaScope{UserID: userID, PersonaID: personaID}, nil
}

type stubZoneService struct {
	moved     bool
	direction zones.Direction
}

func (s *stubZoneService) Set(context.Context, uuid.UUID, store.ZoneWrite) (models.ZoneAssignment, error) {
	return models.ZoneAssignment{}, nil
}

func (s *stubZoneService) Remove(context.Context, uuid.UUID, models.ZoneScope, uuid.UUID) error {
	return nil
}

func (s *stubZoneService) Move(_ context.Context, _ uuid.UUID, _ models.ZoneScope, _ uuid.UUID, dir zones.Direction) (bool, error) {
	s.direction = dir
	return s.moved, nil
}

func (s *stubZoneService) EventLineup(_ context.Context, _ uuid.UUID, eventID uuid.UUID) (models.Lineup, error) {
	return models.Lineup{EventID: eventID}, nil
}

func (s *stubZoneService) FestivalZones(context.Context, uuid.UUID, uuid.UUID) ([]models.ZoneAssignment, error) {
	return nil, nil
}

type stubBindingService struct {
	saved  models.PersonaBinding
	setErr error
}

func (s *stubBindingService) Set(_ context.Context, _ uuid.UUID, b models.PersonaBinding) (models.PersonaBinding, error) {
	s.saved = b
	if s.setErr != nil {
		return models.PersonaBinding{}, s.setErr
	}
	return b, nil
}

func (s *stubBindingService) Delete(context.Context, uuid.UUID, uuid.UUID, uuid.UUID) error {
	return apperr.NotFound("binding not found")
}

func (s *stubBindingService) List(context.Context, uuid.UUID, uuid.UUID) ([]models.Credit, error) {
	return nil, nil
}

type stubAccess struct {
	decision access.Decision
	target   access.Target
}

func (s *stubAccess) Decide(_ context.Context, _ uuid.UUID, _ access.Action, target access.Target) access.Decision {
	s.target = target
	return s.decision
}

type testServer struct {
	handler     http.Handler
	invitations *stubInvitationService
	zones       *stubZoneService
	bindings    *stubBindingService
	access      *stubAccess
}

func newTestServer(opts Options, entitySvc stubEntityService) *testServer {
	ts := &testServer{
		invitations: &stubInvitationService{},
		zones:       &stubZoneService{},
		bindings:    &stubBindingService{},
		access:      &stubAccess{decision: access.Allowed},
	}
	ts.handler = New(Services{
		Identity:    stubIdentityService{},
		Entities:    entitySvc,
		Personas:    stubPersonaService{},
		Invitations: ts.invitations,
		Zones:       ts.zones,
		Bindings:    ts.bindings,
		Access:      ts.access,
	}, opts).Routes()
	return ts
}

func (ts *testServer) do(method, target string, body any, authed bool) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	if authed {
		req.Header.Set("Authorization", "Bearer "+sessionToken)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return resp
}

func TestResolveInvitationWithoutSession(t *testing.T) {
	ts := newTestServer(Options{}, stubEntityService{})
	ts.invitations.view = models.InvitationView{EntityName: "The Lantern", Status: models.InvitationPending}

	rec := ts.do(http.MethodGet, "/accept-invitation?token=abc.def.ghi", nil, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ts.invitations.resolved.Token != "abc.def.ghi" {
		t.Fatalf("expected token forwarded, got %+v", ts.invitations.resolved)
	}

	var view models.InvitationView
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.EntityName != "The Lantern" {
		t.Fatalf("unexpected view %+v", view)
	}
}

func TestResolveInvitationLegacyQuery(t *testing.T) {
	ts := newTestServer(Options{}, stubEntityService{})
	entityID := uuid.New()

	rec := ts.do(http.MethodGet, "/accept-invitation?email=guest%40example.com&entity_id="+entityID.String(), nil, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ts.invitations.resolved.Email != "guest@example.com" || ts.invitations.resolved.EntityID != entityID {
		t.Fatalf("unexpected query %+v", ts.invitations.resolved)
	}

	rec = ts.do(http.MethodGet, "/accept-invitation?email=guest%40example.com&entity_id=nope", nil, false)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a malformed entity id, got %d", rec.Code)
	}
}

func TestResolveInvitationRateLimited(t *testing.T) {
	ts := newTestServer(Options{ResolveLimiter: middleware.NewRateLimiter(0.001, 1)}, stubEntityService{})

	if rec := ts.do(http.MethodGet, "/accept-invitation?token=a", nil, false); rec.Code != http.StatusOK {
		t.Fatalf("expected first lookup to pass, got %d", rec.Code)
	}
	if rec := ts.do(http.MethodGet, "/accept-invitation?token=a", nil, false); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
}

func TestAcceptInvitationRequiresSession(t *testing.T) {
	ts := newTestServer(Options{}, stubEntityService{})
	target := "/api/v1/invitations/" + uuid.NewString() + "/accept"

	rec := ts.do(http.MethodPost, target, nil, false)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	ts.invitations.membership = models.TeamMembership{ID: uuid.New(), Access: models.AccessEditor}
	rec = ts.do(http.MethodPost, target, nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ts.invitations.acceptedBy.ID != testUser.ID {
		t.Fatalf("expected session user to accept, got %+v", ts.invitations.acceptedBy)
	}
}

func TestAcceptInvitationErrorStatuses(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "expired", err: apperr.Expired("invitation has expired"), status: http.StatusGone, code: "expired"},
		{name: "processed", err: apperr.AlreadyProcessed("invitation has been revoked"), status: http.StatusConflict, code: "already_processed"},
		{name: "wrong account", err: apperr.PermissionDenied("different account"), status: http.StatusForbidden, code: "permission_denied"},
		{name: "missing", err: apperr.NotFound("invitation not found"), status: http.StatusNotFound, code: "not_found"},
		{name: "unclassified", err: errors.New("connection reset"), status: http.StatusInternalServerError, code: "internal"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(Options{}, stubEntityService{})
			ts.invitations.acceptErr = tc.err

			rec := ts.do(http.MethodPost, "/api/v1/invitations/"+uuid.NewString()+"/accept", nil, true)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rec.Code)
			}
			if resp := decodeError(t, rec); resp.Code != tc.code {
				t.Fatalf("expected code %q, got %q", tc.code, resp.Code)
			}
		})
	}
}

func TestCreateInvitation(t *testing.T) {
	ts := newTestServer(Options{}, stubEntityService{})
	entityID := uuid.New()

	rec := ts.do(http.MethodPost, "/api/v1/invitations", map[string]any{
		"entity_id":   entityID,
		"access":      "editor",
		"email":       "guest@example.com",
		"role_labels": []string{"Sound"},
	}, true)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if ts.invitations.created.Access != models.AccessEditor || ts.invitations.created.EntityID != entityID {
		t.Fatalf("unexpected input %+v", ts.invitations.created)
	}

	ts.invitations.createErr = apperr.PermissionDenied("permission denied")
	rec = ts.do(http.MethodPost, "/api/v1/invitations", map[string]any{"entity_id": entityID, "access": "viewer", "email": "x@example.com"}, true)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}

	rec = ts.do(http.MethodPost, "/api/v1/invitations", map[string]any{"entity_id": entityID, "access": "superuser"}, true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an unknown access level, got %d", rec.Code)
	}
}

func TestSignUpHidesConfirmationToken(t *testing.T) {
	body := map[string]string{"email": "crew@example.com", "password": "long-enough-password"}

	ts := newTestServer(Options{}, stubEntityService{})
	rec := ts.do(http.MethodPost, "/api/v1/auth/signup", body, false)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if bytes.Contains(rec.Body.Bytes(), []byte("confirm-me")) {
		t.Fatalf("confirmation token leaked: %s", rec.Body.String())
	}

	ts = newTestServer(Options{ExposeConfirmationTokens: true}, stubEntityService{})
	rec = ts.do(http.MethodPost, "/api/v1/auth/signup", body, false)
	if !bytes.Contains(rec.Body.Bytes(), []byte("confirm-me")) {
		t.Fatalf("expected confirmation token in development mode: %s", rec.Body.String())
	}
}

func TestGetEntityErrors(t *testing.T) {
	ts := newTestServer(Options{}, stubEntityService{getErr: apperr.PermissionDenied("permission denied")})

	if rec := ts.do(http.MethodGet, "/api/v1/entities/not-a-uuid", nil, true); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if rec := ts.do(http.MethodGet, "/api/v1/entities/"+uuid.NewString(), nil, true); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestMoveZoneAssignment(t *testing.T) {
	ts := newTestServer(Options{}, stubEntityService{})
	ts.zones.moved = true
	target := "/api/v1/zones/" + uuid.NewString() + "/move"

	rec := ts.do(http.MethodPost, target, map[string]any{"event_id": uuid.New(), "direction": "up"}, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ts.zones.direction != zones.Up {
		t.Fatalf("expected up, got %d", ts.zones.direction)
	}

	rec = ts.do(http.MethodPost, target, map[string]any{"event_id": uuid.New(), "direction": "sideways"}, true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCheckAccess(t *testing.T) {
	ts := newTestServer(Options{}, stubEntityService{})
	ts.access.decision = access.Denied
	eventID := uuid.New()

	rec := ts.do(http.MethodGet, "/api/v1/access?action=edit&kind=lineup&id="+eventID.String(), nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Allowed  bool   `json:"allowed"`
		Decision string `json:"decision"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Allowed || resp.Decision != "denied" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if ts.access.target != access.Lineup(eventID) {
		t.Fatalf("unexpected target %+v", ts.access.target)
	}

	if rec := ts.do(http.MethodGet, "/api/v1/access?action=delete&kind=entity&id="+eventID.String(), nil, true); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an unknown action, got %d", rec.Code)
	}
}

func TestCreditRoutes(t *testing.T) {
	ts := newTestServer(Options{}, stubEntityService{})
	entityID, personaID := uuid.New(), uuid.New()
	target := "/api/v1/entities/" + entityID.String() + "/credits/" + personaID.String()

	rec := ts.do(http.MethodPut, target, map[string]any{"is_public": true, "role_label": "Keys"}, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	saved := ts.bindings.saved
	if saved.EntityID != entityID || saved.PersonaID != personaID || !saved.IsPublic || saved.RoleLabel != "Keys" {
		t.Fatalf("unexpected binding %+v", saved)
	}

	ts.bindings.setErr = apperr.PermissionDenied("requires admin access")
	if rec := ts.do(http.MethodPut, target, map[string]any{"is_public": false}, true); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if rec := ts.do(http.MethodDelete, target, nil, true); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec = ts.do(http.MethodGet, "/api/v1/entities/"+entityID.String()+"/credits", nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte(`"credits":[]`)) {
		t.Fatalf("expected an empty credits array, got %s", rec.Body.String())
	}
	if rec := ts.do(http.MethodGet, "/api/v1/entities/"+entityID.String()+"/credits", nil, false); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a session, got %d", rec.Code)
	}
}
