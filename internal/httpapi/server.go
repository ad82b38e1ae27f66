package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"backstage/internal/access"
	"backstage/internal/app/entities"
	"backstage/internal/app/identity"
	"backstage/internal/app/invitations"
	"backstage/internal/app/zones"
	"backstage/internal/apperr"
	"backstage/internal/store"
	"backstage/internal/telemetry"
	"backstage/shared/go/logging"
	"backstage/shared/go/middleware"
	"backstage/shared/go/models"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// IdentityService captures the sign-up and session operations.
type IdentityService interface {
	SignUp(ctx context.Context, email, password, redirectURL string) (identity.Signup, error)
	ConfirmEmail(ctx context.Context, confirmationToken string) (identity.Confirmation, error)
	SignInWithPassword(ctx context.Context, email, password string) (models.Session, error)
	CurrentUser(ctx context.Context, sessionToken string) (models.User, error)
	SignOut(ctx context.Context, sessionToken string) error
}

// EntityService exposes entity workflows.
type EntityService interface {
	Create(ctx context.Context, actor uuid.UUID, entityType models.EntityType, name string, hostOrganizer bool) (models.Entity, error)
	Get(ctx context.Context, actor, id uuid.UUID) (models.Entity, error)
	PublicProfile(ctx context.Context, slug string) (entities.Profile, error)
	Update(ctx context.Context, actor, id uuid.UUID, patch store.EntityPatch) (models.Entity, error)
	SetPublished(ctx context.Context, actor, id uuid.UUID, published bool) (models.Entity, error)
	ListMine(ctx context.Context, scope models.PersonaScope) ([]models.Entity, error)
}

// PersonaService exposes persona workflows.
type PersonaService interface {
	Create(ctx context.Context, owner uuid.UUID, p models.Persona) (models.Persona, error)
	Get(ctx context.Context, viewer uuid.UUID, id uuid.UUID) (models.Persona, error)
	Update(ctx context.Context, owner, id uuid.UUID, patch store.PersonaPatch) (models.Persona, error)
	ListMine(ctx context.Context, owner uuid.UUID) ([]models.Persona, error)
	Scope(ctx context.Context, userID uuid.UUID, personaID uuid.NullUUID) (models.PersonaScope, error)
}

// TeamService exposes team administration.
type TeamService interface {
	List(ctx context.Context, actor, entityID uuid.UUID) ([]models.TeamMembership, error)
	UpdateAccess(ctx context.Context, actor, membershipID uuid.UUID, level models.AccessLevel) (models.TeamMembership, error)
	UpdateProfile(ctx context.Context, actor, membershipID uuid.UUID, personaID uuid.NullUUID, roleLabels []string) (models.TeamMembership, error)
	Remove(ctx context.Context, actor, membershipID uuid.UUID) error
	Leave(ctx context.Context, actor, membershipID uuid.UUID) error
}

// InvitationService exposes the invitation lifecycle.
type InvitationService interface {
	Create(ctx context.Context, actor uuid.UUID, in invitations.CreateInput) (models.Invitation, error)
	Resolve(ctx context.Context, q invitations.ResolveQuery) (models.InvitationView, error)
	AcceptAsUser(ctx context.Context, invitationID uuid.UUID, user models.User) (models.TeamMembership, error)
	Revoke(ctx context.Context, actor, invitationID uuid.UUID) error
	ListForEntity(ctx context.Context, actor, entityID uuid.UUID) ([]models.Invitation, error)
	ListMine(ctx context.Context, user models.User) ([]models.InvitationView, error)
}

// BindingService manages persona credits.
type BindingService interface {
	Set(ctx context.Context, actor uuid.UUID, b models.PersonaBinding) (models.PersonaBinding, error)
	Delete(ctx context.Context, actor, entityID, personaID uuid.UUID) error
	List(ctx context.Context, actor, entityID uuid.UUID) ([]models.Credit, error)
}

// EventService manages festivals and events.
type EventService interface {
	CreateFestival(ctx context.Context, actor uuid.UUID, hostEntityID uuid.UUID, name string) (models.Festival, error)
	CreateEvent(ctx context.Context, actor uuid.UUID, e models.Event) (models.Event, error)
	GetEvent(ctx context.Context, actor, id uuid.UUID) (models.Event, error)
	GetFestival(ctx context.Context, actor, id uuid.UUID) (models.Festival, error)
	ListFestivalEvents(ctx context.Context, actor, festivalID uuid.UUID) ([]models.Event, error)
}

// ZoneService manages participant zones.
type ZoneService interface {
	Set(ctx context.Context, actor uuid.UUID, w store.ZoneWrite) (models.ZoneAssignment, error)
	Remove(ctx context.Context, actor uuid.UUID, scope models.ZoneScope, assignmentID uuid.UUID) error
	Move(ctx context.Context, actor uuid.UUID, scope models.ZoneScope, assignmentID uuid.UUID, dir zones.Direction) (bool, error)
	EventLineup(ctx context.Context, actor, eventID uuid.UUID) (models.Lineup, error)
	FestivalZones(ctx context.Context, actor, festivalID uuid.UUID) ([]models.ZoneAssignment, error)
}

// AccessChecker answers permission questions for the UI.
type AccessChecker interface {
	Decide(ctx context.Context, userID uuid.UUID, action access.Action, target access.Target) access.Decision
}

// Services groups the dependencies of a Server.
type Services struct {
	Identity    IdentityService
	Entities    EntityService
	Personas    PersonaService
	Team        TeamService
	Invitations InvitationService
	Bindings    BindingService
	Events      EventService
	Zones       ZoneService
	Access      AccessChecker
}

// Options tunes the HTTP surface.
type Options struct {
	AllowedOrigins []string
	// ResolveLimiter throttles the public invitation lookup. Nil disables it.
	ResolveLimiter *middleware.RateLimiter
	// ExposeConfirmationTokens returns sign-up confirmation tokens in the
	// response body. Only for local development without a mail sender.
	ExposeConfirmationTokens bool
	// SecureCookies marks the session cookie Secure.
	SecureCookies bool
}

// Server wires HTTP handlers to the underlying services.
type Server struct {
	identity    IdentityService
	entities    EntityService
	personas    PersonaService
	team        TeamService
	invitations InvitationService
	bindings    BindingService
	events      EventService
	zones       ZoneService
	access      AccessChecker
	opts        Options
}

// New configures a Server with the given services.
func New(svc Services, opts Options) *Server {
	return &Server{
		identity:    svc.Identity,
		entities:    svc.Entities,
		personas:    svc.Personas,
		team:        svc.Team,
		invitations: svc.Invitations,
		bindings:    svc.Bindings,
		events:      svc.Events,
		zones:       svc.Zones,
		access:      svc.Access,
		opts:        opts,
	}
}

// Routes returns the complete handler, middleware included.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", telemetry.MetricsHandler())

	// Auth routes
	mux.HandleFunc("POST /api/v1/auth/signup", s.handleSignUp)
	mux.HandleFunc("POST /api/v1/auth/confirm", s.handleConfirmEmail)
	mux.HandleFunc("POST /api/v1/auth/signin", s.handleSignIn)
	mux.HandleFunc("POST /api/v1/auth/signout", s.handleSignOut)
	mux.HandleFunc("GET /api/v1/auth/me", s.handleMe)

	// Entity routes
	mux.HandleFunc("POST /api/v1/entities", s.handleCreateEntity)
	mux.HandleFunc("GET /api/v1/entities/mine", s.handleListMyEntities)
	mux.HandleFunc("GET /api/v1/entities/{id}", s.handleGetEntity)
	mux.HandleFunc("PATCH /api/v1/entities/{id}", s.handleUpdateEntity)
	mux.HandleFunc("PUT /api/v1/entities/{id}/published", s.handleSetPublished)
	mux.HandleFunc("GET /api/v1/public/entities/{slug}", s.handlePublicProfile)

	// Team routes
	mux.HandleFunc("GET /api/v1/entities/{id}/team", s.handleListTeam)
	mux.HandleFunc("PATCH /api/v1/team/{id}/access", s.handleUpdateMemberAccess)
	mux.HandleFunc("PATCH /api/v1/team/{id}/profile", s.handleUpdateMemberProfile)
	mux.HandleFunc("DELETE /api/v1/team/{id}", s.handleRemoveMember)
	mux.HandleFunc("POST /api/v1/team/{id}/leave", s.handleLeaveTeam)

	// Credit routes
	mux.HandleFunc("GET /api/v1/entities/{id}/credits", s.handleListCredits)
	mux.HandleFunc("PUT /api/v1/entities/{id}/credits/{personaID}", s.handleSetCredit)
	mux.HandleFunc("DELETE /api/v1/entities/{id}/credits/{personaID}", s.handleDeleteCredit)

	// Persona routes
	mux.HandleFunc("POST /api/v1/personas", s.handleCreatePersona)
	mux.HandleFunc("GET /api/v1/personas", s.handleListMyPersonas)
	mux.HandleFunc("GET /api/v1/personas/{id}", s.handleGetPersona)
	mux.HandleFunc("PATCH /api/v1/personas/{id}", s.handleUpdatePersona)

	// Invitation routes
	mux.HandleFunc("POST /api/v1/invitations", s.handleCreateInvitation)
	mux.HandleFunc("GET /api/v1/invitations/mine", s.handleListMyInvitations)
	mux.HandleFunc("GET /api/v1/entities/{id}/invitations", s.handleListEntityInvitations)
	mux.HandleFunc("DELETE /api/v1/invitations/{id}", s.handleRevokeInvitation)
	mux.HandleFunc("POST /api/v1/invitations/{id}/accept", s.handleAcceptInvitation)
	resolve := http.Handler(http.HandlerFunc(s.handleResolveInvitation))
	if s.opts.ResolveLimiter != nil {
		resolve = middleware.RateLimit(s.opts.ResolveLimiter)(resolve)
	}
	mux.Handle("GET "+invitations.AcceptPath, resolve)
	mux.Handle("GET /api/v1/invitations/resolve", resolve)

	// Festival and event routes
	mux.HandleFunc("POST /api/v1/festivals", s.handleCreateFestival)
	mux.HandleFunc("GET /api/v1/festivals/{id}", s.handleGetFestival)
	mux.HandleFunc("GET /api/v1/festivals/{id}/events", s.handleListFestivalEvents)
	mux.HandleFunc("GET /api/v1/festivals/{id}/zones", s.handleFestivalZones)
	mux.HandleFunc("POST /api/v1/events", s.handleCreateEvent)
	mux.HandleFunc("GET /api/v1/events/{id}", s.handleGetEvent)
	mux.HandleFunc("GET /api/v1/events/{id}/lineup", s.handleEventLineup)

	// Zone routes
	mux.HandleFunc("POST /api/v1/zones", s.handleSetZoneAssignment)
	mux.HandleFunc("DELETE /api/v1/zones/{id}", s.handleRemoveZoneAssignment)
	mux.HandleFunc("POST /api/v1/zones/{id}/move", s.handleMoveZoneAssignment)

	// Permission checks for the UI
	mux.HandleFunc("GET /api/v1/access", s.handleCheckAccess)

	return middleware.Chain(mux,
		middleware.RequestLogging(),
		middleware.Recovery(),
		middleware.CORS(s.opts.AllowedOrigins),
		middleware.Authenticate(s.identity),
	)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

// writeError maps service errors onto status codes. Unclassified errors are
// logged and reported as internal.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind, ok := apperr.KindOf(err)
	if !ok {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "request cancelled", Code: "cancelled"})
			return
		}
		logging.WithContext(r.Context()).Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:     "internal server error",
			Code:      "internal",
			RequestID: logging.RequestID(r.Context()),
		})
		return
	}

	msg := err.Error()
	var appErr *apperr.Error
	if errors.As(err, &appErr) && appErr.Message != "" {
		msg = appErr.Message
	}
	writeJSON(w, statusFor(kind), errorResponse{Error: msg, Code: string(kind)})
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindExpired:
		return http.StatusGone
	case apperr.KindAlreadyProcessed, apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindPermissionDenied:
		return http.StatusForbidden
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg, Code: string(apperr.KindValidation)})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON payload")
		return false
	}
	return true
}

// requireUser returns the session user or answers 401.
func requireUser(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "sign in required", Code: string(apperr.KindUnauthorized)})
		return models.User{}, false
	}
	return user, true
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		writeBadRequest(w, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// optionalUUID parses an optional id; empty input is a null id.
func optionalUUID(raw string) (uuid.NullUUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.NullUUID{}, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.NullUUID{}, err
	}
	return uuid.NullUUID{UUID: id, Valid: true}, nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
