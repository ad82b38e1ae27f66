package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"backstage/internal/apperr"
)

func TestAccessLevelOrdering(t *testing.T) {
	tests := []struct {
		have, need AccessLevel
		want       bool
	}{
		{AccessOwner, AccessAdmin, true},
		{AccessAdmin, AccessAdmin, true},
		{AccessEditor, AccessAdmin, false},
		{AccessViewer, AccessViewer, true},
		{AccessNone, AccessViewer, false},
	}
	for _, tt := range tests {
		if got := tt.have.AtLeast(tt.need); got != tt.want {
			t.Errorf("%s.AtLeast(%s) = %v, want %v", tt.have, tt.need, got, tt.want)
		}
	}

	if MaxAccess(AccessViewer, AccessAdmin) != AccessAdmin {
		t.Fatalf("expected admin to win")
	}
	if AccessOwner.Invitable() || AccessNone.Invitable() {
		t.Fatalf("owner and none must not be invitable")
	}

	for have, want := range map[AccessLevel]AccessLevel{
		AccessOwner:  AccessEditor,
		AccessAdmin:  AccessEditor,
		AccessEditor: AccessEditor,
		AccessViewer: AccessViewer,
		AccessNone:   AccessNone,
	} {
		if got := have.CappedAt(AccessEditor); got != want {
			t.Errorf("%s.CappedAt(editor) = %s, want %s", have, got, want)
		}
	}
}

func TestAccessLevelJSON(t *testing.T) {
	var body struct {
		Access AccessLevel `json:"access"`
	}
	if err := json.Unmarshal([]byte(`{"access":"Editor"}`), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Access != AccessEditor {
		t.Fatalf("expected editor, got %s", body.Access)
	}
	if err := json.Unmarshal([]byte(`{"access":"root"}`), &body); err == nil {
		t.Fatalf("expected error for unknown level")
	}

	out, err := json.Marshal(struct {
		Access AccessLevel `json:"access"`
	}{AccessAdmin})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"access":"admin"}` {
		t.Fatalf("unexpected json %s", out)
	}

	if _, err := AccessNone.Value(); err == nil {
		t.Fatalf("expected none to be rejected as a stored value")
	}
}

func TestDecideAccept(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	user := uuid.New()
	other := uuid.New()

	pending := Invitation{
		Status:    InvitationPending,
		Email:     "guest@example.com",
		ExpiresAt: now.Add(time.Hour),
	}
	accepted := pending
	accepted.Status = InvitationAccepted
	accepted.AcceptedBy = uuid.NullUUID{UUID: user, Valid: true}
	revoked := pending
	revoked.Status = InvitationRevoked
	expired := pending
	expired.ExpiresAt = now.Add(-time.Second)
	addressed := pending
	addressed.InvitedUserID = uuid.NullUUID{UUID: other, Valid: true}

	tests := []struct {
		name    string
		inv     Invitation
		want    AcceptAction
		wantErr error
	}{
		{name: "pending", inv: pending, want: AcceptGrant},
		{name: "accepted by same user", inv: accepted, want: AcceptReconfirm},
		{name: "revoked", inv: revoked, wantErr: apperr.ErrAlreadyProcessed},
		{name: "expired", inv: expired, wantErr: apperr.ErrExpired},
		{name: "addressed to another user", inv: addressed, wantErr: apperr.ErrPermissionDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecideAccept(tt.inv, user, now)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected action %d, got %d", tt.want, got)
			}
		})
	}

	if _, err := DecideAccept(accepted, other, now); !errors.Is(err, apperr.ErrAlreadyProcessed) {
		t.Fatalf("expected another user to be refused, got %v", err)
	}
}

func TestInvitationEffectiveStatus(t *testing.T) {
	now := time.Now()
	inv := Invitation{Status: InvitationPending, ExpiresAt: now.Add(-time.Minute)}
	if inv.EffectiveStatus(now) != InvitationExpired {
		t.Fatalf("expected stale pending invitation to read as expired")
	}
	inv.Status = InvitationRevoked
	if inv.EffectiveStatus(now) != InvitationRevoked {
		t.Fatalf("expected revoked to stay revoked")
	}
	if !(Invitation{Email: "Guest@Example.com"}).AddressedTo(uuid.New(), " guest@example.com") {
		t.Fatalf("expected email match to ignore case")
	}
}

func TestEntityKind(t *testing.T) {
	if KindOf(EntityTypeVenue, false) != KindHost {
		t.Fatalf("venues are hosts")
	}
	if KindOf(EntityTypeBand, false) != KindProject {
		t.Fatalf("bands are projects by default")
	}
	if KindOf(EntityTypeSolo, true) != KindHost {
		t.Fatalf("organizer flag makes a host")
	}
}
