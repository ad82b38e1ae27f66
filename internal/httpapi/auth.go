package httpapi

import (
	"net/http"
	"time"

	"backstage/shared/go/middleware"
	"backstage/shared/go/models"
)

type credentialsRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	RedirectURL string `json:"redirect_url"`
}

type confirmRequest struct {
	Token string `json:"token"`
}

type sessionResponse struct {
	Token       string      `json:"token"`
	ExpiresAt   time.Time   `json:"expires_at"`
	User        models.User `json:"user"`
	RedirectURL string      `json:"redirect_url,omitempty"`
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	signup, err := s.identity.SignUp(r.Context(), req.Email, req.Password, req.RedirectURL)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := struct {
		User              models.User `json:"user"`
		ConfirmationToken string      `json:"confirmation_token,omitempty"`
	}{User: signup.User}
	if s.opts.ExposeConfirmationTokens {
		resp.ConfirmationToken = signup.ConfirmationToken
	}
	writeJSON(w, http.StatusCreated, resp)
}

// handleConfirmEmail finishes sign-up and signs the user in. The stored
// redirect URL is returned so an invitation link survives the round trip.
func (s *Server) handleConfirmEmail(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	conf, err := s.identity.ConfirmEmail(r.Context(), req.Token)
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.setSessionCookie(w, conf.Session)
	writeJSON(w, http.StatusOK, sessionResponse{
		Token:       conf.Session.Token,
		ExpiresAt:   conf.Session.ExpiresAt,
		User:        conf.User,
		RedirectURL: conf.RedirectURL,
	})
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	session, err := s.identity.SignInWithPassword(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	user, err := s.identity.CurrentUser(r.Context(), session.Token)
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.setSessionCookie(w, session)
	writeJSON(w, http.StatusOK, sessionResponse{Token: session.Token, ExpiresAt: session.ExpiresAt, User: user})
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	token := middleware.SessionToken(r)
	if token == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err := s.identity.SignOut(r.Context(), token); err != nil {
		writeError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) setSessionCookie(w http.ResponseWriter, session models.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   s.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}
