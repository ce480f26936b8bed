package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/time-estimator/internal/model"
	"github.com/sakif/time-estimator/internal/router"
)

const oauthStateCookie = "oauth_state"

// Authenticator is the part of auth.Provider the login pages drive.
type Authenticator interface {
	SignUp(ctx context.Context, email, displayName, password string) (*model.User, error)
	SignInWithPassword(ctx context.Context, email, password string) (*model.User, error)
	SignInWithGitHub(ctx context.Context, code string) (*model.User, error)
	GitHubEnabled() bool
	GitHubAuthURL(state string) (string, error)
	SignOut()
}

// SessionWriter is the part of session.Store the login pages write to.
type SessionWriter interface {
	User() *model.User
	SetUser(u *model.User) error
}

// AuthHandler serves the login page and its sign-in flows.
//
// HANDLER RESPONSIBILITIES:
//   - HandleLoginState      → who is signed in, which providers are enabled
//   - HandleLogin           → password sign-in
//   - HandleSignUp          → create a password account and sign in
//   - HandleGitHubLogin     → redirect the browser to GitHub
//   - HandleGitHubCallback  → finish the GitHub flow
//   - HandleLogout          → end the session
//
// A successful sign-in is written to the session store and followed by a
// navigation to my-team, exactly like the login page does after the
// provider answers.
type AuthHandler struct {
	auth    Authenticator
	session SessionWriter
	router  *router.Router
	logger  *slog.Logger
}

func NewAuthHandler(auth Authenticator, session SessionWriter, r *router.Router, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:    auth,
		session: session,
		router:  r,
		logger:  logger,
	}
}

// SessionView is a signed-in user as the API shows it. The token stays on
// the server.
type SessionView struct {
	ID          string    `json:"id"`
	Email       string    `json:"email,omitempty"`
	DisplayName string    `json:"displayName,omitempty"`
	AvatarURL   string    `json:"avatarUrl,omitempty"`
	Provider    string    `json:"provider"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

func newSessionView(u *model.User) *SessionView {
	if u == nil {
		return nil
	}
	return &SessionView{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
		Provider:    u.Provider,
		ExpiresAt:   u.ExpiresAt,
	}
}

type LoginState struct {
	SignedIn  bool         `json:"signedIn"`
	User      *SessionView `json:"user,omitempty"`
	Providers []string     `json:"providers"`
}

// LoginResponse answers a successful sign-in: who is signed in and where
// navigation went.
type LoginResponse struct {
	User     *SessionView `json:"user"`
	Redirect string       `json:"redirect"`
}

// HandleLoginState reports the session and the enabled sign-in providers.
//
// HTTP: GET /login
func (h *AuthHandler) HandleLoginState(w http.ResponseWriter, r *http.Request) {
	user := h.session.User()
	providers := []string{model.ProviderPassword}
	if h.auth.GitHubEnabled() {
		providers = append(providers, model.ProviderGitHub)
	}
	writeJSON(w, http.StatusOK, LoginState{
		SignedIn:  user != nil,
		User:      newSessionView(user),
		Providers: providers,
	})
}

type loginRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName,omitempty"`
}

// HandleLogin signs in with email and password.
//
// HTTP: POST /login
// REQUEST BODY: {"email": "...", "password": "..."}
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.auth.SignInWithPassword(r.Context(), req.Email, req.Password)
	if err != nil {
		h.logger.InfoContext(r.Context(), "password sign-in rejected", slog.String("error", err.Error()))
		writeError(w, h.logger, r, err)
		return
	}
	h.completeSignIn(w, r, user, http.StatusOK)
}

// HandleSignUp creates a password account and signs it in.
//
// HTTP: POST /login/signup
// REQUEST BODY: {"email": "...", "password": "...", "displayName": "..."}
func (h *AuthHandler) HandleSignUp(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.auth.SignUp(r.Context(), req.Email, req.DisplayName, req.Password)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	h.completeSignIn(w, r, user, http.StatusCreated)
}

// HandleGitHubLogin redirects the user to GitHub's authorization page.
//
// HTTP: GET /login/github
//
// CSRF PROTECTION VIA STATE:
// A random state goes into a short-lived HttpOnly cookie and into the
// authorization URL. The callback only proceeds when both match.
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()
	authURL, err := h.auth.GitHubAuthURL(state)
	if err != nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{
			Error:   "provider_disabled",
			Message: "GitHub sign-in is not enabled",
		})
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/login",
		MaxAge:   600, // 10 minutes
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, authURL, http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes the GitHub sign-in.
//
// HTTP: GET /login/github/callback?code=xxx&state=yyy
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || stateCookie.Value == "" || r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.WarnContext(r.Context(), "github callback: invalid state")
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_state",
			Message: "invalid OAuth state",
		})
		return
	}

	// single use
	http.SetCookie(w, &http.Cookie{
		Name:   oauthStateCookie,
		Value:  "",
		Path:   "/login",
		MaxAge: -1,
	})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.InfoContext(r.Context(), "github callback: authorization denied", slog.String("error", errParam))
		http.Redirect(w, r, router.To(router.Login).Path()+"?auth=denied", http.StatusSeeOther)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "missing OAuth code",
		})
		return
	}

	user, err := h.auth.SignInWithGitHub(r.Context(), code)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	nav := h.signedIn(r, user)
	http.Redirect(w, r, nav, http.StatusSeeOther)
}

// HandleLogout ends the session.
//
// HTTP: POST /logout
//
// The handler only tells the provider. The session store hears about it
// from the provider's notification, clears itself and sends navigation to
// the login page, the same path an expired token takes.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.auth.SignOut()
	writeJSON(w, http.StatusOK, map[string]string{
		"message":  "signed out",
		"redirect": router.To(router.Login).Path(),
	})
}

func (h *AuthHandler) completeSignIn(w http.ResponseWriter, r *http.Request, user *model.User, status int) {
	redirect := h.signedIn(r, user)
	writeJSON(w, status, LoginResponse{
		User:     newSessionView(user),
		Redirect: redirect,
	})
}

// signedIn stores user in the session and navigates to my-team. It returns
// the path navigation ended on.
func (h *AuthHandler) signedIn(r *http.Request, user *model.User) string {
	if err := h.session.SetUser(user); err != nil {
		// the in-memory session is set; only the restart copy is missing
		h.logger.WarnContext(r.Context(), "persisting session", slog.String("error", err.Error()))
	}

	nav, err := h.router.Push(router.To(router.MyTeam))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "navigating after sign-in", slog.String("error", err.Error()))
		return router.To(router.MyTeam).Path()
	}
	return nav.To.Path()
}
