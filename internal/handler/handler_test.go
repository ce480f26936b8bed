package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/time-estimator/internal/auth"
	"github.com/sakif/time-estimator/internal/docstore"
	"github.com/sakif/time-estimator/internal/feed"
	"github.com/sakif/time-estimator/internal/handler"
	"github.com/sakif/time-estimator/internal/model"
	"github.com/sakif/time-estimator/internal/repository"
	"github.com/sakif/time-estimator/internal/router"
	"github.com/sakif/time-estimator/internal/service"
	"github.com/sakif/time-estimator/internal/session"
)

// app is the real stack on an in-memory store, without the middleware:
// these tests are about what the handlers answer once a request reaches them.
type app struct {
	mux      http.Handler
	provider *auth.Provider
	session  *session.Store
	router   *router.Router
	store    *docstore.Memory
}

func newApp(t *testing.T) *app {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	// every insert is a minute after the previous one, so "newest first" is
	// well defined
	var ticks atomic.Int64
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	store := docstore.NewMemory(docstore.WithClock(func() time.Time {
		return start.Add(time.Duration(ticks.Add(1)) * time.Minute)
	}))

	tokens, err := auth.NewTokenService("handler-test-secret-0123456789", auth.DefaultTokenTTL)
	require.NoError(t, err)
	provider := auth.NewProvider(auth.ProviderConfig{
		Accounts:  repository.NewAccounts(store),
		Passwords: auth.NewPasswordService(bcrypt.MinCost),
		Tokens:    tokens,
		Logger:    logger,
	})
	t.Cleanup(provider.Close)

	rt := router.New(router.To(router.Login))
	sess := session.Open(context.Background(), session.Options{
		Cache:     session.NewFileCache(filepath.Join(t.TempDir(), "session.json")),
		Provider:  provider,
		Navigator: rt,
		Logger:    logger,
	})
	t.Cleanup(sess.Close)
	rt.BeforeEach(router.RequireSession(sess))

	members := repository.NewMembers(store, sess)
	history := repository.NewHistoryRegistries(store)

	authH := handler.NewAuthHandler(provider, sess, rt, logger)
	teamH := handler.NewTeamHandler(service.NewTeamService(members, history, sess, logger), logger)
	memberH := handler.NewMemberHandler(service.NewMemberService(members, history, sess, logger), logger)

	r := chi.NewRouter()
	r.Get("/login", authH.HandleLoginState)
	r.Post("/login", authH.HandleLogin)
	r.Post("/login/signup", authH.HandleSignUp)
	r.Get("/login/github", authH.HandleGitHubLogin)
	r.Get("/login/github/callback", authH.HandleGitHubCallback)
	r.Post("/logout", authH.HandleLogout)
	r.Get("/", teamH.HandleHome)
	r.Get("/mi-equipo", teamH.HandleOverview)
	r.Post("/mi-equipo/members", teamH.HandleCreateMember)
	r.Delete("/mi-equipo/members/{id}", teamH.HandleDeleteMember)
	r.Get("/detalle-de-miembro/{id}", memberH.HandleDetail)
	r.Post("/detalle-de-miembro/{id}/history", memberH.HandleAddRegistry)
	r.Delete("/detalle-de-miembro/{id}/history/{registryID}", memberH.HandleDeleteRegistry)
	r.Get("/detalle-de-miembro/{id}/estimate", memberH.HandleEstimate)

	hubCtx, stopHub := context.WithCancel(context.Background())
	hub := feed.NewHub(logger, nil)
	go hub.Run(hubCtx)
	t.Cleanup(stopHub)
	rt.OnNavigate(hub.PublishNavigation)
	r.Get("/ws", handler.NewFeedHandler(hub, sess, nil, logger).Serve)

	return &app{mux: r, provider: provider, session: sess, router: rt, store: store}
}

func (a *app) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	a.mux.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v), rr.Body.String())
	return v
}

// signUp creates an account through the API and returns its user id.
func (a *app) signUp(t *testing.T, email string) string {
	t.Helper()
	rr := a.do(t, http.MethodPost, "/login/signup",
		`{"email":"`+email+`","password":"correct horse"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decode[handler.LoginResponse](t, rr).User.ID
}

// =========================================================================
// LOGIN
// =========================================================================

func TestLoginFlow(t *testing.T) {
	a := newApp(t)

	t.Run("signed out state", func(t *testing.T) {
		rr := a.do(t, http.MethodGet, "/login", "")
		require.Equal(t, http.StatusOK, rr.Code)
		state := decode[handler.LoginState](t, rr)
		assert.False(t, state.SignedIn)
		assert.Equal(t, []string{model.ProviderPassword}, state.Providers)
	})

	t.Run("sign up signs in and navigates to my-team", func(t *testing.T) {
		rr := a.do(t, http.MethodPost, "/login/signup",
			`{"email":"Ana@Example.com","password":"correct horse","displayName":"Ana"}`)
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

		resp := decode[handler.LoginResponse](t, rr)
		assert.Equal(t, "/mi-equipo", resp.Redirect)
		assert.Equal(t, "ana@example.com", resp.User.Email)
		assert.NotContains(t, rr.Body.String(), "token")
		require.NotNil(t, a.session.User())
		assert.Equal(t, router.MyTeam, a.router.Current().Name)
	})

	t.Run("logout clears the session and goes to login", func(t *testing.T) {
		rr := a.do(t, http.MethodPost, "/logout", "")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Nil(t, a.session.User())
		assert.Equal(t, router.Login, a.router.Current().Name)
	})

	t.Run("password sign in", func(t *testing.T) {
		rr := a.do(t, http.MethodPost, "/login", `{"email":"ana@example.com","password":"correct horse"}`)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		assert.Equal(t, "/mi-equipo", decode[handler.LoginResponse](t, rr).Redirect)

		state := decode[handler.LoginState](t, a.do(t, http.MethodGet, "/login", ""))
		assert.True(t, state.SignedIn)
		assert.Equal(t, "Ana", state.User.DisplayName)
	})

	t.Run("wrong password", func(t *testing.T) {
		rr := a.do(t, http.MethodPost, "/login", `{"email":"ana@example.com","password":"nope nope"}`)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Equal(t, "unauthenticated", decode[handler.ErrorResponse](t, rr).Error)
	})

	t.Run("duplicate sign up", func(t *testing.T) {
		rr := a.do(t, http.MethodPost, "/login/signup", `{"email":"ana@example.com","password":"correct horse"}`)
		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		rr := a.do(t, http.MethodPost, "/login", `{"email":`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "invalid_json", decode[handler.ErrorResponse](t, rr).Error)
	})
}

func TestGitHubLogin_Disabled(t *testing.T) {
	a := newApp(t)

	rr := a.do(t, http.MethodGet, "/login/github", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Empty(t, rr.Result().Cookies())
}

func TestGitHubCallback_RejectsBadState(t *testing.T) {
	a := newApp(t)

	tests := []struct {
		name   string
		cookie string
		query  string
	}{
		{"no cookie", "", "?state=abc&code=x"},
		{"mismatch", "abc", "?state=def&code=x"},
		{"no state param", "abc", "?code=x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/login/github/callback"+tt.query, nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "oauth_state", Value: tt.cookie})
			}
			rr := httptest.NewRecorder()
			a.mux.ServeHTTP(rr, req)

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, "invalid_state", decode[handler.ErrorResponse](t, rr).Error)
			assert.Nil(t, a.session.User())
		})
	}
}

func TestGitHubCallback_Denied(t *testing.T) {
	a := newApp(t)

	req := httptest.NewRequest(http.MethodGet, "/login/github/callback?state=abc&error=access_denied", nil)
	req.AddCookie(&http.Cookie{Name: "oauth_state", Value: "abc"})
	rr := httptest.NewRecorder()
	a.mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/login?auth=denied", rr.Header().Get("Location"))
}

// =========================================================================
// TEAM AND MEMBERS
// =========================================================================

func TestTeamAndMemberPages(t *testing.T) {
	a := newApp(t)
	a.signUp(t, "ana@example.com")

	rr := a.do(t, http.MethodPost, "/mi-equipo/members", `{"name":"Luis"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	member := decode[model.Member](t, rr)
	require.NotEmpty(t, member.ID)

	base := "/detalle-de-miembro/" + member.ID
	for _, body := range []string{
		`{"taskDificulty":2,"taskCompletitionTimeInMinutes":30}`,
		`{"taskDificulty":4,"taskCompletitionTimeInMinutes":70}`,
	} {
		rr := a.do(t, http.MethodPost, base+"/history", body)
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		reg := decode[model.HistoryRegistry](t, rr)
		assert.False(t, reg.CreatedAt.IsZero())
	}

	overview := decode[service.TeamOverview](t, a.do(t, http.MethodGet, "/mi-equipo", ""))
	assert.Len(t, overview.Members, 1)
	require.Len(t, overview.History, 2)
	assert.Equal(t, 70, overview.History[0].TaskCompletitionTimeInMinutes, "newest first")

	detail := decode[service.MemberDetail](t, a.do(t, http.MethodGet, base, ""))
	assert.Equal(t, "Luis", detail.Member.Name)
	assert.Equal(t, 2, detail.Stats.Registries)

	rr = a.do(t, http.MethodGet, base+"/estimate?difficulty=2", "")
	require.Equal(t, http.StatusOK, rr.Code)
	est := decode[service.Estimate](t, rr)
	assert.Equal(t, 30.0, est.Minutes)
	assert.Equal(t, service.BasisSameDifficulty, est.Basis)

	rr = a.do(t, http.MethodGet, base+"/estimate?difficulty=abc", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "difficulty", decode[handler.ErrorResponse](t, rr).Field)

	rr = a.do(t, http.MethodDelete, base+"/history/"+detail.History[0].ID, "")
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = a.do(t, http.MethodDelete, "/mi-equipo/members/"+member.ID, "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, http.StatusNotFound, a.do(t, http.MethodGet, base, "").Code)
}

func TestMemberOfAnotherUserIsForbidden(t *testing.T) {
	a := newApp(t)
	a.signUp(t, "ana@example.com")
	member := decode[model.Member](t, a.do(t, http.MethodPost, "/mi-equipo/members", `{"name":"Luis"}`))

	a.provider.SignOut()
	a.signUp(t, "bob@example.com")

	rr := a.do(t, http.MethodGet, "/detalle-de-miembro/"+member.ID, "")
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "forbidden", decode[handler.ErrorResponse](t, rr).Error)
}

func TestErrorMapping(t *testing.T) {
	a := newApp(t)

	t.Run("no session", func(t *testing.T) {
		rr := a.do(t, http.MethodGet, "/mi-equipo", "")
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	a.signUp(t, "ana@example.com")

	t.Run("validation", func(t *testing.T) {
		rr := a.do(t, http.MethodPost, "/mi-equipo/members", `{"name":"   "}`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "name", decode[handler.ErrorResponse](t, rr).Field)
	})

	t.Run("malformed record does not leak details", func(t *testing.T) {
		doc, err := a.store.Insert(context.Background(), model.CollectionMembers, docstore.Fields{
			model.FieldAuthorID: a.session.User().ID,
		})
		require.NoError(t, err)

		rr := a.do(t, http.MethodGet, "/mi-equipo", "")
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		resp := decode[handler.ErrorResponse](t, rr)
		assert.Equal(t, "malformed_record", resp.Error)
		assert.NotContains(t, resp.Message, doc.ID)
	})

	t.Run("store down", func(t *testing.T) {
		require.NoError(t, a.store.Close())

		rr := a.do(t, http.MethodGet, "/mi-equipo", "")
		assert.Equal(t, http.StatusBadGateway, rr.Code)
		assert.Equal(t, "remote_query_failed", decode[handler.ErrorResponse](t, rr).Error)
	})
}

func TestHome_RedirectsToMyTeam(t *testing.T) {
	a := newApp(t)

	rr := a.do(t, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/mi-equipo", rr.Header().Get("Location"))
}

// =========================================================================
// FEED
// =========================================================================

func TestFeed_RequiresSession(t *testing.T) {
	a := newApp(t)
	srv := httptest.NewServer(a.mux)
	t.Cleanup(srv.Close)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	a.signUp(t, "ana@example.com")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	conn.Close()
}
