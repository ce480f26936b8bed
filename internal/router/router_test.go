package router

import (
	"bytes"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/time-estimator/internal/model"
)

// switchableSession is a CurrentUser the test can sign in and out.
type switchableSession struct {
	mu   sync.Mutex
	user *model.User
}

func (s *switchableSession) User() *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user.Clone()
}

func (s *switchableSession) set(u *model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = u
}

func guardedRouter(s CurrentUser) *Router {
	r := New(To(Login))
	r.BeforeEach(RequireSession(s))
	return r
}

// =========================================================================
// SESSION GUARD
// =========================================================================

func TestRequireSession_SignedOutIsRedirectedToLogin(t *testing.T) {
	targets := []Location{
		To(Home),
		To(MyTeam),
		To(MemberDetail, ParamID, "m1"),
	}
	for _, to := range targets {
		t.Run(string(to.Name), func(t *testing.T) {
			r := guardedRouter(&switchableSession{})

			nav, err := r.Push(to)
			require.NoError(t, err)
			assert.True(t, nav.Redirected)
			assert.Equal(t, to, nav.Requested)
			assert.Equal(t, Login, nav.To.Name)
			assert.Equal(t, Login, r.Current().Name)
		})
	}
}

func TestRequireSession_LoginIsAlwaysAllowed(t *testing.T) {
	r := guardedRouter(&switchableSession{})

	nav, err := r.Push(To(Login))
	require.NoError(t, err)
	assert.False(t, nav.Redirected)
	assert.Equal(t, Login, nav.To.Name)
}

func TestRequireSession_SignedInGoesWhereAsked(t *testing.T) {
	s := &switchableSession{user: &model.User{ID: "u1"}}
	r := guardedRouter(s)

	to := To(MemberDetail, ParamID, "m1")
	nav, err := r.Push(to)
	require.NoError(t, err)
	assert.False(t, nav.Redirected)
	assert.Equal(t, to, r.Current())
}

func TestRequireSession_EvaluatedOnEveryNavigation(t *testing.T) {
	s := &switchableSession{}
	r := guardedRouter(s)

	nav, _ := r.Push(To(MyTeam))
	assert.True(t, nav.Redirected)

	s.set(&model.User{ID: "u1"})
	nav, _ = r.Push(To(MyTeam))
	assert.False(t, nav.Redirected)
	assert.Equal(t, MyTeam, r.Current().Name)

	s.set(nil)
	nav, _ = r.Push(To(MyTeam))
	assert.True(t, nav.Redirected)

	// a repeated blocked navigation is redirected again
	nav, _ = r.Push(To(MyTeam))
	assert.True(t, nav.Redirected)
}

// =========================================================================
// ROUTER MECHANICS
// =========================================================================

func TestPush_FirstRedirectWins(t *testing.T) {
	r := New(To(Home))
	var calls []string
	r.BeforeEach(func(to, _ Location) *Location {
		calls = append(calls, "first:"+string(to.Name))
		if to.Name == MemberDetail {
			loc := To(MyTeam)
			return &loc
		}
		return nil
	})
	r.BeforeEach(func(to, _ Location) *Location {
		calls = append(calls, "second:"+string(to.Name))
		if to.Name == MemberDetail {
			loc := To(Login)
			return &loc
		}
		return nil
	})

	nav, err := r.Push(To(MemberDetail, ParamID, "m1"))
	require.NoError(t, err)
	assert.Equal(t, MyTeam, nav.To.Name)
	// the second guard never saw member-detail; the redirect target went
	// through both guards
	assert.Equal(t, []string{"first:member-detail", "first:my-team", "second:my-team"}, calls)
}

func TestPush_GuardReceivesFrom(t *testing.T) {
	r := New(To(MyTeam))
	var from Location
	r.BeforeEach(func(_, f Location) *Location {
		from = f
		return nil
	})

	_, err := r.Push(To(Login))
	require.NoError(t, err)
	assert.Equal(t, MyTeam, from.Name)
}

func TestPush_RedirectLoop(t *testing.T) {
	r := New(To(Home))
	r.BeforeEach(func(to, _ Location) *Location {
		next := To(MyTeam)
		if to.Name == MyTeam {
			next = To(Login)
		}
		return &next
	})

	_, err := r.Push(To(Home))
	assert.True(t, errors.Is(err, ErrRedirectLoop))
	assert.Equal(t, Home, r.Current().Name)
}

func TestRedirectToLogin_LoopIsLogged(t *testing.T) {
	var logs bytes.Buffer
	r := New(To(MyTeam), WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	// a broken guard that never lets anyone reach login
	r.BeforeEach(func(to, _ Location) *Location {
		next := To(MyTeam)
		if to.Name == MyTeam {
			next = To(Login)
		}
		return &next
	})

	r.RedirectToLogin()

	assert.Equal(t, MyTeam, r.Current().Name)
	assert.Contains(t, logs.String(), "redirect to login failed")
	assert.Contains(t, logs.String(), ErrRedirectLoop.Error())
}

func TestOnNavigate(t *testing.T) {
	r := guardedRouter(&switchableSession{})
	var seen []Navigation
	cancel := r.OnNavigate(func(n Navigation) { seen = append(seen, n) })

	r.Push(To(MyTeam))
	r.RedirectToLogin()
	cancel()
	r.Push(To(MyTeam))

	require.Len(t, seen, 2)
	assert.True(t, seen[0].Redirected)
	assert.Equal(t, MyTeam, seen[0].Requested.Name)
	assert.False(t, seen[1].Redirected)
	assert.Equal(t, Login, seen[1].To.Name)
	assert.False(t, seen[1].At.IsZero())
}

func TestListenerMayReadCurrent(t *testing.T) {
	r := New(To(Home))
	var current Location
	r.OnNavigate(func(Navigation) { current = r.Current() })

	r.Push(To(Login))
	assert.Equal(t, Login, current.Name)
}

// =========================================================================
// PATHS
// =========================================================================

func TestLocationPath(t *testing.T) {
	tests := []struct {
		loc  Location
		want string
	}{
		{To(Login), "/login"},
		{To(Home), "/"},
		{To(MyTeam), "/mi-equipo"},
		{To(MemberDetail, ParamID, "m1"), "/detalle-de-miembro/m1"},
		{To(MemberDetail, ParamID, "a b"), "/detalle-de-miembro/a%20b"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.loc.Path())
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		path string
		want Location
		ok   bool
	}{
		{"/", To(Home), true},
		{"/login", To(Login), true},
		{"/login/github/callback", To(Login), true},
		{"/mi-equipo", To(MyTeam), true},
		{"/mi-equipo/", To(MyTeam), true},
		{"/mi-equipo/members/m1", To(MyTeam), true},
		{"/detalle-de-miembro/m1", To(MemberDetail, ParamID, "m1"), true},
		{"/detalle-de-miembro/m1/history", To(MemberDetail, ParamID, "m1"), true},
		{"/detalle-de-miembro/a%20b", To(MemberDetail, ParamID, "a b"), true},
		{"/detalle-de-miembro", Location{}, false},
		{"/metrics", Location{}, false},
		{"/ws", Location{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := Resolve(tt.path)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
