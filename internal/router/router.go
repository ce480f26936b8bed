// Package router is the navigation model of the application: named routes,
// the current location, and the guards every navigation passes through.
//
// HOW A NAVIGATION WORKS:
//
//	r.Push(to)
//	  └─ every BeforeEach guard sees (to, from), in registration order
//	       - nil    → allow, ask the next guard
//	       - target → redirect: stop asking, navigate to target instead
//	  └─ the redirect target goes through the guards again
//	  └─ current location := final target, OnNavigate listeners are told
//
// Guards run synchronously on every Push and keep no memory between
// navigations: the same request is decided afresh each time.
//
// The HTTP layer drives the router through middleware.Navigation; the
// session store drives it through RedirectToLogin when a session ends.
package router

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Name identifies a route.
type Name string

const (
	Login        Name = "login"
	Home         Name = "navbar-layout"
	MyTeam       Name = "my-team"
	MemberDetail Name = "member-detail"
)

// ParamID is the member-detail path parameter.
const ParamID = "id"

// route paths
const (
	loginPath        = "/login"
	homePath         = "/"
	myTeamPath       = "/mi-equipo"
	memberDetailPath = "/detalle-de-miembro"
)

// maxRedirects bounds a chain of guard redirects.
const maxRedirects = 8

// ErrRedirectLoop is returned by Push when guards keep redirecting.
var ErrRedirectLoop = errors.New("router: too many redirects")

// Location is a route plus its parameters.
type Location struct {
	Name   Name              `json:"name"`
	Params map[string]string `json:"params,omitempty"`
}

// To builds a Location. Params are given as key, value pairs.
func To(name Name, params ...string) Location {
	loc := Location{Name: name}
	for i := 0; i+1 < len(params); i += 2 {
		if loc.Params == nil {
			loc.Params = make(map[string]string)
		}
		loc.Params[params[i]] = params[i+1]
	}
	return loc
}

// Path renders the location as a URL path.
func (l Location) Path() string {
	switch l.Name {
	case Login:
		return loginPath
	case MyTeam:
		return myTeamPath
	case MemberDetail:
		return memberDetailPath + "/" + url.PathEscape(l.Params[ParamID])
	default:
		return homePath
	}
}

func (l Location) String() string {
	return fmt.Sprintf("%s(%s)", l.Name, l.Path())
}

func (l Location) equal(o Location) bool {
	if l.Name != o.Name || len(l.Params) != len(o.Params) {
		return false
	}
	for k, v := range l.Params {
		if o.Params[k] != v {
			return false
		}
	}
	return true
}

// Resolve maps a URL path to the route that owns it. Sub-paths belong to
// their page: /mi-equipo/members is part of my-team and
// /login/github/callback is part of login.
//
// ok is false for paths outside the navigation model (/metrics, /ws, ...),
// and for /detalle-de-miembro without a member id.
func Resolve(path string) (Location, bool) {
	if path == "" || path == homePath {
		return To(Home), true
	}
	segments := strings.Split(strings.Trim(path, "/"), "/")

	switch "/" + segments[0] {
	case loginPath:
		return To(Login), true
	case myTeamPath:
		return To(MyTeam), true
	case memberDetailPath:
		if len(segments) < 2 || segments[1] == "" {
			return Location{}, false
		}
		id, err := url.PathUnescape(segments[1])
		if err != nil {
			return Location{}, false
		}
		return To(MemberDetail, ParamID, id), true
	}
	return Location{}, false
}

// Guard decides a navigation from `from` to `to`. It returns nil to allow
// it, or the location to redirect to instead.
type Guard func(to, from Location) *Location

// Navigation is the outcome of one Push.
type Navigation struct {
	From       Location  `json:"from"`
	Requested  Location  `json:"requested"`
	To         Location  `json:"to"`
	Redirected bool      `json:"redirected"`
	At         time.Time `json:"at"`
}

// Router holds the current location and the guards.
type Router struct {
	logger *slog.Logger

	mu        sync.Mutex
	current   Location
	guards    []Guard
	listeners []listener
	nextID    int
}

type listener struct {
	id int
	fn func(Navigation)
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the logger for navigations nobody else reports, such as
// RedirectToLogin. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// New returns a router positioned at start.
func New(start Location, opts ...Option) *Router {
	r := &Router{current: start, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// BeforeEach registers a guard. Guards run in registration order.
func (r *Router) BeforeEach(g Guard) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.guards = append(r.guards, g)
}

// OnNavigate registers fn to be told about every completed navigation.
func (r *Router) OnNavigate(fn func(Navigation)) (cancel func()) {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.listeners = append(r.listeners, listener{id: id, fn: fn})
	r.mu.Unlock()

	return sync.OnceFunc(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for i, l := range r.listeners {
			if l.id == id {
				r.listeners = append(r.listeners[:i:i], r.listeners[i+1:]...)
				return
			}
		}
	})
}

// Current returns the current location.
func (r *Router) Current() Location {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Push navigates to `to` through the guards and returns where navigation
// ended up. Guards and listeners are called without the router's lock held,
// so they may call Current or Push themselves.
func (r *Router) Push(to Location) (Navigation, error) {
	r.mu.Lock()
	from := r.current
	guards := append([]Guard(nil), r.guards...)
	r.mu.Unlock()

	nav := Navigation{From: from, Requested: to}
	target := to
	for hops := 0; ; hops++ {
		redirect := decide(guards, target, from)
		if redirect == nil || redirect.equal(target) {
			break
		}
		if hops == maxRedirects {
			return nav, fmt.Errorf("%w navigating to %s", ErrRedirectLoop, to)
		}
		// the first redirect replaces the navigation entirely
		target = *redirect
		nav.Redirected = true
	}
	nav.To = target
	nav.At = time.Now()

	r.mu.Lock()
	r.current = target
	fns := make([]func(Navigation), len(r.listeners))
	for i, l := range r.listeners {
		fns[i] = l.fn
	}
	r.mu.Unlock()

	for _, fn := range fns {
		fn(nav)
	}
	return nav, nil
}

// decide returns the first redirect any guard asks for.
func decide(guards []Guard, to, from Location) *Location {
	for _, g := range guards {
		if redirect := g(to, from); redirect != nil {
			return redirect
		}
	}
	return nil
}

// RedirectToLogin forces navigation to the login page.
func (r *Router) RedirectToLogin() {
	// login is always allowed by RequireSession; a loop here means a
	// misconfigured guard and leaves the location unchanged
	if _, err := r.Push(To(Login)); err != nil {
		r.logger.Error("redirect to login failed",
			slog.String("from", r.Current().String()),
			slog.String("error", err.Error()))
	}
}
