package router

import "github.com/sakif/time-estimator/internal/model"

// CurrentUser exposes the signed-in user, or nil. session.Store satisfies it.
type CurrentUser interface {
	User() *model.User
}

// RequireSession sends every navigation to login while nobody is signed in.
//
// The decision reads the session at the moment of the navigation and
// nothing else: navigating to login itself is always allowed, and a user
// who is signed in goes wherever they asked.
func RequireSession(session CurrentUser) Guard {
	return func(to, _ Location) *Location {
		if to.Name == Login || session.User() != nil {
			return nil
		}
		login := To(Login)
		return &login
	}
}
