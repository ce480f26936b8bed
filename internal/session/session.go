// Package session holds the signed-in user of the running process.
//
// LIFECYCLE:
//
//	s := session.Open(ctx, session.Options{...}) // load cache, subscribe
//	defer s.Close()                              // unsubscribe
//
// A Store is created once by the server at startup and handed to everything
// that needs the current user (repositories, the router guard, handlers).
// It keeps the user in memory and mirrors it to a durable Cache so a restart
// comes back signed in.
//
// The store listens to the authentication provider. When the provider says
// there is no active session any more (sign-out, token expiry) the store
// clears itself and its cache and sends navigation to the login page.
// Nothing else refreshes the store from the provider: between a remote
// sign-out and its notification the store still reports the old user.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/sakif/time-estimator/internal/model"
)

// Subscriber delivers session changes: a user on sign-in, nil when the
// session ends. auth.Provider satisfies it.
type Subscriber interface {
	Subscribe(fn func(*model.User)) (cancel func())
}

// Navigator forces the UI back to the login page. router.Router satisfies it.
type Navigator interface {
	RedirectToLogin()
}

type Options struct {
	Cache     Cache
	Provider  Subscriber
	Navigator Navigator
	Logger    *slog.Logger // nil: slog.Default()
}

type Store struct {
	cache     Cache
	navigator Navigator
	logger    *slog.Logger
	cancel    func()

	// write orders each memory change together with its cache write, so the
	// cache always ends up matching the last change
	write sync.Mutex

	mu   sync.RWMutex
	user *model.User
}

// Open loads the cached user and subscribes to the provider.
//
// A missing cache means no user. A cache that cannot be read or decoded is
// logged, removed and treated as missing: a broken cache never prevents
// startup.
func Open(ctx context.Context, opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		cache:     opts.Cache,
		navigator: opts.Navigator,
		logger:    logger,
	}

	user, err := s.cache.Load()
	if err != nil {
		logger.WarnContext(ctx, "discarding unreadable session cache", "error", err,
			"corrupt", errors.Is(err, ErrCorrupt))
		if err := s.cache.Clear(); err != nil {
			logger.WarnContext(ctx, "removing session cache", "error", err)
		}
		user = nil
	}
	s.user = user
	if user != nil {
		logger.InfoContext(ctx, "session restored", "user_id", user.ID, "provider", user.Provider)
	}

	s.cancel = opts.Provider.Subscribe(s.onAuthChange)
	return s
}

// User returns a copy of the current user, or nil when signed out.
func (s *Store) User() *model.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user.Clone()
}

// SetUser replaces the current user and persists it. The in-memory value is
// updated even when persisting fails; the error says the cache is behind.
func (s *Store) SetUser(u *model.User) error {
	if u == nil {
		return s.ClearUser()
	}
	s.write.Lock()
	defer s.write.Unlock()

	s.mu.Lock()
	s.user = u.Clone()
	s.mu.Unlock()

	if err := s.cache.Save(u); err != nil {
		s.logger.Error("persisting session", "user_id", u.ID, "error", err)
		return err
	}
	return nil
}

// ClearUser removes the current user and the cache.
func (s *Store) ClearUser() error {
	s.write.Lock()
	defer s.write.Unlock()

	s.mu.Lock()
	s.user = nil
	s.mu.Unlock()

	if err := s.cache.Clear(); err != nil {
		s.logger.Error("clearing session cache", "error", err)
		return err
	}
	return nil
}

// Close releases the provider subscription. The current user is kept, and
// so is the cache, so the next Open restores it.
func (s *Store) Close() {
	s.cancel()
}

// onAuthChange reacts to provider notifications. Only the end of a session
// matters here; sign-ins are stored explicitly by whoever signed in.
func (s *Store) onAuthChange(u *model.User) {
	if u != nil {
		return
	}

	s.write.Lock()
	s.mu.Lock()
	previous := s.user
	s.user = nil
	s.mu.Unlock()

	if err := s.cache.Clear(); err != nil {
		s.logger.Error("clearing session cache after sign-out", "error", err)
	}
	s.write.Unlock()
	if previous != nil {
		s.logger.Info("session ended by provider", "user_id", previous.ID)
	}

	// outside the lock: the navigation guard reads s.User()
	if s.navigator != nil {
		s.navigator.RedirectToLogin()
	}
}
