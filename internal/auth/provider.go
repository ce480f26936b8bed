package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sakif/time-estimator/internal/apperror"
	"github.com/sakif/time-estimator/internal/model"
	"github.com/sakif/time-estimator/internal/repository"
)

// Provider owns the one active session of the process and notifies
// subscribers whenever it starts or ends.
//
// NOTIFICATIONS:
// A listener receives the signed-in *model.User after a sign-in or a
// successful Resume, and nil when the session ends (SignOut, token expiry,
// or a Resume with a token that is no longer valid). Subscribing does not
// replay the current state.
//
// Listeners are called outside the provider's lock, one after another, on
// the goroutine that caused the change (the expiry timer's goroutine for
// expiries). A listener may call back into the provider.
type Provider struct {
	accounts  repository.AccountRepository
	passwords *PasswordService
	tokens    *TokenService
	github    *GitHubOAuth
	logger    *slog.Logger

	mu        sync.Mutex
	current   *model.User
	timer     *time.Timer
	gen       uint64 // bumped on every session change; stale timers compare against it
	listeners []listener
	nextID    uint64
}

type listener struct {
	id uint64
	fn func(*model.User)
}

// ProviderConfig holds the collaborators of a Provider. GitHub may be nil
// (GitHub sign-in disabled); a nil Logger means slog.Default().
type ProviderConfig struct {
	Accounts  repository.AccountRepository
	Passwords *PasswordService
	Tokens    *TokenService
	GitHub    *GitHubOAuth
	Logger    *slog.Logger
}

func NewProvider(cfg ProviderConfig) *Provider {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		accounts:  cfg.Accounts,
		passwords: cfg.Passwords,
		tokens:    cfg.Tokens,
		github:    cfg.GitHub,
		logger:    logger,
	}
}

// errInvalidCredentials is deliberately the same for an unknown email and a
// wrong password, so the response does not reveal which accounts exist.
func errInvalidCredentials() error {
	return apperror.Unauthenticated("invalid email or password")
}

// =========================================================================
// SIGN-IN
// =========================================================================

// SignUp creates a password account and signs it in.
// An empty displayName defaults to the part of the email before the "@".
func (p *Provider) SignUp(ctx context.Context, email, displayName, password string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return nil, apperror.ValidationFailed("email", "a valid email address is required")
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = email[:at]
	}

	existing, err := p.accounts.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperror.Conflict("account", email)
	}

	hash, err := p.passwords.Hash(password)
	if err != nil {
		return nil, err
	}

	account, err := p.accounts.Create(ctx, model.Account{
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: hash,
	})
	if err != nil {
		return nil, err
	}

	p.logger.Info("account created", "account_id", account.ID, "provider", model.ProviderPassword)
	return p.start(*account, model.ProviderPassword)
}

func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) (*model.User, error) {
	account, err := p.accounts.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if account == nil || account.PasswordHash == "" {
		return nil, errInvalidCredentials()
	}

	if err := p.passwords.Verify(account.PasswordHash, password); err != nil {
		if errors.Is(err, ErrInvalidPassword) {
			return nil, errInvalidCredentials()
		}
		return nil, err
	}

	return p.start(*account, model.ProviderPassword)
}

// GitHubEnabled reports whether GitHub sign-in is configured.
func (p *Provider) GitHubEnabled() bool {
	return p.github != nil
}

// GitHubAuthURL returns the GitHub consent page URL for the given state.
func (p *Provider) GitHubAuthURL(state string) (string, error) {
	if p.github == nil {
		return "", ErrGitHubDisabled
	}
	return p.github.AuthURL(state), nil
}

// SignInWithGitHub finishes the OAuth flow and signs the GitHub user in.
//
// The account is found by GitHub ID first, then by the public email (so an
// operator who signed up with a password can also use GitHub). Otherwise a
// new account is created from the GitHub profile.
func (p *Provider) SignInWithGitHub(ctx context.Context, code string) (*model.User, error) {
	if p.github == nil {
		return nil, ErrGitHubDisabled
	}

	gh, err := p.github.Exchange(ctx, code)
	if err != nil {
		return nil, &apperror.AppError{
			Err:     apperror.ErrUnauthenticated,
			Cause:   err,
			Message: "GitHub sign-in failed",
		}
	}

	account, err := p.accounts.GetByGitHubID(ctx, gh.ID)
	if err != nil {
		return nil, err
	}
	if account == nil && gh.Email != "" {
		if account, err = p.accounts.GetByEmail(ctx, gh.Email); err != nil {
			return nil, err
		}
	}
	if account == nil {
		account, err = p.accounts.Create(ctx, model.Account{
			Email:       gh.Email,
			DisplayName: gh.DisplayName(),
			GitHubID:    gh.ID,
			AvatarURL:   gh.AvatarURL,
		})
		if err != nil {
			return nil, err
		}
		p.logger.Info("account created", "account_id", account.ID, "provider", model.ProviderGitHub)
	}

	return p.start(*account, model.ProviderGitHub)
}

// Resume restores the session described by a previously issued token, e.g.
// the one kept in the session cache across a restart.
//
// An invalid or expired token, or one whose account no longer exists, ends
// the session: listeners are told nil and the error is ErrUnauthenticated.
// A store failure is returned as is and leaves the provider untouched.
func (p *Provider) Resume(ctx context.Context, token string) (*model.User, error) {
	claims, err := p.tokens.Validate(token)
	if err != nil {
		p.logger.Info("cached session rejected", "error", err)
		p.end("invalid token")
		return nil, apperror.Unauthenticated("session is no longer valid")
	}

	account, err := p.accounts.GetByID(ctx, claims.AccountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		p.end("account removed")
		return nil, apperror.Unauthenticated("session account no longer exists")
	}

	provider := claims.Provider
	if provider == "" {
		provider = model.ProviderPassword
	}
	return p.activate(account.User(provider, token, claims.ExpiresAt)), nil
}

// SignOut ends the current session. Listeners are told nil even when no
// session was active.
func (p *Provider) SignOut() {
	p.end("signed out")
}

// Current returns a copy of the active session's user, or nil.
func (p *Provider) Current() *model.User {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current.Clone()
}

// =========================================================================
// SUBSCRIPTIONS
// =========================================================================

// Subscribe registers fn for session changes. The returned cancel function
// unregisters it and is safe to call more than once.
func (p *Provider) Subscribe(fn func(*model.User)) (cancel func()) {
	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.listeners = append(p.listeners, listener{id: id, fn: fn})
	p.mu.Unlock()

	return sync.OnceFunc(func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		for i, l := range p.listeners {
			if l.id == id {
				p.listeners = append(p.listeners[:i:i], p.listeners[i+1:]...)
				return
			}
		}
	})
}

// Close stops the expiry timer without notifying anyone. Used at shutdown.
func (p *Provider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.gen++
}

// =========================================================================
// SESSION LIFECYCLE
// =========================================================================

func (p *Provider) start(account model.Account, provider string) (*model.User, error) {
	token, expiresAt, err := p.tokens.Issue(account.ID, provider)
	if err != nil {
		return nil, fmt.Errorf("auth: starting session: %w", err)
	}
	user := p.activate(account.User(provider, token, expiresAt))
	p.logger.Info("signed in", "account_id", account.ID, "provider", provider)
	return user, nil
}

// activate makes user the current session, arms the expiry timer and
// notifies listeners.
func (p *Provider) activate(user *model.User) *model.User {
	p.mu.Lock()
	p.stopTimerLocked()
	p.gen++
	gen := p.gen
	p.current = user.Clone()
	p.timer = time.AfterFunc(time.Until(user.ExpiresAt), func() { p.expire(gen) })
	listeners := p.snapshotLocked()
	p.mu.Unlock()

	notify(listeners, user)
	return user.Clone()
}

// expire ends the session started as generation gen, unless it has been
// replaced or ended in the meantime.
func (p *Provider) expire(gen uint64) {
	p.mu.Lock()
	if gen != p.gen || p.current == nil {
		p.mu.Unlock()
		return
	}
	accountID := p.current.ID
	p.current = nil
	p.timer = nil
	p.gen++
	listeners := p.snapshotLocked()
	p.mu.Unlock()

	p.logger.Info("session expired", "account_id", accountID)
	notify(listeners, nil)
}

func (p *Provider) end(reason string) {
	p.mu.Lock()
	p.stopTimerLocked()
	p.gen++
	var accountID string
	if p.current != nil {
		accountID = p.current.ID
	}
	p.current = nil
	listeners := p.snapshotLocked()
	p.mu.Unlock()

	if accountID != "" {
		p.logger.Info("session ended", "account_id", accountID, "reason", reason)
	}
	notify(listeners, nil)
}

func (p *Provider) stopTimerLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

func (p *Provider) snapshotLocked() []func(*model.User) {
	fns := make([]func(*model.User), len(p.listeners))
	for i, l := range p.listeners {
		fns[i] = l.fn
	}
	return fns
}

// notify hands every listener its own copy of user.
func notify(listeners []func(*model.User), user *model.User) {
	for _, fn := range listeners {
		fn(user.Clone())
	}
}
