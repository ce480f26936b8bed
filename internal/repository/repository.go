// Package repository is the data access layer of the application.
//
// Each repository is a thin, stateless adapter over a docstore.Store: every
// call re-queries the store, nothing is cached, and nothing is retried. Store
// failures come back as apperror.ErrRemoteQuery with the store's error kept
// as the cause. Documents that fail to decode fail the whole call with
// apperror.ErrMalformedRecord.
//
// The interfaces are what services depend on; the concrete types are built
// with NewMembers, NewHistoryRegistries and NewAccounts.
package repository

import (
	"context"

	"github.com/sakif/time-estimator/internal/model"
)

// CurrentUser exposes the signed-in user, or nil when there is no session.
// The session store satisfies it.
type CurrentUser interface {
	User() *model.User
}

type MembersRepository interface {
	// GetByAuthor returns the author's members in store order.
	// An author with no members gets an empty slice.
	GetByAuthor(ctx context.Context, authorID string) ([]model.Member, error)
	// GetByID returns nil, nil when the member does not exist.
	GetByID(ctx context.Context, memberID string) (*model.Member, error)
	// CreateMember creates a member owned by the signed-in user.
	CreateMember(ctx context.Context, name string) (*model.Member, error)
	// DeleteMember is idempotent. Registries of the member are left alone.
	DeleteMember(ctx context.Context, memberID string) error
}

type HistoryRegistriesRepository interface {
	// GetByAuthor returns the author's registries, newest first.
	GetByAuthor(ctx context.Context, authorID string) ([]model.HistoryRegistry, error)
	// GetByMember returns the member's registries. No order is promised.
	GetByMember(ctx context.Context, memberID string) ([]model.HistoryRegistry, error)
	// AddRegistry stores r with a server-assigned createdAt and returns the
	// stored registry.
	AddRegistry(ctx context.Context, r model.HistoryRegistry) (*model.HistoryRegistry, error)
	// DeleteRegistry is idempotent.
	DeleteRegistry(ctx context.Context, registryID string) error
}

type AccountRepository interface {
	Create(ctx context.Context, a model.Account) (*model.Account, error)
	// The lookups return nil, nil when no account matches.
	GetByID(ctx context.Context, id string) (*model.Account, error)
	GetByEmail(ctx context.Context, email string) (*model.Account, error)
	GetByGitHubID(ctx context.Context, githubID int64) (*model.Account, error)
}
