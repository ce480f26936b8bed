// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → ownership, validation, estimation
//	Repository (Data layer)  → reads/writes documents in the docstore
//
// The repositories are deliberately dumb: they return what the store holds
// and never decide whether the caller may see it. Everything that depends on
// WHO is asking lives here. Every operation starts by reading the signed-in
// user from the session; without one it fails with ErrUnauthenticated before
// any repository call. Handlers mounted behind auth.SessionUser pass the
// request's user snapshot in the context, and that snapshot is used instead.
//
// OWNERSHIP:
// A member belongs to the user that created it (authorId). A user can only
// read, change, or estimate with their own members. Asking for someone
// else's member is ErrForbidden; asking for one that does not exist is
// ErrNotFound.
//
// THE DEPENDENCY CHAIN:
//
//	server.go creates:  docstore → Repositories → Services → Handlers
//	At runtime:         Handler calls Service calls Repository calls docstore
package service

import (
	"context"

	"github.com/sakif/time-estimator/internal/apperror"
	"github.com/sakif/time-estimator/internal/auth"
	"github.com/sakif/time-estimator/internal/model"
	"github.com/sakif/time-estimator/internal/repository"
)

// Validation constants.
const (
	MaxMemberNameLength = 100
	MaxDifficulty       = 100
	// 30 days; anything longer is a typo, not a task.
	MaxCompletionMinutes = 30 * 24 * 60
)

// requireUser returns the user the request was made as, or
// ErrUnauthenticated. The snapshot auth.SessionUser put in ctx wins, so one
// request sees one identity even if the session ends halfway through; calls
// without a snapshot read the session.
func requireUser(ctx context.Context, session repository.CurrentUser) (*model.User, error) {
	if user, ok := auth.UserFromContext(ctx); ok {
		return user, nil
	}
	user := session.User()
	if user == nil {
		return nil, apperror.Unauthenticated("a signed-in user is required")
	}
	return user, nil
}

// ownedMember loads memberID and checks it belongs to user.
func ownedMember(ctx context.Context, members repository.MembersRepository, user *model.User, memberID string) (*model.Member, error) {
	if memberID == "" {
		return nil, apperror.ValidationFailed("id", "member ID is required")
	}

	member, err := members.GetByID(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if err := checkOwner(member, user, memberID); err != nil {
		return nil, err
	}
	return member, nil
}

func checkOwner(member *model.Member, user *model.User, memberID string) error {
	if member == nil {
		return apperror.NotFound("member", memberID)
	}
	if member.AuthorID != user.ID {
		return apperror.Forbidden("member belongs to another user")
	}
	return nil
}
