package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/sakif/time-estimator/internal/apperror"
	"github.com/sakif/time-estimator/internal/model"
	"github.com/sakif/time-estimator/internal/repository"
)

// TeamService backs the my-team page: the signed-in user's members and the
// history they recorded across all of them.
type TeamService struct {
	members repository.MembersRepository
	history repository.HistoryRegistriesRepository
	session repository.CurrentUser
	logger  *slog.Logger
}

func NewTeamService(
	members repository.MembersRepository,
	history repository.HistoryRegistriesRepository,
	session repository.CurrentUser,
	logger *slog.Logger,
) *TeamService {
	return &TeamService{
		members: members,
		history: history,
		session: session,
		logger:  logger,
	}
}

// TeamOverview is everything the my-team page shows.
type TeamOverview struct {
	Members []model.Member          `json:"members"`
	History []model.HistoryRegistry `json:"history"` // newest first
}

// Overview loads the user's members and history concurrently.
// If either query fails the whole call fails; there is no partial overview.
func (s *TeamService) Overview(ctx context.Context) (*TeamOverview, error) {
	user, err := requireUser(ctx, s.session)
	if err != nil {
		return nil, err
	}

	var overview TeamOverview
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		members, err := s.members.GetByAuthor(gctx, user.ID)
		overview.Members = members
		return err
	})
	g.Go(func() error {
		history, err := s.history.GetByAuthor(gctx, user.ID)
		overview.History = history
		return err
	})
	if err := g.Wait(); err != nil {
		s.logger.ErrorContext(ctx, "failed to load team overview",
			slog.String("author_id", user.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("loading team overview: %w", err)
	}

	return &overview, nil
}

// CreateMember adds a member owned by the signed-in user.
func (s *TeamService) CreateMember(ctx context.Context, name string) (*model.Member, error) {
	if _, err := requireUser(ctx, s.session); err != nil {
		return nil, err
	}

	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) > MaxMemberNameLength {
		return nil, apperror.ValidationFailed(model.FieldName,
			fmt.Sprintf("member name must be %d characters or less", MaxMemberNameLength))
	}

	member, err := s.members.CreateMember(ctx, name)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "member created",
		slog.String("id", member.ID),
		slog.String("name", member.Name),
	)
	return member, nil
}

// DeleteMember removes one of the user's members. The member's history
// stays in the store and keeps counting in the author's history.
func (s *TeamService) DeleteMember(ctx context.Context, memberID string) error {
	user, err := requireUser(ctx, s.session)
	if err != nil {
		return err
	}
	if _, err := ownedMember(ctx, s.members, user, memberID); err != nil {
		return err
	}

	if err := s.members.DeleteMember(ctx, memberID); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "member deleted", slog.String("id", memberID))
	return nil
}
