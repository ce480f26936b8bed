package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/sakif/time-estimator/internal/apperror"
	"github.com/sakif/time-estimator/internal/model"
	"github.com/sakif/time-estimator/internal/repository"
)

// MemberService backs the member-detail page.
type MemberService struct {
	members repository.MembersRepository
	history repository.HistoryRegistriesRepository
	session repository.CurrentUser
	logger  *slog.Logger
}

func NewMemberService(
	members repository.MembersRepository,
	history repository.HistoryRegistriesRepository,
	session repository.CurrentUser,
	logger *slog.Logger,
) *MemberService {
	return &MemberService{
		members: members,
		history: history,
		session: session,
		logger:  logger,
	}
}

// MemberDetail is a member with its history, newest first, and the
// statistics computed from it.
type MemberDetail struct {
	Member  model.Member            `json:"member"`
	History []model.HistoryRegistry `json:"history"`
	Stats   Stats                   `json:"stats"`
}

// Detail loads the member and its registries concurrently, then checks
// ownership. The registries query runs even when the member turns out to be
// missing; its result is discarded.
func (s *MemberService) Detail(ctx context.Context, memberID string) (*MemberDetail, error) {
	user, err := requireUser(ctx, s.session)
	if err != nil {
		return nil, err
	}
	if memberID == "" {
		return nil, apperror.ValidationFailed("id", "member ID is required")
	}

	var (
		member  *model.Member
		history []model.HistoryRegistry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		member, err = s.members.GetByID(gctx, memberID)
		return err
	})
	g.Go(func() error {
		var err error
		history, err = s.history.GetByMember(gctx, memberID)
		return err
	})
	if err := g.Wait(); err != nil {
		s.logger.ErrorContext(ctx, "failed to load member detail",
			slog.String("member_id", memberID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("loading member %s: %w", memberID, err)
	}

	if err := checkOwner(member, user, memberID); err != nil {
		return nil, err
	}

	newestFirst(history)
	return &MemberDetail{
		Member:  *member,
		History: history,
		Stats:   ComputeStats(history),
	}, nil
}

// AddRegistry records a finished task for one of the user's members.
// AuthorID and MemberID come from the session and the route; whatever the
// caller put in them is overwritten.
func (s *MemberService) AddRegistry(ctx context.Context, memberID string, difficulty, minutes int) (*model.HistoryRegistry, error) {
	user, err := requireUser(ctx, s.session)
	if err != nil {
		return nil, err
	}

	r := model.HistoryRegistry{
		TaskDificulty:                 difficulty,
		TaskCompletitionTimeInMinutes: minutes,
		AuthorID:                      user.ID,
		MemberID:                      memberID,
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if difficulty > MaxDifficulty {
		return nil, apperror.ValidationFailed(model.FieldTaskDificulty,
			fmt.Sprintf("task difficulty must be %d or less", MaxDifficulty))
	}
	if minutes > MaxCompletionMinutes {
		return nil, apperror.ValidationFailed(model.FieldTaskCompletitionTimeInMinutes,
			fmt.Sprintf("completion time must be %d minutes or less", MaxCompletionMinutes))
	}

	if _, err := ownedMember(ctx, s.members, user, memberID); err != nil {
		return nil, err
	}

	stored, err := s.history.AddRegistry(ctx, r)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to add registry",
			slog.String("member_id", memberID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("adding registry: %w", err)
	}

	s.logger.InfoContext(ctx, "registry added",
		slog.String("id", stored.ID),
		slog.String("member_id", memberID),
		slog.Int("difficulty", difficulty),
		slog.Int("minutes", minutes),
	)
	return stored, nil
}

// DeleteRegistry removes a registry of one of the user's members.
// The registry must belong to the member named in the route.
func (s *MemberService) DeleteRegistry(ctx context.Context, memberID, registryID string) error {
	user, err := requireUser(ctx, s.session)
	if err != nil {
		return err
	}
	if registryID == "" {
		return apperror.ValidationFailed("registryID", "registry ID is required")
	}
	if _, err := ownedMember(ctx, s.members, user, memberID); err != nil {
		return err
	}

	history, err := s.history.GetByMember(ctx, memberID)
	if err != nil {
		return err
	}
	if !slices.ContainsFunc(history, func(r model.HistoryRegistry) bool { return r.ID == registryID }) {
		return apperror.NotFound("registry", registryID)
	}

	if err := s.history.DeleteRegistry(ctx, registryID); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "registry deleted",
		slog.String("id", registryID),
		slog.String("member_id", memberID),
	)
	return nil
}

// Estimate predicts how long the member needs for a task of the given
// difficulty, from the member's history. See EstimateFrom for the method.
func (s *MemberService) Estimate(ctx context.Context, memberID string, difficulty int) (*Estimate, error) {
	user, err := requireUser(ctx, s.session)
	if err != nil {
		return nil, err
	}
	if difficulty <= 0 || difficulty > MaxDifficulty {
		return nil, apperror.ValidationFailed("difficulty",
			fmt.Sprintf("difficulty must be between 1 and %d", MaxDifficulty))
	}
	if _, err := ownedMember(ctx, s.members, user, memberID); err != nil {
		return nil, err
	}

	history, err := s.history.GetByMember(ctx, memberID)
	if err != nil {
		return nil, err
	}

	estimate, ok := EstimateFrom(history, difficulty)
	if !ok {
		return nil, apperror.NotFound("history for member", memberID)
	}
	return &estimate, nil
}

func newestFirst(history []model.HistoryRegistry) {
	slices.SortStableFunc(history, func(a, b model.HistoryRegistry) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
}
