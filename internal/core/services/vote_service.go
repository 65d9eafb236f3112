package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/livepoll/internal/core/domain"
	"github.com/vncsmyrnk/livepoll/internal/core/ports"
)

type voteService struct {
	pollRepo ports.PollRepository
	voteRepo ports.VoteRepository
	engine   ports.VoteEngine
}

func NewVoteService(pollRepo ports.PollRepository, voteRepo ports.VoteRepository, engine ports.VoteEngine) ports.VoteService {
	return &voteService{
		pollRepo: pollRepo,
		voteRepo: voteRepo,
		engine:   engine,
	}
}

// Vote sends the vote to the poll's counter. A cold counter answers
// NotInitialized, in which case the counter is seeded from the backing
// store and the vote retried exactly once.
func (s *voteService) Vote(ctx context.Context, input ports.VoteInput) (*domain.VoteResult, error) {
	if input.Voter.Address == "" || input.Voter.Fingerprint == "" {
		return nil, errors.New("voter address and fingerprint are required")
	}

	res, err := s.engine.Vote(ctx, input.PollID, input.OptionID, input.Voter, input.UserID)
	if errors.Is(err, domain.ErrNotInitialized) {
		if err := s.seed(ctx, input.PollID); err != nil {
			return nil, err
		}
		res, err = s.engine.Vote(ctx, input.PollID, input.OptionID, input.Voter, input.UserID)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// seed hydrates the counter from the backing store: option counts and total
// from the replica rows, the duplicate-voter set from the audit log. Init is
// idempotent, so concurrent seeders racing here are harmless.
func (s *voteService) seed(ctx context.Context, pollID uuid.UUID) error {
	poll, err := s.pollRepo.GetByID(ctx, pollID)
	if err != nil {
		return err
	}

	keys, err := s.voteRepo.VoterKeys(ctx, pollID)
	if err != nil {
		return fmt.Errorf("failed to load voter keys: %w", err)
	}

	options := make([]domain.OptionCount, 0, len(poll.Options))
	for _, opt := range poll.Options {
		options = append(options, domain.OptionCount{ID: opt.ID, Text: opt.Text, VoteCount: opt.VoteCount})
	}

	_, err = s.engine.Init(ctx, &domain.CounterState{
		PollID:  pollID,
		Options: options,
		Total:   poll.TotalVotes,
		Voters:  keys,
	})
	if err != nil {
		return fmt.Errorf("failed to seed poll counter: %w", err)
	}
	return nil
}
