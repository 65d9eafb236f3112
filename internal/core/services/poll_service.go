package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/livepoll/internal/core/domain"
	"github.com/vncsmyrnk/livepoll/internal/core/ports"
)

const pageSize = 10

type pollService struct {
	repo   ports.PollRepository
	engine ports.VoteEngine
	log    *slog.Logger
}

func NewPollService(repo ports.PollRepository, engine ports.VoteEngine) ports.PollService {
	return &pollService{
		repo:   repo,
		engine: engine,
		log:    slog.Default(),
	}
}

func (s *pollService) Create(ctx context.Context, input ports.CreatePollInput) (*domain.Poll, error) {
	if input.Title == "" {
		return nil, errors.New("title is required")
	}
	if len(input.Options) < 2 {
		return nil, errors.New("at least two options are required")
	}

	pollID := uuid.New()
	now := time.Now()

	poll := &domain.Poll{
		ID:          pollID,
		UserID:      input.UserID,
		Title:       input.Title,
		Description: input.Description,
		CreatedAt:   now,
	}

	for _, optText := range input.Options {
		if optText == "" {
			continue
		}
		poll.Options = append(poll.Options, domain.PollOption{
			ID:     uuid.New(),
			PollID: pollID,
			Text:   optText,
		})
	}

	if len(poll.Options) < 2 {
		return nil, errors.New("at least two valid options are required")
	}

	err := s.repo.Save(ctx, poll)
	if err != nil {
		return nil, err
	}

	// Eagerly pre-initialize the counter so reads of a fresh poll never
	// hit the staleness window. Failure is non-fatal: the first vote will
	// seed it instead.
	if err := s.preInit(ctx, poll); err != nil {
		s.log.Warn("failed to pre-initialize poll counter", "poll_id", pollID, "error", err)
	}

	return poll, nil
}

func (s *pollService) GetPoll(ctx context.Context, id string) (*domain.Poll, error) {
	pollID, err := uuid.Parse(id)
	if err != nil {
		return nil, domain.ErrInvalidPollID
	}

	poll, err := s.repo.GetByID(ctx, pollID)
	if err != nil {
		return nil, err
	}

	s.overlayLiveCounts(ctx, poll)
	return poll, nil
}

func (s *pollService) ListPolls(ctx context.Context, input ports.ListPollsInput) ([]*domain.Poll, error) {
	page := input.Page
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * pageSize

	if input.Query != "" {
		return s.repo.Search(ctx, pageSize, offset, input.Query)
	}
	return s.repo.List(ctx, pageSize, offset)
}

// overlayLiveCounts replaces the backing store's replica numbers with the
// counter's authoritative ones when the counter is initialized. Any failure
// leaves the baseline untouched: stale numbers are the accepted degradation.
func (s *pollService) overlayLiveCounts(ctx context.Context, poll *domain.Poll) {
	snap, err := s.engine.GetState(ctx, poll.ID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotInitialized) {
			s.log.Warn("failed to read live counts", "poll_id", poll.ID, "error", err)
		}
		return
	}

	counts := make(map[uuid.UUID]int64, len(snap.Options))
	for _, opt := range snap.Options {
		counts[opt.ID] = opt.VoteCount
	}
	for i := range poll.Options {
		if count, ok := counts[poll.Options[i].ID]; ok {
			poll.Options[i].VoteCount = count
		}
	}
	poll.TotalVotes = snap.Total
}

func (s *pollService) preInit(ctx context.Context, poll *domain.Poll) error {
	options := make([]domain.OptionCount, 0, len(poll.Options))
	for _, opt := range poll.Options {
		options = append(options, domain.OptionCount{ID: opt.ID, Text: opt.Text})
	}

	_, err := s.engine.Init(ctx, &domain.CounterState{
		PollID:  poll.ID,
		Options: options,
	})
	return err
}
