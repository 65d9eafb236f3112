package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vncsmyrnk/livepoll/internal/core/domain"
	"github.com/vncsmyrnk/livepoll/internal/core/engine"
	"github.com/vncsmyrnk/livepoll/internal/core/ports"
)

type fakePollRepo struct {
	mu    sync.Mutex
	polls map[uuid.UUID]*domain.Poll
}

func newFakePollRepo() *fakePollRepo {
	return &fakePollRepo{polls: make(map[uuid.UUID]*domain.Poll)}
}

func (r *fakePollRepo) Save(_ context.Context, poll *domain.Poll) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *poll
	clone.Options = append([]domain.PollOption(nil), poll.Options...)
	r.polls[poll.ID] = &clone
	return nil
}

func (r *fakePollRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Poll, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	poll, ok := r.polls[id]
	if !ok {
		return nil, domain.ErrPollNotFound
	}
	clone := *poll
	clone.Options = append([]domain.PollOption(nil), poll.Options...)
	return &clone, nil
}

func (r *fakePollRepo) GetAll(_ context.Context) ([]*domain.Poll, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var polls []*domain.Poll
	for _, poll := range r.polls {
		polls = append(polls, poll)
	}
	return polls, nil
}

func (r *fakePollRepo) List(_ context.Context, _, _ int) ([]*domain.Poll, error) {
	return r.GetAll(context.Background())
}

func (r *fakePollRepo) Search(_ context.Context, _, _ int, _ string) ([]*domain.Poll, error) {
	return r.GetAll(context.Background())
}

type fakeVoteRepo struct {
	mu    sync.Mutex
	votes []*domain.Vote
}

func (r *fakeVoteRepo) Append(_ context.Context, vote *domain.Vote) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.votes = append(r.votes, vote)
	return nil
}

func (r *fakeVoteRepo) VoterKeys(_ context.Context, pollID uuid.UUID) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var keys []string
	for _, vote := range r.votes {
		if vote.PollID == pollID {
			keys = append(keys, domain.VoterKey{Address: vote.IPAddress, Fingerprint: vote.Fingerprint}.String())
		}
	}
	return keys, nil
}

type memStateStore struct {
	mu     sync.Mutex
	states map[uuid.UUID]*domain.CounterState
}

func newMemStateStore() *memStateStore {
	return &memStateStore{states: make(map[uuid.UUID]*domain.CounterState)}
}

func (s *memStateStore) Load(_ context.Context, pollID uuid.UUID) (*domain.CounterState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[pollID]
	if !ok {
		return nil, domain.ErrStateNotFound
	}
	clone := *state
	return &clone, nil
}

func (s *memStateStore) Save(_ context.Context, state *domain.CounterState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *state
	s.states[state.PollID] = &clone
	return nil
}

type noopWriter struct{}

func (noopWriter) WriteCounts(context.Context, uuid.UUID, map[uuid.UUID]int64, int64) error {
	return nil
}

type serviceFixture struct {
	pollRepo *fakePollRepo
	voteRepo *fakeVoteRepo
	registry *engine.Registry
	votes    ports.VoteService
	polls    ports.PollService
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	pollRepo := newFakePollRepo()
	voteRepo := &fakeVoteRepo{}
	registry := engine.NewRegistry(newMemStateStore(), noopWriter{}, voteRepo, engine.WithFlushDelay(time.Hour))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		registry.Close(ctx)
	})
	return &serviceFixture{
		pollRepo: pollRepo,
		voteRepo: voteRepo,
		registry: registry,
		votes:    NewVoteService(pollRepo, voteRepo, registry),
		polls:    NewPollService(pollRepo, registry),
	}
}

func storedPoll(f *serviceFixture, counts ...int64) *domain.Poll {
	pollID := uuid.New()
	poll := &domain.Poll{ID: pollID, Title: "favorite color", CreatedAt: time.Now()}
	for i, n := range counts {
		poll.Options = append(poll.Options, domain.PollOption{
			ID:        uuid.New(),
			PollID:    pollID,
			Text:      string(rune('A' + i)),
			VoteCount: n,
		})
		poll.TotalVotes += n
	}
	f.pollRepo.Save(context.Background(), poll)
	return poll
}

func TestVoteBootstrapsColdCounter(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	poll := storedPoll(f, 5, 3)

	res, err := f.votes.Vote(ctx, ports.VoteInput{
		PollID:   poll.ID,
		OptionID: poll.Options[0].ID,
		Voter:    domain.VoterKey{Address: "10.0.0.1", Fingerprint: "fp-1"},
	})
	require.NoError(t, err)
	assert.False(t, res.AlreadyVoted)
	assert.Equal(t, int64(6), res.OptionVoteCount)
	assert.Equal(t, int64(9), res.Total)
}

func TestVoteSeedsGuardFromAuditLog(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	poll := storedPoll(f, 1, 0)

	// The audit log already holds this voter from before the counter was
	// evicted; seeding must reconstruct the guard from it.
	f.voteRepo.Append(ctx, &domain.Vote{
		ID:          uuid.New(),
		PollID:      poll.ID,
		OptionID:    poll.Options[0].ID,
		IPAddress:   "10.0.0.1",
		Fingerprint: "fp-1",
		CreatedAt:   time.Now(),
	})

	res, err := f.votes.Vote(ctx, ports.VoteInput{
		PollID:   poll.ID,
		OptionID: poll.Options[1].ID,
		Voter:    domain.VoterKey{Address: "10.0.0.1", Fingerprint: "fp-1"},
	})
	require.NoError(t, err)
	assert.True(t, res.AlreadyVoted)
	assert.Equal(t, int64(1), res.Total)
}

func TestVoteOnMissingPoll(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.votes.Vote(context.Background(), ports.VoteInput{
		PollID:   uuid.New(),
		OptionID: uuid.New(),
		Voter:    domain.VoterKey{Address: "10.0.0.1", Fingerprint: "fp-1"},
	})
	assert.ErrorIs(t, err, domain.ErrPollNotFound)
}

func TestVoteRequiresVoterKey(t *testing.T) {
	f := newServiceFixture(t)
	poll := storedPoll(f, 0, 0)

	_, err := f.votes.Vote(context.Background(), ports.VoteInput{
		PollID:   poll.ID,
		OptionID: poll.Options[0].ID,
		Voter:    domain.VoterKey{Address: "10.0.0.1"},
	})
	assert.Error(t, err)
}
