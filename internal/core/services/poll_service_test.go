package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vncsmyrnk/livepoll/internal/core/domain"
	"github.com/vncsmyrnk/livepoll/internal/core/ports"
)

func TestCreatePollValidation(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.polls.Create(ctx, ports.CreatePollInput{Options: []string{"A", "B"}})
	assert.Error(t, err)

	_, err = f.polls.Create(ctx, ports.CreatePollInput{Title: "t", Options: []string{"A"}})
	assert.Error(t, err)

	_, err = f.polls.Create(ctx, ports.CreatePollInput{Title: "t", Options: []string{"A", "", ""}})
	assert.Error(t, err)
}

func TestCreatePollPreInitializesCounter(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	poll, err := f.polls.Create(ctx, ports.CreatePollInput{
		Title:   "favorite color",
		Options: []string{"red", "blue"},
	})
	require.NoError(t, err)
	require.Len(t, poll.Options, 2)

	// The counter answers immediately: no vote has seeded it yet.
	snap, err := f.registry.GetState(ctx, poll.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), snap.Total)
	assert.Len(t, snap.Options, 2)
}

func TestGetPollOverlaysLiveCounts(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	poll := storedPoll(f, 0, 0)

	// Two live votes that have not been flushed to the backing store.
	for i, opt := range poll.Options {
		_, err := f.votes.Vote(ctx, ports.VoteInput{
			PollID:   poll.ID,
			OptionID: opt.ID,
			Voter:    domain.VoterKey{Address: "10.0.0.1", Fingerprint: uuid.NewString()[:8] + string(rune('a'+i))},
		})
		require.NoError(t, err)
	}

	// The stored replica still says zero, but the read must serve the
	// counter's numbers.
	stored, err := f.pollRepo.GetByID(ctx, poll.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stored.TotalVotes)

	got, err := f.polls.GetPoll(ctx, poll.ID.String())
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.TotalVotes)
	assert.Equal(t, int64(1), got.Options[0].VoteCount)
	assert.Equal(t, int64(1), got.Options[1].VoteCount)
}

func TestGetPollServesStaleBaselineWhenCounterCold(t *testing.T) {
	f := newServiceFixture(t)
	poll := storedPoll(f, 4, 2)

	got, err := f.polls.GetPoll(context.Background(), poll.ID.String())
	require.NoError(t, err)
	assert.Equal(t, int64(6), got.TotalVotes)
	assert.Equal(t, int64(4), got.Options[0].VoteCount)
}

func TestGetPollInvalidID(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.polls.GetPoll(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, domain.ErrInvalidPollID)
}
