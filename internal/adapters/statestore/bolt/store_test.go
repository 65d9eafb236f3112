package bolt

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vncsmyrnk/livepoll/internal/core/domain"
)

func TestSaveAndLoadRoundTrip(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "counters.db"))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	state := &domain.CounterState{
		PollID: uuid.New(),
		Options: []domain.OptionCount{
			{ID: uuid.New(), Text: "yes", VoteCount: 4},
			{ID: uuid.New(), Text: "no", VoteCount: 2},
		},
		Total:  6,
		Voters: []string{"10.0.0.1:fp-a", "10.0.0.2:fp-b"},
	}
	require.NoError(t, store.Save(ctx, state))

	loaded, err := store.Load(ctx, state.PollID)
	require.NoError(t, err)
	assert.Equal(t, state, loaded)
}

func TestLoadMissingState(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "counters.db"))
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Load(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrStateNotFound)
}

func TestStateSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counters.db")
	ctx := context.Background()

	store, err := Open(path)
	require.NoError(t, err)
	state := &domain.CounterState{
		PollID:  uuid.New(),
		Options: []domain.OptionCount{{ID: uuid.New(), Text: "only", VoteCount: 1}},
		Total:   1,
		Voters:  []string{"10.0.0.1:fp-a"},
	}
	require.NoError(t, store.Save(ctx, state))
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	loaded, err := reopened.Load(ctx, state.PollID)
	require.NoError(t, err)
	assert.Equal(t, state, loaded)
}
