package ports

import (
	"context"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/livepoll/internal/core/domain"
)

// StateStore is the counter's private durable storage. Save must not return
// until the state is durable: it is the write-ahead step of every vote.
type StateStore interface {
	// Load returns domain.ErrStateNotFound when the poll has no record,
	// which is the only condition under which a counter may be reseeded
	// from the backing store.
	Load(ctx context.Context, pollID uuid.UUID) (*domain.CounterState, error)
	Save(ctx context.Context, state *domain.CounterState) error
}

// CountWriter reconciles a counter's live numbers into the shared backing
// store. The write must apply every option row and the poll total atomically.
type CountWriter interface {
	WriteCounts(ctx context.Context, pollID uuid.UUID, counts map[uuid.UUID]int64, total int64) error
}

// VoteEngine is the per-poll counting engine. All operations on one poll are
// strictly serialized; operations on different polls are unordered.
type VoteEngine interface {
	Init(ctx context.Context, state *domain.CounterState) (*domain.CountSnapshot, error)
	Vote(ctx context.Context, pollID, optionID uuid.UUID, voter domain.VoterKey, userID *uuid.UUID) (*domain.VoteResult, error)
	GetState(ctx context.Context, pollID uuid.UUID) (*domain.CountSnapshot, error)
}
