package ports

import (
	"context"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/livepoll/internal/core/domain"
)

// AuditLog records accepted votes for after-the-fact inspection and
// catastrophic reseeding. Appends are best-effort on the vote path.
type AuditLog interface {
	Append(ctx context.Context, vote *domain.Vote) error
}

type VoteRepository interface {
	AuditLog
	// VoterKeys returns the "address:fingerprint" pairs already recorded
	// for a poll, used to rebuild the duplicate-vote guard on seeding.
	VoterKeys(ctx context.Context, pollID uuid.UUID) ([]string, error)
}

type VoteInput struct {
	PollID   uuid.UUID
	OptionID uuid.UUID
	UserID   *uuid.UUID
	Voter    domain.VoterKey
}

type VoteService interface {
	Vote(ctx context.Context, input VoteInput) (*domain.VoteResult, error)
}
