package ports

import (
	"context"

	"github.com/google/uuid"
)

// RecountRepository recomputes stored counts from the vote audit log. It is
// the recovery tool for the backing store after a catastrophic loss of
// counter private storage; it plays no part in the live vote path.
type RecountRepository interface {
	RecountVotes(ctx context.Context, pollID uuid.UUID) error
}

type RecountService interface {
	RecountAllVotes(ctx context.Context) error
}
