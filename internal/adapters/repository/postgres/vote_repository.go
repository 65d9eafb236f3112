package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/livepoll/internal/core/domain"
	"github.com/vncsmyrnk/livepoll/internal/core/ports"
)

type voteRepository struct {
	db *sql.DB
}

func NewVoteRepository(db *sql.DB) ports.VoteRepository {
	return &voteRepository{
		db: db,
	}
}

// Append inserts one audit record. The (poll_id, ip_address, fingerprint)
// uniqueness constraint is defense-in-depth for reseeding; the live counter
// has already deduplicated, so a conflict here is just reported upward and
// the caller ignores it.
func (r *voteRepository) Append(ctx context.Context, vote *domain.Vote) error {
	query := `
		INSERT INTO votes (id, poll_id, option_id, user_id, ip_address, fingerprint, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		vote.ID, vote.PollID, vote.OptionID, vote.UserID, vote.IPAddress, vote.Fingerprint, vote.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append vote: %w", err)
	}
	return nil
}

func (r *voteRepository) VoterKeys(ctx context.Context, pollID uuid.UUID) ([]string, error) {
	query := `
		SELECT ip_address, fingerprint
		FROM votes
		WHERE poll_id = $1
	`
	rows, err := r.db.QueryContext(ctx, query, pollID)
	if err != nil {
		return nil, fmt.Errorf("failed to get voter keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var address, fingerprint string
		if err := rows.Scan(&address, &fingerprint); err != nil {
			return nil, fmt.Errorf("failed to scan voter key: %w", err)
		}
		keys = append(keys, domain.VoterKey{Address: address, Fingerprint: fingerprint}.String())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating voter keys: %w", err)
	}
	return keys, nil
}
