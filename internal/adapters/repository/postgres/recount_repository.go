package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/livepoll/internal/core/ports"
)

type recountRepository struct {
	db *sql.DB
}

func NewRecountRepository(db *sql.DB) ports.RecountRepository {
	return &recountRepository{
		db: db,
	}
}

// RecountVotes rebuilds a poll's stored counts from the audit log. Only for
// recovery after a loss of counter private storage; running it against a
// poll with a live counter will be overwritten by the next flush.
func (r *recountRepository) RecountVotes(ctx context.Context, pollID uuid.UUID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	queryOptions := `
		UPDATE options
		SET vote_count = COALESCE((
			SELECT COUNT(*) FROM votes v WHERE v.option_id = options.id
		), 0)
		WHERE poll_id = $1
	`
	if _, err := tx.ExecContext(ctx, queryOptions, pollID); err != nil {
		return fmt.Errorf("failed to recount options for poll %s: %w", pollID, err)
	}

	queryPoll := `
		UPDATE polls
		SET total_votes = (SELECT COUNT(*) FROM votes v WHERE v.poll_id = polls.id)
		WHERE id = $1
	`
	if _, err := tx.ExecContext(ctx, queryPoll, pollID); err != nil {
		return fmt.Errorf("failed to recount total for poll %s: %w", pollID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
