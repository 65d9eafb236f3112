package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/livepoll/internal/core/ports"
)

type countWriter struct {
	db *sql.DB
}

// NewCountWriter returns the flush target for the counting engine: one
// transaction updating every option row and the poll total, so readers of
// the backing store never see a half-applied flush.
func NewCountWriter(db *sql.DB) ports.CountWriter {
	return &countWriter{
		db: db,
	}
}

func (w *countWriter) WriteCounts(ctx context.Context, pollID uuid.UUID, counts map[uuid.UUID]int64, total int64) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	queryOption := `
		UPDATE options SET vote_count = $1 WHERE id = $2 AND poll_id = $3
	`
	stmt, err := tx.PrepareContext(ctx, queryOption)
	if err != nil {
		return fmt.Errorf("failed to prepare option update: %w", err)
	}
	defer stmt.Close()

	for optionID, count := range counts {
		if _, err := stmt.ExecContext(ctx, count, optionID, pollID); err != nil {
			return fmt.Errorf("failed to update option count: %w", err)
		}
	}

	queryPoll := `
		UPDATE polls SET total_votes = $1 WHERE id = $2
	`
	if _, err := tx.ExecContext(ctx, queryPoll, total, pollID); err != nil {
		return fmt.Errorf("failed to update poll total: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
