package domain

import (
	"time"

	"github.com/google/uuid"
)

type Poll struct {
	ID          uuid.UUID    `json:"id"`
	UserID      *uuid.UUID   `json:"user_id,omitempty"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Options     []PollOption `json:"options"`
	TotalVotes  int64        `json:"total_votes"`
	CreatedAt   time.Time    `json:"created_at"`
}

type PollOption struct {
	ID        uuid.UUID `json:"id"`
	PollID    uuid.UUID `json:"poll_id"`
	Text      string    `json:"text"`
	VoteCount int64     `json:"vote_count"`
}
