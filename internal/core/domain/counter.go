package domain

import "github.com/google/uuid"

type OptionCount struct {
	ID        uuid.UUID `json:"id"`
	Text      string    `json:"text"`
	VoteCount int64     `json:"vote_count"`
}

// CounterState is the full durable state of one poll's counter: the option
// counts, the running total and the set of voter keys already recorded. It is
// what gets written to the counter's private store on every mutation and what
// seeds the counter on a cold start.
type CounterState struct {
	PollID  uuid.UUID     `json:"poll_id"`
	Options []OptionCount `json:"options"`
	Total   int64         `json:"total_votes"`
	Voters  []string      `json:"voters"`
}

// CountSnapshot is a read-only copy of a counter's live numbers.
type CountSnapshot struct {
	PollID  uuid.UUID     `json:"poll_id"`
	Options []OptionCount `json:"options"`
	Total   int64         `json:"total_votes"`
}

// VoteResult is the outcome of a vote attempt. AlreadyVoted is an expected
// business outcome, not an error: the result still carries current counts so
// the caller can render state without a second read.
type VoteResult struct {
	AlreadyVoted    bool          `json:"already_voted"`
	OptionVoteCount int64         `json:"option_vote_count"`
	Total           int64         `json:"total_votes"`
	Options         []OptionCount `json:"options"`
}
