package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/livepoll/internal/core/domain"
)

// Transport-agnostic request/response envelopes for the counting engine.
// The HTTP adapter speaks these shapes on the vote endpoint; any other
// transport can carry them unchanged.

type Action string

const (
	ActionInit     Action = "init"
	ActionVote     Action = "vote"
	ActionGetState Action = "getState"
)

type OptionPayload struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	VoteCount int64  `json:"vote_count"`
}

type Request struct {
	Action            Action          `json:"action"`
	PollID            string          `json:"pollId,omitempty"`
	OptionID          string          `json:"optionId,omitempty"`
	VoterAddress      string          `json:"voterAddress,omitempty"`
	VoterFingerprint  string          `json:"voterFingerprint,omitempty"`
	UserID            string          `json:"userId,omitempty"`
	Options           []OptionPayload `json:"options,omitempty"`
	TotalVotes        int64           `json:"totalVotes,omitempty"`
	ExistingVoterKeys []string        `json:"existingVoterKeys,omitempty"`
}

type ResponseData struct {
	OptionVoteCount int64           `json:"optionVoteCount"`
	TotalVotes      int64           `json:"totalVotes"`
	Options         []OptionPayload `json:"options,omitempty"`
	AlreadyVoted    bool            `json:"alreadyVoted,omitempty"`
}

type Response struct {
	Success bool          `json:"success"`
	Error   string        `json:"error,omitempty"`
	Data    *ResponseData `json:"data,omitempty"`
}

// Handle dispatches one envelope against the engine and never returns a Go
// error: failures travel inside the response, declined votes travel as data.
func (r *Registry) Handle(ctx context.Context, req Request) Response {
	switch req.Action {
	case ActionInit:
		return r.handleInitRequest(ctx, req)
	case ActionVote:
		return r.handleVoteRequest(ctx, req)
	case ActionGetState:
		return r.handleGetStateRequest(ctx, req)
	default:
		return failure(fmt.Errorf("unknown action %q", req.Action))
	}
}

func (r *Registry) handleInitRequest(ctx context.Context, req Request) Response {
	pollID, err := uuid.Parse(req.PollID)
	if err != nil {
		return failure(domain.ErrInvalidPollID)
	}

	options := make([]domain.OptionCount, 0, len(req.Options))
	for _, opt := range req.Options {
		optionID, err := uuid.Parse(opt.ID)
		if err != nil {
			return failure(fmt.Errorf("invalid option id %q", opt.ID))
		}
		options = append(options, domain.OptionCount{ID: optionID, Text: opt.Text, VoteCount: opt.VoteCount})
	}

	snap, err := r.Init(ctx, &domain.CounterState{
		PollID:  pollID,
		Options: options,
		Total:   req.TotalVotes,
		Voters:  req.ExistingVoterKeys,
	})
	if err != nil {
		return failure(err)
	}
	return Response{Success: true, Data: &ResponseData{
		TotalVotes: snap.Total,
		Options:    toPayload(snap.Options),
	}}
}

func (r *Registry) handleVoteRequest(ctx context.Context, req Request) Response {
	pollID, err := uuid.Parse(req.PollID)
	if err != nil {
		return failure(domain.ErrInvalidPollID)
	}
	optionID, err := uuid.Parse(req.OptionID)
	if err != nil {
		return failure(domain.ErrOptionNotFound)
	}
	if req.VoterAddress == "" || req.VoterFingerprint == "" {
		return failure(fmt.Errorf("voterAddress and voterFingerprint are required"))
	}

	var userID *uuid.UUID
	if req.UserID != "" {
		id, err := uuid.Parse(req.UserID)
		if err != nil {
			return failure(fmt.Errorf("invalid user id %q", req.UserID))
		}
		userID = &id
	}

	voter := domain.VoterKey{Address: req.VoterAddress, Fingerprint: req.VoterFingerprint}
	res, err := r.Vote(ctx, pollID, optionID, voter, userID)
	if err != nil {
		return failure(err)
	}
	return Response{Success: true, Data: voteData(res)}
}

func (r *Registry) handleGetStateRequest(ctx context.Context, req Request) Response {
	pollID, err := uuid.Parse(req.PollID)
	if err != nil {
		return failure(domain.ErrInvalidPollID)
	}

	snap, err := r.GetState(ctx, pollID)
	if err != nil {
		return failure(err)
	}
	return Response{Success: true, Data: &ResponseData{
		TotalVotes: snap.Total,
		Options:    toPayload(snap.Options),
	}}
}

func voteData(res *domain.VoteResult) *ResponseData {
	return &ResponseData{
		OptionVoteCount: res.OptionVoteCount,
		TotalVotes:      res.Total,
		Options:         toPayload(res.Options),
		AlreadyVoted:    res.AlreadyVoted,
	}
}

func toPayload(options []domain.OptionCount) []OptionPayload {
	payload := make([]OptionPayload, 0, len(options))
	for _, opt := range options {
		payload = append(payload, OptionPayload{ID: opt.ID.String(), Text: opt.Text, VoteCount: opt.VoteCount})
	}
	return payload
}

func failure(err error) Response {
	return Response{Success: false, Error: err.Error()}
}
