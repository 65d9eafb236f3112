package http

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/vncsmyrnk/livepoll/internal/core/domain"
	"github.com/vncsmyrnk/livepoll/internal/core/engine"
	"github.com/vncsmyrnk/livepoll/internal/core/ports"
)

type VoteHandler struct {
	service ports.VoteService
}

func NewVoteHandler(service ports.VoteService) *VoteHandler {
	return &VoteHandler{
		service: service,
	}
}

type voteRequest struct {
	OptionID    uuid.UUID `json:"option_id"`
	Fingerprint string    `json:"fingerprint,omitempty"`
}

// VoteOnPoll submits one vote. The response body is the engine's envelope
// data shape; a duplicate voter gets success with alreadyVoted set and the
// current counts, not an error.
func (h *VoteHandler) VoteOnPoll(w http.ResponseWriter, r *http.Request) {
	pollIDStr := chi.URLParam(r, "id")
	pollID, err := uuid.Parse(pollIDStr)
	if err != nil {
		writeEnvelope(w, http.StatusBadRequest, engine.Response{Error: "invalid poll id"})
		return
	}

	var req voteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEnvelope(w, http.StatusBadRequest, engine.Response{Error: "invalid request body"})
		return
	}

	fingerprint := r.Header.Get("X-Fingerprint")
	if fingerprint == "" {
		fingerprint = req.Fingerprint
	}
	if fingerprint == "" {
		writeEnvelope(w, http.StatusBadRequest, engine.Response{Error: "fingerprint is required"})
		return
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}

	input := ports.VoteInput{
		PollID:   pollID,
		OptionID: req.OptionID,
		UserID:   userIDFromContext(r.Context()),
		Voter:    domain.VoterKey{Address: ip, Fingerprint: fingerprint},
	}

	res, err := h.service.Vote(r.Context(), input)
	if err != nil {
		if errors.Is(err, domain.ErrOptionNotFound) {
			writeEnvelope(w, http.StatusBadRequest, engine.Response{Error: err.Error()})
			return
		}
		if errors.Is(err, domain.ErrPollNotFound) {
			writeEnvelope(w, http.StatusNotFound, engine.Response{Error: err.Error()})
			return
		}

		writeEnvelope(w, http.StatusInternalServerError, engine.Response{Error: err.Error()})
		return
	}

	writeEnvelope(w, http.StatusOK, engine.Response{
		Success: true,
		Data: &engine.ResponseData{
			OptionVoteCount: res.OptionVoteCount,
			TotalVotes:      res.Total,
			Options:         optionPayload(res.Options),
			AlreadyVoted:    res.AlreadyVoted,
		},
	})
}

func optionPayload(options []domain.OptionCount) []engine.OptionPayload {
	payload := make([]engine.OptionPayload, 0, len(options))
	for _, opt := range options {
		payload = append(payload, engine.OptionPayload{ID: opt.ID.String(), Text: opt.Text, VoteCount: opt.VoteCount})
	}
	return payload
}

func writeEnvelope(w http.ResponseWriter, status int, resp engine.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
