// Package engine implements the per-poll vote counter: one goroutine per
// poll consuming a mailbox channel, so that every operation on a poll is
// strictly serialized without locks. The counter holds the authoritative
// live counts once initialized; the relational backing store only receives
// them through the coalesced flush.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/livepoll/internal/core/domain"
	"github.com/vncsmyrnk/livepoll/internal/core/ports"
)

type msgKind int

const (
	msgInit msgKind = iota
	msgVote
	msgGetState
	msgFlush
)

type message struct {
	kind     msgKind
	ctx      context.Context
	state    *domain.CounterState
	optionID uuid.UUID
	voter    domain.VoterKey
	userID   *uuid.UUID
	reply    chan result
}

type result struct {
	snap *domain.CountSnapshot
	vote *domain.VoteResult
	err  error
}

// counter owns one poll's live state. Every field below mailbox/done is
// touched only by the run goroutine.
type counter struct {
	pollID  uuid.UUID
	mailbox chan message
	done    chan struct{}
	stopped chan struct{}

	store      ports.StateStore
	writer     ports.CountWriter
	audit      ports.AuditLog
	flushDelay time.Duration
	log        *slog.Logger

	initialized bool
	options     []domain.OptionCount
	index       map[uuid.UUID]int
	total       int64
	voters      map[string]struct{}
	flushArmed  bool
	dirty       bool
}

func newCounter(pollID uuid.UUID, store ports.StateStore, writer ports.CountWriter, audit ports.AuditLog, flushDelay time.Duration, log *slog.Logger) *counter {
	return &counter{
		pollID:  pollID,
		mailbox: make(chan message, 64),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		store:   store,
		writer:  writer,
		audit:   audit,

		flushDelay: flushDelay,
		log:        log.With("poll_id", pollID),
		index:      make(map[uuid.UUID]int),
		voters:     make(map[string]struct{}),
	}
}

// restore adopts state surviving in the private store. Called once before
// the run goroutine starts, so no serialization concern.
func (c *counter) restore(state *domain.CounterState) {
	c.adopt(state)
}

func (c *counter) run() {
	defer close(c.stopped)
	for {
		select {
		case m := <-c.mailbox:
			c.handle(m)
		case <-c.done:
			c.drain()
			c.finalFlush()
			return
		}
	}
}

// drain serves requests already accepted into the mailbox before shutdown.
func (c *counter) drain() {
	for {
		select {
		case m := <-c.mailbox:
			c.handle(m)
		default:
			return
		}
	}
}

func (c *counter) handle(m message) {
	switch m.kind {
	case msgInit:
		m.reply <- c.handleInit(m)
	case msgVote:
		m.reply <- c.handleVote(m)
	case msgGetState:
		m.reply <- c.handleGetState()
	case msgFlush:
		c.handleFlush()
	}
}

// handleInit is idempotent: the first successful snapshot wins and later
// reseed attempts get the current state back unchanged.
func (c *counter) handleInit(m message) result {
	if m.state == nil || m.state.PollID == uuid.Nil {
		return result{err: domain.ErrInvalidPollID}
	}
	if c.initialized {
		return result{snap: c.snapshot()}
	}

	c.adopt(m.state)
	if err := c.persist(m.ctx); err != nil {
		c.reset()
		return result{err: fmt.Errorf("failed to persist seeded state: %w", err)}
	}
	return result{snap: c.snapshot()}
}

func (c *counter) handleVote(m message) result {
	if !c.initialized {
		return result{err: domain.ErrNotInitialized}
	}
	idx, ok := c.index[m.optionID]
	if !ok {
		return result{err: domain.ErrOptionNotFound}
	}

	key := m.voter.String()
	if _, voted := c.voters[key]; voted {
		return result{vote: &domain.VoteResult{
			AlreadyVoted:    true,
			OptionVoteCount: c.options[idx].VoteCount,
			Total:           c.total,
			Options:         c.copyOptions(),
		}}
	}

	c.options[idx].VoteCount++
	c.total++
	c.voters[key] = struct{}{}

	// Write-ahead: the mutation must be durable in the private store
	// before the caller sees success. On failure nothing of the vote
	// remains observable.
	if err := c.persist(m.ctx); err != nil {
		c.options[idx].VoteCount--
		c.total--
		delete(c.voters, key)
		return result{err: fmt.Errorf("failed to persist vote: %w", err)}
	}

	c.dirty = true
	c.scheduleFlush()
	go c.appendAudit(m.optionID, m.voter, m.userID)

	return result{vote: &domain.VoteResult{
		OptionVoteCount: c.options[idx].VoteCount,
		Total:           c.total,
		Options:         c.copyOptions(),
	}}
}

func (c *counter) handleGetState() result {
	if !c.initialized {
		return result{err: domain.ErrNotInitialized}
	}
	return result{snap: c.snapshot()}
}

// handleFlush copies the live numbers into one atomic backing-store write.
// A failed write logs, keeps the counter state untouched and re-arms exactly
// one future flush. Firing with nothing dirty is a no-op.
func (c *counter) handleFlush() {
	c.flushArmed = false
	if !c.initialized || !c.dirty {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.writer.WriteCounts(ctx, c.pollID, c.counts(), c.total); err != nil {
		c.log.Error("failed to flush counts to backing store", "error", err)
		c.scheduleFlush()
		return
	}
	c.dirty = false
}

// finalFlush runs on shutdown so the backing store does not stay stale for
// votes accepted since the last timer fired.
func (c *counter) finalFlush() {
	if !c.initialized || !c.dirty {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := c.writer.WriteCounts(ctx, c.pollID, c.counts(), c.total); err != nil {
		c.log.Error("failed to flush counts on shutdown", "error", err)
	}
}

// scheduleFlush arms at most one timer. The timer only enqueues a flush
// message, so the flush itself stays serialized with votes.
func (c *counter) scheduleFlush() {
	if c.flushArmed {
		return
	}
	c.flushArmed = true
	time.AfterFunc(c.flushDelay, func() {
		select {
		case c.mailbox <- message{kind: msgFlush}:
		case <-c.done:
		}
	})
}

func (c *counter) appendAudit(optionID uuid.UUID, voter domain.VoterKey, userID *uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	vote := &domain.Vote{
		ID:          uuid.New(),
		PollID:      c.pollID,
		OptionID:    optionID,
		UserID:      userID,
		IPAddress:   voter.Address,
		Fingerprint: voter.Fingerprint,
		CreatedAt:   time.Now(),
	}
	if err := c.audit.Append(ctx, vote); err != nil {
		// Best-effort only: the vote is already durable and acknowledged.
		c.log.Warn("failed to append vote audit record", "error", err)
	}
}

func (c *counter) persist(ctx context.Context) error {
	return c.store.Save(ctx, &domain.CounterState{
		PollID:  c.pollID,
		Options: c.copyOptions(),
		Total:   c.total,
		Voters:  c.copyVoters(),
	})
}

func (c *counter) adopt(state *domain.CounterState) {
	c.options = make([]domain.OptionCount, len(state.Options))
	copy(c.options, state.Options)
	c.index = make(map[uuid.UUID]int, len(c.options))
	for i, opt := range c.options {
		c.index[opt.ID] = i
	}
	c.total = state.Total
	c.voters = make(map[string]struct{}, len(state.Voters))
	for _, key := range state.Voters {
		c.voters[key] = struct{}{}
	}
	c.initialized = true
}

func (c *counter) reset() {
	c.options = nil
	c.index = make(map[uuid.UUID]int)
	c.total = 0
	c.voters = make(map[string]struct{})
	c.initialized = false
}

func (c *counter) snapshot() *domain.CountSnapshot {
	return &domain.CountSnapshot{
		PollID:  c.pollID,
		Options: c.copyOptions(),
		Total:   c.total,
	}
}

func (c *counter) counts() map[uuid.UUID]int64 {
	counts := make(map[uuid.UUID]int64, len(c.options))
	for _, opt := range c.options {
		counts[opt.ID] = opt.VoteCount
	}
	return counts
}

func (c *counter) copyOptions() []domain.OptionCount {
	options := make([]domain.OptionCount, len(c.options))
	copy(options, c.options)
	return options
}

func (c *counter) copyVoters() []string {
	voters := make([]string, 0, len(c.voters))
	for key := range c.voters {
		voters = append(voters, key)
	}
	return voters
}

func (c *counter) ask(ctx context.Context, m message) (result, error) {
	m.ctx = ctx
	m.reply = make(chan result, 1)

	select {
	case c.mailbox <- m:
	case <-c.done:
		return result{}, ErrClosed
	case <-ctx.Done():
		return result{}, ctx.Err()
	}

	select {
	case res := <-m.reply:
		return res, nil
	case <-ctx.Done():
		// The operation still completes inside the counter; the caller
		// just stops waiting for it. No partial state is possible.
		return result{}, ctx.Err()
	}
}
