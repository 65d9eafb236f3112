package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/livepoll/internal/core/domain"
	"github.com/vncsmyrnk/livepoll/internal/core/ports"
)

// ErrClosed is returned for operations issued after the registry shut down.
var ErrClosed = errors.New("vote engine closed")

const defaultFlushDelay = 5 * time.Second

type Option func(*Registry)

func WithFlushDelay(d time.Duration) Option {
	return func(r *Registry) { r.flushDelay = d }
}

func WithLogger(log *slog.Logger) Option {
	return func(r *Registry) { r.log = log }
}

// Registry routes each poll id to its single counter, spawning counters
// lazily. A counter whose state survived in the private store resumes from
// it; only a counter with no private record starts uninitialized and waits
// for seeding.
type Registry struct {
	mu       sync.Mutex
	counters map[uuid.UUID]*counter
	closed   bool

	store      ports.StateStore
	writer     ports.CountWriter
	audit      ports.AuditLog
	flushDelay time.Duration
	log        *slog.Logger
}

func NewRegistry(store ports.StateStore, writer ports.CountWriter, audit ports.AuditLog, opts ...Option) *Registry {
	r := &Registry{
		counters:   make(map[uuid.UUID]*counter),
		store:      store,
		writer:     writer,
		audit:      audit,
		flushDelay: defaultFlushDelay,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) Init(ctx context.Context, state *domain.CounterState) (*domain.CountSnapshot, error) {
	if state == nil || state.PollID == uuid.Nil {
		return nil, domain.ErrInvalidPollID
	}

	c, err := r.counterFor(ctx, state.PollID)
	if err != nil {
		return nil, err
	}
	res, err := c.ask(ctx, message{kind: msgInit, state: state})
	if err != nil {
		return nil, err
	}
	return res.snap, res.err
}

func (r *Registry) Vote(ctx context.Context, pollID, optionID uuid.UUID, voter domain.VoterKey, userID *uuid.UUID) (*domain.VoteResult, error) {
	if pollID == uuid.Nil {
		return nil, domain.ErrInvalidPollID
	}

	c, err := r.counterFor(ctx, pollID)
	if err != nil {
		return nil, err
	}
	res, err := c.ask(ctx, message{kind: msgVote, optionID: optionID, voter: voter, userID: userID})
	if err != nil {
		return nil, err
	}
	return res.vote, res.err
}

func (r *Registry) GetState(ctx context.Context, pollID uuid.UUID) (*domain.CountSnapshot, error) {
	if pollID == uuid.Nil {
		return nil, domain.ErrInvalidPollID
	}

	c, err := r.counterFor(ctx, pollID)
	if err != nil {
		return nil, err
	}
	res, err := c.ask(ctx, message{kind: msgGetState})
	if err != nil {
		return nil, err
	}
	return res.snap, res.err
}

// Close stops every counter, letting each run a final flush for votes not
// yet reconciled. Counters keep their private state; a restarted registry
// resumes them from the store.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	counters := make([]*counter, 0, len(r.counters))
	for _, c := range r.counters {
		counters = append(counters, c)
	}
	r.mu.Unlock()

	for _, c := range counters {
		close(c.done)
	}
	for _, c := range counters {
		select {
		case <-c.stopped:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (r *Registry) counterFor(ctx context.Context, pollID uuid.UUID) (*counter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}
	if c, ok := r.counters[pollID]; ok {
		return c, nil
	}

	c := newCounter(pollID, r.store, r.writer, r.audit, r.flushDelay, r.log)
	state, err := r.store.Load(ctx, pollID)
	switch {
	case err == nil:
		c.restore(state)
	case errors.Is(err, domain.ErrStateNotFound):
		// True cold start: the counter stays uninitialized until seeded.
	default:
		return nil, fmt.Errorf("failed to load counter state: %w", err)
	}

	r.counters[pollID] = c
	go c.run()
	return c, nil
}
