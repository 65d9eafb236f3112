// Package bolt persists counter state in a local bbolt file. This is the
// counters' private storage: writes go through fsync before returning, which
// is what gives the vote path its write-ahead guarantee across restarts.
package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/livepoll/internal/core/domain"
	"github.com/vncsmyrnk/livepoll/internal/core/ports"
	bbolt "go.etcd.io/bbolt"
)

var countersBucket = []byte("counters")

type Store struct {
	db *bbolt.DB
}

func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	db, err := bbolt.Open(path, 0o600, bbolt.DefaultOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(countersBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create counters bucket: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Load(ctx context.Context, pollID uuid.UUID) (*domain.CounterState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var state *domain.CounterState
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(countersBucket).Get(pollID[:])
		if raw == nil {
			return domain.ErrStateNotFound
		}
		state = &domain.CounterState{}
		return json.Unmarshal(raw, state)
	})
	if err != nil {
		if err == domain.ErrStateNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load counter state: %w", err)
	}
	return state, nil
}

func (s *Store) Save(ctx context.Context, state *domain.CounterState) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode counter state: %w", err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(countersBucket).Put(state.PollID[:], raw)
	})
	if err != nil {
		return fmt.Errorf("failed to save counter state: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

var _ ports.StateStore = (*Store)(nil)
