package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/livepoll/internal/core/ports"
)

type recountService struct {
	pollRepo    ports.PollRepository
	recountRepo ports.RecountRepository
}

func NewRecountService(pollRepo ports.PollRepository, recountRepo ports.RecountRepository) ports.RecountService {
	return &recountService{
		pollRepo:    pollRepo,
		recountRepo: recountRepo,
	}
}

// RecountAllVotes rebuilds every poll's stored counts from the audit log.
// Recovery tooling for when counter private storage is lost; not part of
// the live vote path.
func (s *recountService) RecountAllVotes(ctx context.Context) error {
	polls, err := s.pollRepo.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch all polls: %w", err)
	}

	var wg sync.WaitGroup
	errChan := make(chan error, len(polls))

	for _, poll := range polls {
		wg.Add(1)
		go func(pID uuid.UUID) {
			defer wg.Done()
			if err := s.recountRepo.RecountVotes(ctx, pID); err != nil {
				errChan <- fmt.Errorf("failed to recount poll %s: %w", pID, err)
			}
		}(poll.ID)
	}

	wg.Wait()
	close(errChan)

	for err := range errChan {
		if err != nil {
			return err
		}
	}

	return nil
}
