package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"branchwarden/internal/fetcher"
	"branchwarden/internal/policy"
)

// SnapshotSource fetches the server state of a project.
type SnapshotSource interface {
	Snapshot(ctx context.Context, project policy.Project) (*fetcher.Snapshot, error)
}

type Scheduler struct {
	source      SnapshotSource
	concurrency int
}

func NewScheduler(source SnapshotSource, concurrency int) (*Scheduler, error) {
	if source == nil {
		return nil, errors.New("snapshot source is nil")
	}
	if concurrency <= 0 {
		return nil, fmt.Errorf("concurrency must be >= 1, got %d", concurrency)
	}
	return &Scheduler{source: source, concurrency: concurrency}, nil
}

// Execute streams one SnapshotResult per project, in completion order.
//
// Channel semantics:
//   - In the normal (non-canceled) case, exactly one SnapshotResult is sent per project.
//   - On context cancellation, the scheduler stops promptly; it may emit fewer results.
//   - The results channel and error channel are both closed reliably.
//   - The error channel carries invalid input and cancellation only; snapshot
//     failures are recorded on SnapshotResult.Err.
func (s *Scheduler) Execute(ctx context.Context, projects []policy.Project) (<-chan SnapshotResult, <-chan error) {
	resultsCh := make(chan SnapshotResult)
	errCh := make(chan error, 1)

	go func() {
		defer close(resultsCh)
		defer close(errCh)

		trySendErr := func(err error) {
			if err == nil {
				return
			}
			select {
			case errCh <- err:
			default:
			}
		}

		if ctx == nil {
			trySendErr(errors.New("context is nil"))
			return
		}
		if s == nil || s.source == nil {
			trySendErr(errors.New("scheduler is not initialized (use NewScheduler)"))
			return
		}

		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		sem := make(chan struct{}, s.concurrency)
		var wg sync.WaitGroup

	scheduleLoop:
		for _, project := range projects {
			if runCtx.Err() != nil {
				break
			}
			select {
			case sem <- struct{}{}:
			case <-runCtx.Done():
				break scheduleLoop
			}

			wg.Add(1)
			go func(project policy.Project) {
				defer wg.Done()
				defer func() { <-sem }()

				snap, err := s.source.Snapshot(runCtx, project)
				if runCtx.Err() != nil {
					return
				}
				res := SnapshotResult{Project: project, Snapshot: snap, Err: err}
				select {
				case resultsCh <- res:
				case <-runCtx.Done():
				}
			}(project)
		}

		wg.Wait()
		trySendErr(ctx.Err())
	}()

	return resultsCh, errCh
}
