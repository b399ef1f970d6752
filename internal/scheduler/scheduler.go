// Package scheduler drives successive batches in lockstep with on-chain batch
// timing. Grounded on the original's
// services-core/src/driver/scheduler/evm.rs (EvmScheduler poll-until-batch-changes
// loop), per the spec's explicit choice of the EVM-informed scheduler over the
// legacy system-clock variant.
package scheduler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/gnosis/dex-driver/internal/batchclock"
	"github.com/gnosis/dex-driver/internal/driverrors"
	"github.com/gnosis/dex-driver/pkg/models"
)

var errBatchChangedWhileSolving = errors.New("solving batch changed before a solution was ready")
var errSubmitWindowElapsed = errors.New("latest solution submit time elapsed while retrying")

// pollInterval is how often the scheduler checks whether the solving batch has
// advanced while waiting for a batch transition.
const pollInterval = 2 * time.Second

// CurrentBatchSource reports the batch currently accepting orders, typically backed
// by internal/exchange.Client.CurrentAuctionIndex.
type CurrentBatchSource interface {
	CurrentAuctionIndex(ctx context.Context) (models.BatchId, error)
}

// Driver is the subset of internal/driver.Driver the scheduler depends on.
type Driver interface {
	SolveBatch(ctx context.Context, batch models.BatchId, deadline time.Duration) (models.Solution, error)
	SubmitSolution(ctx context.Context, batch models.BatchId, sol models.Solution) error
}

// Config carries the timing knobs from §4.8.
type Config struct {
	// EarliestSolutionSubmitTime and LatestSolutionSubmitTime are in seconds
	// elapsed since the start of the batch, with 0 <= earliest < latest < 300.
	EarliestSolutionSubmitTime time.Duration
	LatestSolutionSubmitTime   time.Duration
}

// Scheduler runs the loop described in §4.8.
type Scheduler struct {
	Clock    batchclock.Clock
	Source   CurrentBatchSource
	Driver   Driver
	Config   Config
	Log      *zap.Logger
	OnReady  func()
	Now      func() time.Time
	// PollInterval overrides the default wait between polls of the current solving
	// batch; tests set this short to avoid waiting on real wall-clock seconds.
	PollInterval time.Duration
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Scheduler) pollInterval() time.Duration {
	if s.PollInterval > 0 {
		return s.PollInterval
	}
	return pollInterval
}

// Run drives batches forever until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	last, err := s.currentSolvingBatch(ctx)
	if err != nil {
		return err
	}

	for {
		newBatch, err := s.waitUntilSolvingBatchChanges(ctx, last)
		if err != nil {
			return err
		}
		if s.OnReady != nil {
			s.OnReady()
		}

		elapsed := s.Clock.ElapsedInBatch(s.now())
		deadline := s.Config.LatestSolutionSubmitTime - elapsed
		if deadline <= 0 {
			s.log("batch %d: no time remains to submit, skipping", newBatch)
			last = newBatch
			continue
		}

		sol, solveErr := s.Driver.SolveBatch(ctx, newBatch, deadline)
		if solveErr != nil {
			if driverrors.Is(solveErr, driverrors.KindRetry) {
				sol, solveErr = s.retryUntilBatchChanges(ctx, newBatch, deadline)
				if solveErr != nil {
					last = newBatch
					continue
				}
			} else {
				s.log("batch %d: skipped: %v", newBatch, solveErr)
				last = newBatch
				continue
			}
		}

		if err := s.waitUntilEarliestSubmitTime(ctx, newBatch); err != nil {
			return err
		}
		if err := s.Driver.SubmitSolution(ctx, newBatch, sol); err != nil {
			s.log("batch %d: submission error: %v", newBatch, err)
		}
		last = newBatch
	}
}

func (s *Scheduler) retryUntilBatchChanges(ctx context.Context, batch models.BatchId, deadline time.Duration) (models.Solution, error) {
	for {
		select {
		case <-ctx.Done():
			return models.Solution{}, ctx.Err()
		default:
		}
		current, err := s.currentSolvingBatch(ctx)
		if err != nil {
			return models.Solution{}, err
		}
		if current != batch {
			return models.Solution{}, driverrors.Skip(errBatchChangedWhileSolving)
		}
		elapsed := s.Clock.ElapsedInBatch(s.now())
		remaining := s.Config.LatestSolutionSubmitTime - elapsed
		if remaining <= 0 {
			return models.Solution{}, driverrors.Skip(errSubmitWindowElapsed)
		}
		sol, err := s.Driver.SolveBatch(ctx, batch, remaining)
		if err == nil {
			return sol, nil
		}
		if !driverrors.Is(err, driverrors.KindRetry) {
			return models.Solution{}, err
		}
		select {
		case <-ctx.Done():
			return models.Solution{}, ctx.Err()
		case <-time.After(s.pollInterval()):
		}
	}
}

func (s *Scheduler) currentSolvingBatch(ctx context.Context) (models.BatchId, error) {
	current, err := s.Source.CurrentAuctionIndex(ctx)
	if err != nil {
		return 0, err
	}
	if current == 0 {
		return 0, nil
	}
	return current - 1, nil
}

func (s *Scheduler) waitUntilSolvingBatchChanges(ctx context.Context, last models.BatchId) (models.BatchId, error) {
	for {
		current, err := s.currentSolvingBatch(ctx)
		if err != nil {
			return 0, err
		}
		if current != last {
			return current, nil
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(s.pollInterval()):
		}
	}
}

func (s *Scheduler) waitUntilEarliestSubmitTime(ctx context.Context, batch models.BatchId) error {
	for {
		elapsed := s.Clock.ElapsedInBatch(s.now())
		if elapsed >= s.Config.EarliestSolutionSubmitTime {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.pollInterval()):
		}
	}
}

func (s *Scheduler) log(format string, args ...interface{}) {
	if s.Log == nil {
		return
	}
	s.Log.Sugar().Infof(format, args...)
}
