// Package solution orchestrates verifying a candidate settlement against the
// contract, then racing its submission against a cancellation sharing the same
// nonce. Grounded on the original's core/src/solution_submission.rs
// (StableXSolutionSubmitter, error string classification, submit/cancel race).
package solution

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gnosis/dex-driver/internal/driverrors"
	"github.com/gnosis/dex-driver/internal/exchange"
	"github.com/gnosis/dex-driver/internal/gasoracle"
	"github.com/gnosis/dex-driver/internal/submission"
	"github.com/gnosis/dex-driver/pkg/models"
)

// cancelGraceDuration is how long after the target confirm time the submitter waits
// before arming the cancellation; matches the original's fixed 30-second grace.
const cancelGraceDuration = 30 * time.Second

// cancelGasMultiplier is applied to the cap to guarantee the cancel transaction can
// always outbid the last submission attempt.
var cancelGasMultiplier = decimal.NewFromFloat(1.125)

// Submitter is the per-process orchestrator for the verify/submit/cancel flow.
type Submitter struct {
	Client    exchange.Client
	Estimator *gasoracle.InfallibleEstimator
}

// raceResult is one participant's outcome in the submit/cancel race, tagged by which
// side produced it.
type raceResult struct {
	from string
	res  exchange.TxResult
	err  error
}

// New constructs a Submitter.
func New(client exchange.Client, estimator *gasoracle.InfallibleEstimator) *Submitter {
	return &Submitter{Client: client, Estimator: estimator}
}

// GetSolutionObjectiveValue delegates to the exchange client's simulation and maps any
// revert into a Benign or Unexpected driverrors.Error.
func (s *Submitter) GetSolutionObjectiveValue(ctx context.Context, batch models.BatchId, sol models.Solution) (models.Objective, error) {
	objective, err := s.Client.SimulateSubmitSolution(ctx, batch, sol, 0)
	if err == nil {
		return objective, nil
	}
	return nil, classifyOrUnexpected(err)
}

// solveEndTimeFunc abstracts batchclock.Clock.SolveEndTime; internal/driver passes it
// in (cmd/driver wires the clock's method) so tests can use arbitrary instants.
type solveEndTimeFunc func(models.BatchId) time.Time

// SubmitSolution runs the algorithm in §4.6: it computes the target confirm time via
// solveEndTime, reads the current nonce, races a gas-escalating submission against a
// delayed cancellation sharing that nonce, and returns once exactly one of them is
// known to have settled.
func (s *Submitter) SubmitSolution(ctx context.Context, batch models.BatchId, sol models.Solution, claimedObjective models.Objective, gasPriceCap decimal.Decimal, solveEndTime solveEndTimeFunc) error {
	nonce, err := s.Client.GetTransactionCount(ctx)
	if err != nil {
		return driverrors.Unexpected(err)
	}

	targetConfirmTime := solveEndTime(batch)
	cancelAt := targetConfirmTime.Add(cancelGraceDuration)

	results := make(chan raceResult, 2)

	go func() {
		res, err := submission.Submit(ctx, s.Client, s.Estimator, submission.Args{
			Batch:             batch,
			Solution:          sol,
			ClaimedObjective:  claimedObjective,
			GasPriceCap:       gasPriceCap,
			Nonce:             nonce,
			TargetConfirmTime: targetConfirmTime,
		})
		results <- raceResult{from: "submit", res: res, err: err}
	}()

	go func() {
		select {
		case <-ctx.Done():
			results <- raceResult{from: "cancel", err: ctx.Err()}
			return
		case <-time.After(time.Until(cancelAt)):
		}
		res, err := s.Client.SendNoopTransaction(ctx, gasPriceCap.Mul(cancelGasMultiplier), nonce)
		results <- raceResult{from: "cancel", res: res, err: err}
	}()

	first := <-results
	if outcome, done := s.settle(ctx, batch, sol, first); done {
		return outcome
	}
	// The first side to report consumed the nonce without confirming; wait for the
	// other side, which is authoritative about what actually landed on chain.
	second := <-results
	if outcome, done := s.settle(ctx, batch, sol, second); done {
		return outcome
	}
	// Neither side confirmed: both reported a nonce-too-low/replaced error, so there is
	// no conclusive result to report.
	return driverrors.Unexpected(errors.New("not confirmed in time"))
}

// settle interprets one race participant's outcome. It returns done=true when the
// result is conclusive (a confirmed submission, a confirmed cancellation, or a
// genuine non-nonce failure); done=false means the caller must wait for the other
// side before deciding.
func (s *Submitter) settle(ctx context.Context, batch models.BatchId, sol models.Solution, r raceResult) (error, bool) {
	if r.err == nil {
		if r.from == "submit" {
			return finalize(ctx, s.Client, batch, sol, r.res), true
		}
		// The cancellation confirmed, which means the submission never did: the
		// batch deadline passed without a settlement on chain.
		return driverrors.Unexpected(errors.New("not confirmed in time")), true
	}
	if exchange.IsNonceTooLowOrReplaced(r.err) {
		return nil, false
	}
	return driverrors.Unexpected(r.err), true
}

func finalize(ctx context.Context, client exchange.Client, batch models.BatchId, sol models.Solution, res exchange.TxResult) error {
	if !res.Reverted {
		return nil
	}
	reason := res.RevertReason
	if reason == "" {
		// Re-simulate the actual submitted solution against the receipt's block to
		// recover the revert reason, per §4.6's re-run instruction.
		if _, err := client.SimulateSubmitSolution(ctx, batch, sol, res.BlockNumber); err != nil {
			reason = err.Error()
		}
	}
	return classifyOrUnexpected(errors.New(reason))
}

func classifyOrUnexpected(err error) error {
	return driverrors.ClassifyRevert(err.Error())
}
