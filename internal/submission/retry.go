// Package submission implements the gas-price-escalating retry loop that submits a
// settlement transaction, racing successive attempts (all sharing one nonce) against
// a per-attempt timeout. Grounded on the original's
// core/src/solution_submission/retry.rs (InfallibleGasPriceEstimator, the gas_price
// formula, and the FuturesUnordered race over submit attempts).
package submission

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gnosis/dex-driver/internal/exchange"
	"github.com/gnosis/dex-driver/internal/gasoracle"
	"github.com/gnosis/dex-driver/pkg/models"
)

// perAttemptTimeout is the wait before escalating to the next gas price, matching the
// original's fixed 30-second per-attempt window.
const perAttemptTimeout = 30 * time.Second

// Args bundles one submission retry loop's inputs.
type Args struct {
	Batch             models.BatchId
	Solution          models.Solution
	ClaimedObjective  models.Objective
	GasPriceCap       decimal.Decimal
	Nonce             exchange.Nonce
	GasLimit          uint64
	TargetConfirmTime time.Time
}

// attemptResult is one submit goroutine's outcome, tagged so the racing loop can tell
// nonce-races apart from real failures.
type attemptResult struct {
	result exchange.TxResult
	err    error
}

// Submit runs the escalating retry loop described in the package doc and returns the
// first attempt's result that is not absorbed as a nonce race, or ctx's error if it is
// cancelled first.
func Submit(ctx context.Context, client exchange.Client, estimator *gasoracle.InfallibleEstimator, args Args) (exchange.TxResult, error) {
	effectiveCap := gasoracle.EffectiveCap(args.GasPriceCap)
	results := make(chan attemptResult)
	inFlight := 0

	fire := func(gasPrice decimal.Decimal) {
		inFlight++
		go func() {
			res, err := client.SubmitSolution(ctx, args.Batch, args.Solution, args.ClaimedObjective, gasPrice, args.Nonce, args.GasLimit)
			results <- attemptResult{result: res, err: err}
		}()
	}

	k := 0
	for {
		estimate := estimator.Estimate()
		gasPrice := gasoracle.AttemptGasPrice(estimate, args.GasPriceCap, k)
		fire(gasPrice)

		terminal := gasPrice.GreaterThanOrEqual(effectiveCap)

		var timeout <-chan time.Time
		if !terminal {
			timer := time.NewTimer(perAttemptTimeout)
			defer timer.Stop()
			timeout = timer.C
		}

		for {
			select {
			case <-ctx.Done():
				return exchange.TxResult{}, ctx.Err()

			case <-timeout:
				// Escalate to the next attempt without abandoning this one; it keeps
				// racing in the background and may still win.
				goto nextAttempt

			case ar := <-results:
				inFlight--
				if ar.err != nil {
					if exchange.IsNonceTooLowOrReplaced(ar.err) && inFlight > 0 {
						// Another in-flight attempt has won the nonce race; keep
						// waiting for its result instead of failing here.
						continue
					}
					return exchange.TxResult{}, ar.err
				}
				return ar.result, nil
			}
		}

	nextAttempt:
		// Reachable only via the timeout branch, which is armed only when this
		// attempt was not terminal.
		k++
	}
}
