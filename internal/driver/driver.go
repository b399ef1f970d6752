// Package driver glues fetch -> solve -> verify -> submit for a single batch, with
// the structured Retry/Skip error policy the scheduler depends on. Grounded on the
// original's services-core/src/driver/stablex_driver.rs (StableXDriver::solve_batch
// and ::submit_solution).
package driver

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/gnosis/dex-driver/internal/driverrors"
	"github.com/gnosis/dex-driver/internal/gasoracle"
	"github.com/gnosis/dex-driver/internal/orderbook"
	"github.com/gnosis/dex-driver/internal/solution"
	"github.com/gnosis/dex-driver/pkg/models"
)

// minRemainingDeadline is the threshold below which a batch is abandoned as trivial
// rather than handed to the price finder, per §4.7 step 3.
const minRemainingDeadline = time.Second

// PriceFinder is the external price-finding collaborator's contract (§6): given the
// batch's orders/account state and a time budget, it returns a candidate Solution.
type PriceFinder interface {
	FindPrices(ctx context.Context, batch models.BatchId, accounts models.AccountState, orders []models.Order, deadline time.Duration) (models.Solution, error)
}

// SubsidyParams are the inputs to the gas price cap formula (§4.9).
type SubsidyParams struct {
	SubsidyFactor  decimal.Decimal
	EthPriceInOwl  decimal.Decimal
	GasPerTrade    decimal.Decimal
}

// Driver is the per-process batch lifecycle coordinator.
type Driver struct {
	Reader      *orderbook.Reader
	PriceFinder PriceFinder
	Submitter   *solution.Submitter
	Subsidy     SubsidyParams
	Log         *zap.Logger

	// SolveEndTime is injected rather than imported directly from internal/batchclock
	// to keep the package testable against arbitrary instants.
	SolveEndTime func(models.BatchId) time.Time
}

// SolveBatch implements §4.7's solve_batch: fetch orderbook, bail out trivially if
// there are no orders or the deadline is already exhausted, otherwise invoke the price
// finder.
func (d *Driver) SolveBatch(ctx context.Context, batch models.BatchId, deadline time.Duration) (models.Solution, error) {
	fetchStart := time.Now()
	accounts, orders, err := d.Reader.AuctionStateForBatch(batch)
	if err != nil {
		return models.Solution{}, driverrors.Retry(err)
	}

	if len(orders) == 0 {
		return models.TrivialSolution(), nil
	}

	remaining := deadline - time.Since(fetchStart)
	if remaining <= minRemainingDeadline {
		d.logf("batch %d: orderbook fetch exhausted the deadline, skipping solve", batch)
		return models.TrivialSolution(), nil
	}

	sol, err := d.PriceFinder.FindPrices(ctx, batch, accounts, orders, remaining)
	if err != nil {
		return models.Solution{}, driverrors.Skip(err)
	}
	return sol, nil
}

// SubmitSolution implements §4.7's submit_solution: no-op for a trivial solution,
// otherwise verify via simulation, compute the gas price cap, and submit.
func (d *Driver) SubmitSolution(ctx context.Context, batch models.BatchId, sol models.Solution) error {
	if sol.IsTrivial() {
		return nil
	}

	objective, err := d.Submitter.GetSolutionObjectiveValue(ctx, batch, sol)
	if err != nil {
		if driverrors.Is(err, driverrors.KindBenign) {
			d.logf("batch %d: verification rejected solution benignly: %v", batch, err)
			return nil
		}
		return err
	}

	cap, err := gasoracle.CapFromSubsidy(d.Subsidy.SubsidyFactor, burntFeesInOwl(sol), d.Subsidy.EthPriceInOwl, d.Subsidy.GasPerTrade, len(sol.ExecutedOrders))
	if err != nil {
		return driverrors.Unexpected(err)
	}

	err = d.Submitter.SubmitSolution(ctx, batch, sol, objective, cap, d.SolveEndTime)
	if err != nil && driverrors.Is(err, driverrors.KindBenign) {
		d.logf("batch %d: submission rejected benignly: %v", batch, err)
		return nil
	}
	return err
}

func burntFeesInOwl(sol models.Solution) decimal.Decimal {
	if sol.BurntFees == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(sol.BurntFees, 0)
}

func (d *Driver) logf(format string, args ...interface{}) {
	if d.Log == nil {
		return
	}
	d.Log.Sugar().Infof(format, args...)
}
