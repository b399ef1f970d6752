package driver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnosis/dex-driver/internal/driverrors"
	"github.com/gnosis/dex-driver/internal/eventlog"
	"github.com/gnosis/dex-driver/internal/orderbook"
	"github.com/gnosis/dex-driver/pkg/models"
)

type stubPriceFinder struct {
	solution models.Solution
	err      error
	called   bool
}

func (f *stubPriceFinder) FindPrices(ctx context.Context, batch models.BatchId, accounts models.AccountState, orders []models.Order, deadline time.Duration) (models.Solution, error) {
	f.called = true
	return f.solution, f.err
}

// TestSolveBatchWithNoOrdersReturnsTrivialWithoutCallingPriceFinder exercises
// testable property 6: with zero orders, output is trivial and no price-finder call
// is made.
func TestSolveBatchWithNoOrdersReturnsTrivialWithoutCallingPriceFinder(t *testing.T) {
	r := orderbook.New(eventlog.New())
	pf := &stubPriceFinder{}
	d := &Driver{Reader: r, PriceFinder: pf}

	sol, err := d.SolveBatch(context.Background(), 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, sol.IsTrivial())
	assert.False(t, pf.called)
}

// TestSolveBatchWithExhaustedDeadlineSkipsPriceFinder exercises testable property 7:
// when the fetch already consumed more than deadline - 1s, output is trivial and no
// price-finder call is made.
func TestSolveBatchWithExhaustedDeadlineSkipsPriceFinder(t *testing.T) {
	l := eventlog.New()
	l.Append(models.OrderPlacement{Owner: [20]byte{1}, Index: 0, ValidFrom: 0, ValidUntil: 10, PriceNumerator: models.NewAmount(1), PriceDenominator: models.NewAmount(1)}, 1, [32]byte{1}, 0, 0)
	r := orderbook.New(l)
	pf := &stubPriceFinder{}
	d := &Driver{Reader: r, PriceFinder: pf}

	sol, err := d.SolveBatch(context.Background(), 1, time.Nanosecond)
	require.NoError(t, err)
	assert.True(t, sol.IsTrivial())
	assert.False(t, pf.called)
}

func TestSolveBatchInvokesPriceFinderWhenOrdersExist(t *testing.T) {
	l := eventlog.New()
	l.Append(models.OrderPlacement{Owner: [20]byte{1}, Index: 0, ValidFrom: 0, ValidUntil: 10, PriceNumerator: models.NewAmount(1), PriceDenominator: models.NewAmount(1)}, 1, [32]byte{1}, 0, 0)
	r := orderbook.New(l)
	want := models.Solution{Prices: map[models.TokenId]models.Amount{1: models.NewAmount(5)}, ExecutedOrders: []models.ExecutedOrder{{}}}
	pf := &stubPriceFinder{solution: want}
	d := &Driver{Reader: r, PriceFinder: pf}

	sol, err := d.SolveBatch(context.Background(), 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, pf.called)
	assert.Equal(t, want, sol)
}

func TestSolveBatchMapsPriceFinderFailureToSkip(t *testing.T) {
	l := eventlog.New()
	l.Append(models.OrderPlacement{Owner: [20]byte{1}, Index: 0, ValidFrom: 0, ValidUntil: 10, PriceNumerator: models.NewAmount(1), PriceDenominator: models.NewAmount(1)}, 1, [32]byte{1}, 0, 0)
	r := orderbook.New(l)
	pf := &stubPriceFinder{err: errors.New("solver crashed")}
	d := &Driver{Reader: r, PriceFinder: pf}

	_, err := d.SolveBatch(context.Background(), 1, time.Minute)
	require.Error(t, err)
	assert.True(t, driverrors.Is(err, driverrors.KindSkip))
}

func TestSubmitSolutionIsNoopForTrivialSolution(t *testing.T) {
	d := &Driver{}
	err := d.SubmitSolution(context.Background(), 1, models.TrivialSolution())
	assert.NoError(t, err)
}
