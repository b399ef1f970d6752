package solution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnosis/dex-driver/internal/driverrors"
	"github.com/gnosis/dex-driver/internal/exchange"
	"github.com/gnosis/dex-driver/internal/gasoracle"
	"github.com/gnosis/dex-driver/pkg/models"
)

func immediateSolveEndTime(t time.Time) solveEndTimeFunc {
	return func(models.BatchId) time.Time { return t }
}

// TestS6CancelConfirmsSubmitNonceErrors exercises scenario S6: the cancel
// transaction confirms first, and the submit side subsequently reports a nonce
// error (having lost the race). The submitter must report Unexpected, since the
// batch's solution was never actually confirmed on chain.
func TestS6CancelConfirmsSubmitNonceErrors(t *testing.T) {
	mock := exchange.NewMockClient()
	mock.SubmitFunc = func(models.BatchId, models.Solution, models.Objective, decimal.Decimal, exchange.Nonce) (exchange.TxResult, error) {
		time.Sleep(20 * time.Millisecond)
		return exchange.TxResult{}, errors.New("nonce too low")
	}
	mock.NoopFunc = func(decimal.Decimal, exchange.Nonce) (exchange.TxResult, error) {
		return exchange.TxResult{}, nil
	}

	estimator := gasoracle.NewInfallibleEstimator(func() decimal.Decimal { return decimal.NewFromInt(1) })
	s := New(mock, estimator)

	// Target confirm time already elapsed, so the cancellation fires immediately.
	past := time.Now().Add(-cancelGraceDuration - time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := s.SubmitSolution(ctx, 1, models.TrivialSolution(), nil, decimal.NewFromInt(100), immediateSolveEndTime(past))
	require.Error(t, err)
	assert.True(t, driverrors.Is(err, driverrors.KindUnexpected))
}

// TestS7SubmitConfirmsCancelNonceErrors exercises scenario S7: the submit side
// confirms, and the cancel side subsequently reports a nonce error having lost the
// race. The submitter must report success.
func TestS7SubmitConfirmsCancelNonceErrors(t *testing.T) {
	mock := exchange.NewMockClient()
	mock.SubmitFunc = func(models.BatchId, models.Solution, models.Objective, decimal.Decimal, exchange.Nonce) (exchange.TxResult, error) {
		return exchange.TxResult{TxHash: [32]byte{7}}, nil
	}
	mock.NoopFunc = func(decimal.Decimal, exchange.Nonce) (exchange.TxResult, error) {
		time.Sleep(20 * time.Millisecond)
		return exchange.TxResult{}, errors.New("nonce too low")
	}

	estimator := gasoracle.NewInfallibleEstimator(func() decimal.Decimal { return decimal.NewFromInt(1) })
	s := New(mock, estimator)

	past := time.Now().Add(-cancelGraceDuration - time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := s.SubmitSolution(ctx, 1, models.TrivialSolution(), nil, decimal.NewFromInt(100), immediateSolveEndTime(past))
	assert.NoError(t, err)
}

func TestGetSolutionObjectiveValueClassifiesBenignRevert(t *testing.T) {
	mock := exchange.NewMockClient()
	mock.SimulateFunc = func(models.BatchId, models.Solution, uint64) (models.Objective, error) {
		return nil, errors.New("New objective doesn't sufficiently improve current solution")
	}
	estimator := gasoracle.NewInfallibleEstimator(func() decimal.Decimal { return decimal.NewFromInt(1) })
	s := New(mock, estimator)

	_, err := s.GetSolutionObjectiveValue(context.Background(), 1, models.TrivialSolution())
	require.Error(t, err)
	assert.True(t, driverrors.Is(err, driverrors.KindBenign))
}

func TestGetSolutionObjectiveValueClassifiesUnexpectedRevert(t *testing.T) {
	mock := exchange.NewMockClient()
	mock.SimulateFunc = func(models.BatchId, models.Solution, uint64) (models.Objective, error) {
		return nil, errors.New("some structural RPC failure")
	}
	estimator := gasoracle.NewInfallibleEstimator(func() decimal.Decimal { return decimal.NewFromInt(1) })
	s := New(mock, estimator)

	_, err := s.GetSolutionObjectiveValue(context.Background(), 1, models.TrivialSolution())
	require.Error(t, err)
	assert.True(t, driverrors.Is(err, driverrors.KindUnexpected))
}
