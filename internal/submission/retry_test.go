package submission

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnosis/dex-driver/internal/exchange"
	"github.com/gnosis/dex-driver/internal/gasoracle"
	"github.com/gnosis/dex-driver/pkg/models"
)

func constantEstimator(v decimal.Decimal) *gasoracle.InfallibleEstimator {
	return gasoracle.NewInfallibleEstimator(func() decimal.Decimal { return v })
}

// TestS5ExactlyOneAttemptFired exercises scenario S5: cap 100 gwei, estimator
// returning 90 gwei forever. The first attempt's gas price (90, since 90 < cap 100)
// already exceeds the effective cap (floor(100/1.125) = 88), so it must be the
// terminal attempt: no timeout is armed and the loop waits on it rather than firing
// a second one.
func TestS5ExactlyOneAttemptFired(t *testing.T) {
	estimator := constantEstimator(decimal.NewFromInt(90))
	mock := exchange.NewMockClient()

	var callCount int
	var gasPricesSeen []decimal.Decimal
	mock.SubmitFunc = func(batch models.BatchId, solution models.Solution, claimedObjective models.Objective, gasPrice decimal.Decimal, nonce exchange.Nonce) (exchange.TxResult, error) {
		callCount++
		gasPricesSeen = append(gasPricesSeen, gasPrice)
		return exchange.TxResult{TxHash: [32]byte{1}}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := Submit(ctx, mock, estimator, Args{GasPriceCap: decimal.NewFromInt(100)})
	require.NoError(t, err)
	assert.Equal(t, 1, callCount)
	assert.Len(t, gasPricesSeen, 1)
}

// TestSubmitReturnsFirstConfirmedAttempt: the first attempt (200 gwei, below the
// effective cap 888) confirms before the 30-second escalation, so no second attempt
// is fired within the test's 1-second deadline and its result is returned.
func TestSubmitReturnsFirstConfirmedAttempt(t *testing.T) {
	estimator := constantEstimator(decimal.NewFromInt(200))
	mock := exchange.NewMockClient()

	attempt := 0
	mock.SubmitFunc = func(batch models.BatchId, solution models.Solution, claimedObjective models.Objective, gasPrice decimal.Decimal, nonce exchange.Nonce) (exchange.TxResult, error) {
		attempt++
		if attempt == 1 {
			return exchange.TxResult{TxHash: [32]byte{9}}, nil
		}
		return exchange.TxResult{}, errors.New("nonce too low")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	result, err := Submit(ctx, mock, estimator, Args{GasPriceCap: decimal.NewFromInt(1000)})
	require.NoError(t, err)
	assert.Equal(t, [32]byte{9}, result.TxHash)
}

func TestSubmitPropagatesRealFailure(t *testing.T) {
	estimator := constantEstimator(decimal.NewFromInt(90))
	mock := exchange.NewMockClient()
	mock.SubmitFunc = func(batch models.BatchId, solution models.Solution, claimedObjective models.Objective, gasPrice decimal.Decimal, nonce exchange.Nonce) (exchange.TxResult, error) {
		return exchange.TxResult{}, errors.New("revert: SafeMath: subtraction overflow")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := Submit(ctx, mock, estimator, Args{GasPriceCap: decimal.NewFromInt(100)})
	require.Error(t, err)
}
