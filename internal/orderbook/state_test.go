package orderbook

import (
	"math/rand"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gnosis/dex-driver/internal/eventlog"
	"github.com/gnosis/dex-driver/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	token0 = common.HexToAddress("0x1000")
	token1 = common.HexToAddress("0x2000")
	token2 = common.HexToAddress("0x3000")
	u1     = common.HexToAddress("0xa001")
	u2     = common.HexToAddress("0xa002")
)

func hash(b byte) models.BlockHash {
	var h common.Hash
	h[31] = b
	return h
}

type logged struct {
	event     models.Event
	block     uint64
	logIndex  uint64
	timestamp uint64
}

func buildLog(t *testing.T, events []logged) *eventlog.Log {
	t.Helper()
	l := eventlog.New()
	for _, e := range events {
		l.Append(e.event, e.block, hash(byte(e.block)), e.logIndex, e.timestamp)
	}
	return l
}

// TestS1TradeSettlementDefersUntilNextBatch exercises scenario S1: trades accumulated
// in one batch only take effect once a later block's batch id has advanced past the
// batch the SolutionSubmission event was observed in.
func TestS1TradeSettlementDefersUntilNextBatch(t *testing.T) {
	const batchDuration = uint64(models.BatchDuration)
	batch0 := batchDuration * 0
	batch1 := batchDuration * 1

	events := []logged{
		{models.TokenListing{Id: 0, Address: token0}, 1, 0, batch0},
		{models.TokenListing{Id: 1, Address: token1}, 1, 1, batch0},
		{models.TokenListing{Id: 2, Address: token2}, 1, 2, batch0},
		{models.Deposit{User: u1, Token: token0, Amount: models.NewAmount(10), BatchId: 0}, 2, 0, batch0},
		{models.Deposit{User: u1, Token: token1, Amount: models.NewAmount(10), BatchId: 0}, 2, 1, batch0},
		{models.Deposit{User: u1, Token: token2, Amount: models.NewAmount(10), BatchId: 0}, 2, 2, batch0},
		{models.Deposit{User: u2, Token: token0, Amount: models.NewAmount(10), BatchId: 0}, 2, 3, batch0},
		{models.Deposit{User: u2, Token: token1, Amount: models.NewAmount(10), BatchId: 0}, 2, 4, batch0},
		{models.OrderPlacement{Owner: u1, Index: 0, BuyToken: 0, SellToken: 1, ValidFrom: 0, ValidUntil: 10, PriceNumerator: models.NewAmount(5), PriceDenominator: models.NewAmount(5)}, 3, 0, batch0},
		{models.OrderPlacement{Owner: u2, Index: 0, BuyToken: 1, SellToken: 0, ValidFrom: 0, ValidUntil: 10, PriceNumerator: models.NewAmount(3), PriceDenominator: models.NewAmount(3)}, 3, 1, batch0},
		{models.Trade{Owner: u1, OrderId: 0, SellToken: 1, BuyToken: 0, ExecutedSellAmount: models.NewAmount(1), ExecutedBuyAmount: models.NewAmount(2)}, 10, 0, batch1},
		{models.Trade{Owner: u2, OrderId: 0, SellToken: 0, BuyToken: 1, ExecutedSellAmount: models.NewAmount(2), ExecutedBuyAmount: models.NewAmount(1)}, 10, 1, batch1},
		{models.SolutionSubmission{Submitter: u1, BurntFees: models.NewAmount(0)}, 10, 2, batch1},
	}
	l := buildLog(t, events)
	r := New(l)

	// As of batch 1, the trades have not matured yet: deposits from batch 0 have, but
	// the traded balances are still pre-trade.
	accBatch1, _, err := r.AuctionStateForBatch(1)
	require.NoError(t, err)
	assert.Equal(t, models.NewAmount(10), accBatch1[models.AccountBalanceKey{User: u1, TokenId: 0}])
	assert.Equal(t, models.NewAmount(10), accBatch1[models.AccountBalanceKey{User: u1, TokenId: 1}])

	// As of batch 2, the solution submitted during batch 1 has matured.
	accBatch2, _, err := r.AuctionStateForBatch(2)
	require.NoError(t, err)
	assert.Equal(t, models.NewAmount(12), accBatch2[models.AccountBalanceKey{User: u1, TokenId: 0}])
	assert.Equal(t, models.NewAmount(9), accBatch2[models.AccountBalanceKey{User: u1, TokenId: 1}])
	assert.Equal(t, models.NewAmount(8), accBatch2[models.AccountBalanceKey{User: u2, TokenId: 0}])
	assert.Equal(t, models.NewAmount(11), accBatch2[models.AccountBalanceKey{User: u2, TokenId: 1}])
}

// TestS2WithdrawSaturatesAtZero exercises scenario S2: a withdraw request for more
// than the deposited amount leaves the balance at zero rather than negative.
func TestS2WithdrawSaturatesAtZero(t *testing.T) {
	const batchDuration = uint64(models.BatchDuration)
	events := []logged{
		{models.TokenListing{Id: 0, Address: token0}, 1, 0, 0},
		{models.Deposit{User: u1, Token: token0, Amount: models.NewAmount(2), BatchId: 0}, 2, 0, 0},
		{models.WithdrawRequest{User: u1, Token: token0, Amount: models.NewAmount(3), BatchId: 2}, 3, 0, batchDuration * 2},
	}
	l := buildLog(t, events)
	r := New(l)

	acc, _, err := r.AuctionStateForBatch(3)
	require.NoError(t, err)
	assert.Equal(t, models.NewAmount(0), acc[models.AccountBalanceKey{User: u1, TokenId: 0}])
}

// TestS3SolutionSubmissionWithoutFeeTokenFails exercises scenario S3: a
// SolutionSubmission event observed before token id 0 has ever been listed is
// rejected, and does not mutate state.
func TestS3SolutionSubmissionWithoutFeeTokenFails(t *testing.T) {
	events := []logged{
		{models.TokenListing{Id: 1, Address: token1}, 1, 0, 0},
		{models.SolutionSubmission{Submitter: u1, BurntFees: models.NewAmount(0)}, 2, 0, 0},
	}
	l := buildLog(t, events)
	r := New(l)

	_, _, err := r.AuctionStateForBatch(1)
	assert.ErrorIs(t, err, models.ErrSolutionWithoutFeeToken)
}

// TestS4OrderCancellationTakesEffectNextBatch exercises scenario S4: an order
// cancelled by a block belonging to batch 5 is still visible to batch 4's auction
// state, but gone from batch 5 onward.
func TestS4OrderCancellationTakesEffectNextBatch(t *testing.T) {
	const batchDuration = uint64(models.BatchDuration)
	events := []logged{
		{models.OrderPlacement{Owner: u1, Index: 0, BuyToken: 0, SellToken: 1, ValidFrom: 0, ValidUntil: 10, PriceNumerator: models.NewAmount(1), PriceDenominator: models.NewAmount(1)}, 1, 0, 0},
		{models.OrderCancellation{Owner: u1, Id: 0}, 2, 0, batchDuration * 5},
	}
	l := buildLog(t, events)
	r := New(l)

	_, ordersAt4, err := r.AuctionStateForBatch(4)
	require.NoError(t, err)
	assert.Len(t, ordersAt4, 1)

	_, ordersAt5, err := r.AuctionStateForBatch(5)
	require.NoError(t, err)
	assert.Len(t, ordersAt5, 0)
}

func TestOrderDeletionOfStillValidOrderFails(t *testing.T) {
	const batchDuration = uint64(models.BatchDuration)
	events := []logged{
		{models.OrderPlacement{Owner: u1, Index: 0, BuyToken: 0, SellToken: 1, ValidFrom: 0, ValidUntil: 10, PriceNumerator: models.NewAmount(1), PriceDenominator: models.NewAmount(1)}, 1, 0, 0},
		{models.OrderDeletion{Owner: u1, Id: 0}, 2, 0, batchDuration * 3},
	}
	l := buildLog(t, events)
	r := New(l)

	_, _, err := r.AuctionStateForBatch(4)
	assert.ErrorIs(t, err, models.ErrDeletingValidOrder)
}

func TestOrderDeletionOfExpiredOrderSucceeds(t *testing.T) {
	const batchDuration = uint64(models.BatchDuration)
	events := []logged{
		{models.OrderPlacement{Owner: u1, Index: 0, BuyToken: 0, SellToken: 1, ValidFrom: 0, ValidUntil: 1, PriceNumerator: models.NewAmount(1), PriceDenominator: models.NewAmount(1)}, 1, 0, 0},
		{models.OrderDeletion{Owner: u1, Id: 0}, 2, 0, batchDuration * 3},
	}
	l := buildLog(t, events)
	r := New(l)

	_, orders, err := r.AuctionStateForBatch(4)
	require.NoError(t, err)
	assert.Len(t, orders, 0)
}

func TestDuplicateOrderPlacementFails(t *testing.T) {
	events := []logged{
		{models.OrderPlacement{Owner: u1, Index: 0, BuyToken: 0, SellToken: 1, ValidFrom: 0, ValidUntil: 10, PriceNumerator: models.NewAmount(1), PriceDenominator: models.NewAmount(1)}, 1, 0, 0},
		{models.OrderPlacement{Owner: u1, Index: 0, BuyToken: 0, SellToken: 1, ValidFrom: 0, ValidUntil: 10, PriceNumerator: models.NewAmount(1), PriceDenominator: models.NewAmount(1)}, 2, 0, 0},
	}
	l := buildLog(t, events)
	r := New(l)

	_, _, err := r.AuctionStateForBatch(1)
	assert.ErrorIs(t, err, models.ErrOrderAlreadyExists)
}

// TestReplayIsOrderIndependent exercises property 1 from the testable properties
// list: the events in a batch resolve identically regardless of the order in which
// they were appended to the log, as long as their sort keys are unchanged, since
// only key order (not insertion order) governs replay.
func TestReplayIsOrderIndependent(t *testing.T) {
	const batchDuration = uint64(models.BatchDuration)
	base := []logged{
		{models.TokenListing{Id: 0, Address: token0}, 1, 0, 0},
		{models.TokenListing{Id: 1, Address: token1}, 1, 1, 0},
		{models.Deposit{User: u1, Token: token0, Amount: models.NewAmount(10), BatchId: 0}, 2, 0, 0},
		{models.Deposit{User: u2, Token: token1, Amount: models.NewAmount(10), BatchId: 0}, 2, 1, 0},
		{models.OrderPlacement{Owner: u1, Index: 0, BuyToken: 1, SellToken: 0, ValidFrom: 0, ValidUntil: 10, PriceNumerator: models.NewAmount(1), PriceDenominator: models.NewAmount(1)}, 3, 0, 0},
		{models.OrderPlacement{Owner: u2, Index: 0, BuyToken: 0, SellToken: 1, ValidFrom: 0, ValidUntil: 10, PriceNumerator: models.NewAmount(1), PriceDenominator: models.NewAmount(1)}, 3, 1, 0},
		{models.Trade{Owner: u1, OrderId: 0, SellToken: 0, BuyToken: 1, ExecutedSellAmount: models.NewAmount(1), ExecutedBuyAmount: models.NewAmount(1)}, 10, 0, batchDuration},
		{models.Trade{Owner: u2, OrderId: 0, SellToken: 1, BuyToken: 0, ExecutedSellAmount: models.NewAmount(1), ExecutedBuyAmount: models.NewAmount(1)}, 10, 1, batchDuration},
		{models.SolutionSubmission{Submitter: u1, BurntFees: models.NewAmount(0)}, 10, 2, batchDuration},
	}

	rng := rand.New(rand.NewSource(42))
	var reference models.AccountState
	for attempt := 0; attempt < 5; attempt++ {
		shuffled := append([]logged{}, base...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		l := buildLog(t, shuffled)
		r := New(l)
		acc, _, err := r.AuctionStateForBatch(2)
		require.NoError(t, err)
		if reference == nil {
			reference = acc
		} else {
			assert.Equal(t, reference, acc)
		}
	}
}

// TestAuctionStateAtBlockMaturesSameAsAuctionStateForBatch exercises
// auction_state_at_block's documented equivalence to auction_state_for_batch when the
// queried block belongs to the queried batch: the solution submitted during batch 1
// has not yet matured when observed from a block still in batch 1, but has matured
// once observed from a block in batch 2, mirroring TestS1TradeSettlementDefersUntilNextBatch.
func TestAuctionStateAtBlockMaturesSameAsAuctionStateForBatch(t *testing.T) {
	const batchDuration = uint64(models.BatchDuration)
	events := []logged{
		{models.TokenListing{Id: 0, Address: token0}, 1, 0, 0},
		{models.TokenListing{Id: 1, Address: token1}, 1, 1, 0},
		{models.Deposit{User: u1, Token: token0, Amount: models.NewAmount(10), BatchId: 0}, 2, 0, 0},
		{models.OrderPlacement{Owner: u1, Index: 0, BuyToken: 1, SellToken: 0, ValidFrom: 0, ValidUntil: 10, PriceNumerator: models.NewAmount(1), PriceDenominator: models.NewAmount(1)}, 3, 0, 0},
		{models.Trade{Owner: u1, OrderId: 0, SellToken: 0, BuyToken: 1, ExecutedSellAmount: models.NewAmount(1), ExecutedBuyAmount: models.NewAmount(1)}, 10, 0, batchDuration},
		{models.SolutionSubmission{Submitter: u1, BurntFees: models.NewAmount(0)}, 10, 1, batchDuration},
	}
	l := buildLog(t, events)
	r := New(l)

	// Block 10 is in batch 1; the solution it carries has not matured yet.
	accAtBatch1Block, _, err := r.AuctionStateAtBlock(1, 10, 1)
	require.NoError(t, err)
	assert.Equal(t, models.NewAmount(10), accAtBatch1Block[models.AccountBalanceKey{User: u1, TokenId: 0}])

	// A later block in batch 2 observes the same log; now the solution has matured.
	accAtBatch2Block, _, err := r.AuctionStateAtBlock(2, 20, 2)
	require.NoError(t, err)
	assert.Equal(t, models.NewAmount(9), accAtBatch2Block[models.AccountBalanceKey{User: u1, TokenId: 0}])
}

// TestAuctionStateAtBlockRejectsFutureBatch exercises spec.md's
// "errors if the requested batch is in the future relative to the block" clause.
func TestAuctionStateAtBlockRejectsFutureBatch(t *testing.T) {
	l := buildLog(t, []logged{
		{models.TokenListing{Id: 0, Address: token0}, 1, 0, 0},
	})
	r := New(l)

	_, _, err := r.AuctionStateAtBlock(5, 1, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "future")
}
