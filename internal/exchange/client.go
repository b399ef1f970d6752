// Package exchange abstracts read/write access to the batch auction exchange
// contract. Grounded on the original's services-core/src/contracts/stablex_contract.rs
// trait surface, with the RPC implementation shaped after the teacher's
// pkg/blockchain/ethereum.go and internal/blockchain/transaction_manager.go.
package exchange

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gnosis/dex-driver/pkg/models"
)

// TxResult is the outcome of a submitted transaction once observed on chain.
type TxResult struct {
	TxHash      [32]byte
	BlockNumber uint64
	Reverted    bool
	RevertReason string
}

// Nonce is the sender account's transaction counter.
type Nonce uint64

// EventBatch is a page of decoded contract events, in the order the Client observed
// them, handed to internal/eventlog's ingestion loop.
type EventBatch struct {
	BlockNumber uint64
	BlockHash   models.BlockHash
	LogIndex    uint64
	Timestamp   uint64
	Event       models.Event
}

// Client is the capability abstraction internal/solution and internal/submission
// depend on. A MockClient backs unit tests; RPCClient is the
// production go-ethereum-backed implementation.
type Client interface {
	// CurrentAuctionIndex returns the batch id currently accepting orders.
	CurrentAuctionIndex(ctx context.Context) (models.BatchId, error)
	// SecondsRemainingInBatch returns how long remains in the current batch.
	SecondsRemainingInBatch(ctx context.Context) (time.Duration, error)
	// LastBlockOfBatch returns the highest block number belonging to batch b, or the
	// latest known block if b has not yet finalized.
	LastBlockOfBatch(ctx context.Context, b models.BatchId) (uint64, error)
	// SimulateSubmitSolution performs a view call to price the objective value a real
	// submission of solution would record, without spending gas. atBlock of 0 means
	// "latest".
	SimulateSubmitSolution(ctx context.Context, batch models.BatchId, solution models.Solution, atBlock uint64) (models.Objective, error)
	// SubmitSolution sends the settlement transaction.
	SubmitSolution(ctx context.Context, batch models.BatchId, solution models.Solution, claimedObjective models.Objective, gasPrice decimal.Decimal, nonce Nonce, gasLimit uint64) (TxResult, error)
	// SendNoopTransaction sends a zero-value self-transfer solely to burn nonce,
	// used to cancel a pending submission.
	SendNoopTransaction(ctx context.Context, gasPrice decimal.Decimal, nonce Nonce) (TxResult, error)
	// GetTransactionCount returns the sender's current nonce.
	GetTransactionCount(ctx context.Context) (Nonce, error)
	// PastEvents returns historical events in [from, to] in batches of pageSize.
	PastEvents(ctx context.Context, from, to uint64, pageSize int) ([]EventBatch, error)
	// StreamEvents delivers new events as they arrive until ctx is cancelled.
	StreamEvents(ctx context.Context) (<-chan EventBatch, <-chan error)
}

// SortedNonzeroPrices encodes a solution's prices as the contract expects: sorted
// token ids excluding the fee token (id 0) and any zero price, paired with their
// prices in the same order.
func SortedNonzeroPrices(solution models.Solution) ([]models.TokenId, []models.Amount) {
	ids := make([]models.TokenId, 0, len(solution.Prices))
	for id, price := range solution.Prices {
		if id == models.FeeTokenId || price == nil || price.Sign() == 0 {
			continue
		}
		ids = append(ids, id)
	}
	sortTokenIds(ids)

	prices := make([]models.Amount, len(ids))
	for i, id := range ids {
		prices[i] = solution.Prices[id]
	}
	return ids, prices
}

func sortTokenIds(ids []models.TokenId) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
}

// NonzeroExecutions encodes a solution's executed orders as the contract expects:
// parallel (owners, order_ids, buy_volumes) arrays keeping only trades with a
// positive buy amount.
func NonzeroExecutions(solution models.Solution) (owners []models.Address, orderIds []models.OrderId, buyVolumes []models.Amount) {
	for _, eo := range solution.ExecutedOrders {
		if eo.BuyAmount == nil || eo.BuyAmount.Sign() == 0 {
			continue
		}
		owners = append(owners, eo.User)
		orderIds = append(orderIds, eo.OrderId)
		buyVolumes = append(buyVolumes, eo.BuyAmount)
	}
	return owners, orderIds, buyVolumes
}
