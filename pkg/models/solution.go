package models

// PendingSolution is the per-batch state of trades the batch is accumulating (or has
// already had submitted on-chain), kept separate from the live balances/orders so
// that a later solution in the same batch can atomically supersede an earlier one.
type PendingSolution interface {
	isPendingSolution()
}

// AccumulatingTrades holds trades observed so far in the current batch, none of
// which have been confirmed by a SolutionSubmission event yet.
type AccumulatingTrades struct {
	Trades []Trade
}

func (AccumulatingTrades) isPendingSolution() {}

// SubmittedSolution is the pending solution that became the batch's accepted
// solution once a SolutionSubmission event was observed; its effects are deferred
// until a later block's batch id advances past BatchId.
type SubmittedSolution struct {
	BatchId   BatchId
	Submitter Address
	BurntFees Amount
	Trades    []Trade
}

func (SubmittedSolution) isPendingSolution() {}

// NewAccumulatingTrades returns the default pending-solution state for a fresh batch.
func NewAccumulatingTrades() PendingSolution {
	return AccumulatingTrades{Trades: nil}
}

// ExecutedOrder is one leg of a driver-computed Solution.
type ExecutedOrder struct {
	User       Address
	OrderId    OrderId
	SellAmount Amount
	BuyAmount  Amount
}

// Solution is the candidate settlement a driver computes for a batch: a price per
// traded token plus the set of orders it executes (partially or fully), and the fees
// (denominated in the fee token) the price finder computed it would burn.
type Solution struct {
	Prices         map[TokenId]Amount
	ExecutedOrders []ExecutedOrder
	BurntFees      Amount
}

// TrivialSolution is a Solution with no prices and no trades; it is never submitted.
func TrivialSolution() Solution {
	return Solution{Prices: map[TokenId]Amount{}, ExecutedOrders: nil}
}

// IsTrivial reports whether the solution has no trades, in which case it must not be
// submitted to the contract.
func (s Solution) IsTrivial() bool {
	return len(s.ExecutedOrders) == 0
}
