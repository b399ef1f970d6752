// Package orderbook reconstructs authoritative per-batch account balances and
// orders by replaying an internal/eventlog.Log. Grounded on the original's
// driver/src/orderbook/streamed/state.rs: there is no way to revert an event, replay
// order matters, and trades are deferred behind a PendingSolution until a
// SolutionSubmission event names them the batch's accepted solution.
package orderbook

import (
	"math/big"

	"github.com/gnosis/dex-driver/pkg/models"
)

// State is the mutable replay target. Every call to applyEvent first folds in any
// pending solution that has come due; the event itself then either succeeds and
// mutates all necessary fields, or fails and leaves State as it was after that first
// step (the folded-in solution is not undone).
type State struct {
	orders          map[orderKey]*models.Order
	balances        map[balanceKey]*models.Balance
	tokens          *models.TokenRegistry
	pendingSolution models.PendingSolution
}

type orderKey struct {
	user models.Address
	id   models.OrderId
}

type balanceKey struct {
	user  models.Address
	token models.Address
}

// newState returns the state before any events have been applied.
func newState() *State {
	return &State{
		orders:          make(map[orderKey]*models.Order),
		balances:        make(map[balanceKey]*models.Balance),
		tokens:          models.NewTokenRegistry(),
		pendingSolution: models.NewAccumulatingTrades(),
	}
}

// clone deep-copies enough of State that the copy does not observe later mutations
// of the original's orders or balances.
func (s *State) clone() *State {
	out := &State{
		orders:          make(map[orderKey]*models.Order, len(s.orders)),
		balances:        make(map[balanceKey]*models.Balance, len(s.balances)),
		tokens:          s.tokens.Clone(),
		pendingSolution: s.pendingSolution,
	}
	for k, v := range s.orders {
		o := *v
		o.PriceNumerator = new(big.Int).Set(v.PriceNumerator)
		o.PriceDenominator = new(big.Int).Set(v.PriceDenominator)
		o.UsedAmount = new(big.Int).Set(v.UsedAmount)
		out.orders[k] = &o
	}
	for k, v := range s.balances {
		out.balances[k] = cloneBalance(v)
	}
	return out
}

func cloneBalance(b *models.Balance) *models.Balance {
	out := &models.Balance{Balance: new(big.Int).Set(b.Balance)}
	if b.PendingDeposit != nil {
		f := *b.PendingDeposit
		f.Amount = new(big.Int).Set(b.PendingDeposit.Amount)
		out.PendingDeposit = &f
	}
	if b.PendingWithdraw != nil {
		f := *b.PendingWithdraw
		f.Amount = new(big.Int).Set(b.PendingWithdraw.Amount)
		out.PendingWithdraw = &f
	}
	return out
}

func (s *State) balance(user, token models.Address) *models.Balance {
	key := balanceKey{user, token}
	b, ok := s.balances[key]
	if !ok {
		b = models.NewBalance()
		s.balances[key] = b
	}
	return b
}

// needsToApplySolution reports whether a SubmittedSolution pending solution must be
// folded into balances/orders before reading state as of blockBatchId: true exactly
// when the pending solution's own batch id is strictly less than blockBatchId.
func (s *State) needsToApplySolution(blockBatchId models.BatchId) bool {
	submitted, ok := s.pendingSolution.(models.SubmittedSolution)
	return ok && submitted.BatchId < blockBatchId
}

// applyEvent dispatches event to its handler, first folding in any pending solution
// that has come due given blockBatchId. That first step is kept even when the handler
// then fails; every handler validates before it mutates, so a failing event adds no
// change of its own.
func (s *State) applyEvent(event models.Event, blockBatchId models.BatchId) error {
	s.applyPendingSolutionIfNeeded(blockBatchId)

	switch e := event.(type) {
	case models.Deposit:
		return s.applyDeposit(e, blockBatchId)
	case models.WithdrawRequest:
		return s.applyWithdrawRequest(e)
	case models.Withdraw:
		return s.applyWithdraw(e, blockBatchId)
	case models.TokenListing:
		return s.applyTokenListing(e)
	case models.OrderPlacement:
		return s.applyOrderPlacement(e)
	case models.OrderCancellation:
		return s.applyOrderCancellation(e, blockBatchId)
	case models.OrderDeletion:
		return s.applyOrderDeletion(e, blockBatchId)
	case models.Trade:
		return s.applyTrade(e)
	case models.TradeReversion:
		// No direct effect: the next Trade burst overwrites the accumulating trades.
		return nil
	case models.SolutionSubmission:
		return s.applySolutionSubmission(e, blockBatchId)
	default:
		return nil
	}
}

func (s *State) applyDeposit(e models.Deposit, blockBatchId models.BatchId) error {
	s.balance(e.User, e.Token).Deposit(models.Flux{Amount: e.Amount, BatchId: e.BatchId}, blockBatchId)
	return nil
}

func (s *State) applyWithdrawRequest(e models.WithdrawRequest) error {
	s.balance(e.User, e.Token).RequestWithdraw(models.Flux{Amount: e.Amount, BatchId: e.BatchId})
	return nil
}

func (s *State) applyWithdraw(e models.Withdraw, blockBatchId models.BatchId) error {
	// Checked before s.balance would insert an entry, so a failing withdraw leaves the
	// balance map as it was.
	if _, ok := s.balances[balanceKey{e.User, e.Token}]; !ok && e.Amount.Sign() > 0 {
		return models.ErrMathUnderflow
	}
	return s.balance(e.User, e.Token).Withdraw(e.Amount, blockBatchId)
}

func (s *State) applyTokenListing(e models.TokenListing) error {
	s.tokens.Register(e.Id, e.Address)
	return nil
}

func (s *State) applyOrderPlacement(e models.OrderPlacement) error {
	key := orderKey{e.Owner, e.Index}
	if _, exists := s.orders[key]; exists {
		return models.ErrOrderAlreadyExists
	}
	s.orders[key] = &models.Order{
		Id:               e.Index,
		User:             e.Owner,
		BuyToken:         e.BuyToken,
		SellToken:        e.SellToken,
		PriceNumerator:   e.PriceNumerator,
		PriceDenominator: e.PriceDenominator,
		ValidFrom:        e.ValidFrom,
		ValidUntil:       e.ValidUntil,
		UsedAmount:       new(big.Int),
	}
	return nil
}

func (s *State) applyOrderCancellation(e models.OrderCancellation, blockBatchId models.BatchId) error {
	order, ok := s.orders[orderKey{e.Owner, e.Id}]
	if !ok {
		return models.ErrUnknownOrder
	}
	order.ValidUntil = blockBatchId - 1
	return nil
}

func (s *State) applyOrderDeletion(e models.OrderDeletion, blockBatchId models.BatchId) error {
	key := orderKey{e.Owner, e.Id}
	order, ok := s.orders[key]
	if !ok {
		// Deleting a nonexistent order is a no-op: orders are allowed to be deleted
		// multiple times.
		return nil
	}
	if order.IsValidInBatch(blockBatchId - 1) {
		return models.ErrDeletingValidOrder
	}
	delete(s.orders, key)
	return nil
}

func (s *State) applyTrade(e models.Trade) error {
	if _, ok := s.tokens.AddressOf(e.SellToken); !ok {
		return models.ErrUnknownToken
	}
	if _, ok := s.tokens.AddressOf(e.BuyToken); !ok {
		return models.ErrUnknownToken
	}
	if _, ok := s.orders[orderKey{e.Owner, e.OrderId}]; !ok {
		return models.ErrUnknownOrder
	}
	switch acc := s.pendingSolution.(type) {
	case models.AccumulatingTrades:
		s.pendingSolution = models.AccumulatingTrades{Trades: append(acc.Trades, e)}
	case models.SubmittedSolution:
		// A new trade after a solution was submitted means the previous solution was
		// reverted; start a fresh accumulation.
		s.pendingSolution = models.AccumulatingTrades{Trades: []models.Trade{e}}
	}
	return nil
}

func (s *State) applySolutionSubmission(e models.SolutionSubmission, blockBatchId models.BatchId) error {
	if !s.tokens.HasFeeToken() {
		return models.ErrSolutionWithoutFeeToken
	}
	var trades []models.Trade
	if acc, ok := s.pendingSolution.(models.AccumulatingTrades); ok {
		trades = acc.Trades
	}
	s.pendingSolution = models.SubmittedSolution{
		BatchId:   blockBatchId,
		Submitter: e.Submitter,
		BurntFees: e.BurntFees,
		Trades:    trades,
	}
	return nil
}

// applyPendingSolutionIfNeeded folds a SubmittedSolution's effects into balances and
// orders once the observed block's batch has advanced past the solution's own batch:
// it credits burnt fees to the submitter in the fee token, then applies each trade's
// balance deltas and order fill, and resets the pending solution to a fresh empty
// accumulation.
func (s *State) applyPendingSolutionIfNeeded(blockBatchId models.BatchId) {
	submitted, ok := s.pendingSolution.(models.SubmittedSolution)
	if !ok || submitted.BatchId >= blockBatchId {
		return
	}

	// Cannot fail: a fee token is guaranteed to exist whenever a SolutionSubmission
	// event was accepted.
	feeToken, _ := s.tokens.AddressOf(models.FeeTokenId)
	feeBalance := s.balance(submitted.Submitter, feeToken)
	feeBalance.Balance.Add(feeBalance.Balance, submitted.BurntFees)

	s.pendingSolution = models.NewAccumulatingTrades()

	for _, trade := range submitted.Trades {
		// Cannot fail: tokens and the order are guaranteed to have existed when the
		// trade event was accepted, and orders are never removed while still valid.
		_ = s.applySolutionTrade(trade, blockBatchId)
	}
}

func (s *State) applySolutionTrade(trade models.Trade, blockBatchId models.BatchId) error {
	order, ok := s.orders[orderKey{trade.Owner, trade.OrderId}]
	if !ok {
		return models.ErrUnknownOrder
	}
	sellToken, ok := s.tokens.AddressOf(order.SellToken)
	if !ok {
		return models.ErrUnknownToken
	}
	buyToken, ok := s.tokens.AddressOf(order.BuyToken)
	if !ok {
		return models.ErrUnknownToken
	}

	if order.HasLimitedAmount() {
		order.UsedAmount = new(big.Int).Add(order.UsedAmount, trade.ExecutedSellAmount)
	}
	s.balance(trade.Owner, sellToken).ApplyTradeDelta(trade.ExecutedSellAmount, blockBatchId, true)
	s.balance(trade.Owner, buyToken).ApplyTradeDelta(trade.ExecutedBuyAmount, blockBatchId, false)
	return nil
}
