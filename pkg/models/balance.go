package models

import "math/big"

// Flux is a pending balance change that matures at the start of the batch after
// the one it was recorded in.
type Flux struct {
	Amount  Amount
	BatchId BatchId
}

// Balance is a user's holding of a single token, plus whatever deposit/withdraw is
// still pending maturation.
type Balance struct {
	Balance         Amount
	PendingDeposit  *Flux
	PendingWithdraw *Flux
}

// NewBalance returns a zeroed balance.
func NewBalance() *Balance {
	return &Balance{Balance: new(big.Int)}
}

// maturePendingDeposit folds a pending deposit into Balance once currentBatch has
// moved past the batch it was recorded in, matching the contract's rule that a
// deposit becomes effective at the start of batch flux.BatchId+1.
func (b *Balance) maturePendingDeposit(currentBatch BatchId) {
	if b.PendingDeposit == nil {
		return
	}
	if currentBatch > b.PendingDeposit.BatchId {
		b.Balance = new(big.Int).Add(b.Balance, b.PendingDeposit.Amount)
		b.PendingDeposit = nil
	}
}

// Deposit folds a new deposit into any existing pending deposit (summing amounts,
// taking the new batch id), maturing the existing pending deposit into the balance
// first if it has already come due.
func (b *Balance) Deposit(flux Flux, currentBatch BatchId) {
	b.maturePendingDeposit(currentBatch)
	if b.PendingDeposit != nil {
		b.PendingDeposit.Amount = new(big.Int).Add(b.PendingDeposit.Amount, flux.Amount)
		b.PendingDeposit.BatchId = flux.BatchId
	} else {
		f := flux
		f.Amount = new(big.Int).Set(flux.Amount)
		b.PendingDeposit = &f
	}
}

// RequestWithdraw replaces any pending withdraw request; it never touches Balance.
func (b *Balance) RequestWithdraw(flux Flux) {
	f := flux
	f.Amount = new(big.Int).Set(flux.Amount)
	b.PendingWithdraw = &f
}

// Withdraw realizes a balance decrease: it matures any pending deposit first (so a
// deposit-then-withdraw in adjacent batches composes correctly), checked-subtracts
// the withdrawn amount, and clears the pending withdraw request.
//
// Returns ErrMathUnderflow if the balance would go negative; on error b is unchanged.
func (b *Balance) Withdraw(amount Amount, currentBatch BatchId) error {
	available := b.Balance
	if b.PendingDeposit != nil && currentBatch > b.PendingDeposit.BatchId {
		available = new(big.Int).Add(b.Balance, b.PendingDeposit.Amount)
	}
	if available.Cmp(amount) < 0 {
		return ErrMathUnderflow
	}
	b.maturePendingDeposit(currentBatch)
	b.Balance = new(big.Int).Sub(b.Balance, amount)
	b.PendingWithdraw = nil
	return nil
}

// ApplyTradeDelta adjusts the balance by a trade leg, maturing any pending deposit
// first. Unlike Withdraw this saturates at zero on underflow rather than failing:
// the contract guarantees overall validity, but intermediate event replay orderings
// can transiently see a sell leg before the matching buy leg that funds it.
func (b *Balance) ApplyTradeDelta(amount Amount, currentBatch BatchId, subtract bool) {
	b.maturePendingDeposit(currentBatch)
	if subtract {
		next := new(big.Int).Sub(b.Balance, amount)
		if next.Sign() < 0 {
			next = new(big.Int)
		}
		b.Balance = next
	} else {
		b.Balance = new(big.Int).Add(b.Balance, amount)
	}
}

// CurrentBalance returns the balance as of the start of batch b: the stored balance
// plus any pending deposit that has matured, minus any pending withdraw that has
// matured, saturating at zero.
func (b *Balance) CurrentBalance(b_ BatchId) Amount {
	result := new(big.Int).Set(b.Balance)
	if b.PendingDeposit != nil && b_ > b.PendingDeposit.BatchId {
		result.Add(result, b.PendingDeposit.Amount)
	}
	if b.PendingWithdraw != nil && b_ > b.PendingWithdraw.BatchId {
		result.Sub(result, b.PendingWithdraw.Amount)
		if result.Sign() < 0 {
			result = new(big.Int)
		}
	}
	return result
}
